// Copyright 2026 The Kdbcodec Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package streamcipher wraps resolved ciphers for the two layers the
// KeePass formats need: bulk block-cipher runs over a container body
// and stateful XOR streams for individually protected field values.
// Every long run yields to a progress token between chunks, so a
// cancellation surfaces as progress.ErrCancelled rather than a
// cryptographic error.
package streamcipher

import (
	"bytes"
	"crypto/cipher"
	"errors"
	"io"

	"zombiezen.com/go/kdbcodec/pkg/padding"
	"zombiezen.com/go/kdbcodec/pkg/progress"
)

// chunkSize is the number of bytes processed between cancellation
// polls.
const chunkSize = 4096

// EncryptBlocks pads b with pad and encrypts it with mode, returning a
// fresh buffer. The output length is always a multiple of the block
// size. The input is not mutated.
func EncryptBlocks(b []byte, mode cipher.BlockMode, pad padding.Padding, prog *progress.Progress) ([]byte, error) {
	bs := mode.BlockSize()
	out := make([]byte, 0, padding.PaddedLen(len(b), bs))
	out = append(out, b...)
	out = pad.Pad(out, bs)
	prog.AddTotal(int64(len(out)))
	for off := 0; off < len(out); off += chunkSize {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		end := off + chunkSize
		if end > len(out) {
			end = len(out)
		}
		mode.CryptBlocks(out[off:end], out[off:end])
		prog.Step(int64(end - off))
	}
	return out, nil
}

// DecryptBlocks decrypts b with mode and strips pad, returning a fresh
// buffer. Misaligned input reports padding.ErrDataSize and invalid
// padding reports padding.ErrWrongPadding; neither is ever truncated
// silently. The input is not mutated.
func DecryptBlocks(b []byte, mode cipher.BlockMode, pad padding.Padding, prog *progress.Progress) ([]byte, error) {
	bs := mode.BlockSize()
	if len(b)%bs != 0 || len(b) == 0 {
		return nil, padding.ErrDataSize
	}
	out := make([]byte, len(b))
	copy(out, b)
	prog.AddTotal(int64(len(out)))
	for off := 0; off < len(out); off += chunkSize {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		end := off + chunkSize
		if end > len(out) {
			end = len(out)
		}
		mode.CryptBlocks(out[off:end], out[off:end])
		prog.Step(int64(end - off))
	}
	return pad.Strip(out, bs)
}

type reader struct {
	r    io.Reader
	mode cipher.BlockMode
	pad  padding.Padding
	prog *progress.Progress

	first  bool
	buf    bytes.Buffer
	rbuf   []byte
	nplain int // number of bytes in buf that have been decrypted
	err    error
}

// NewReader creates a new reader that decrypts and strips padding from
// r, polling prog between decrypted runs.
func NewReader(r io.Reader, mode cipher.BlockMode, pad padding.Padding, prog *progress.Progress) io.Reader {
	return &reader{
		r:     r,
		mode:  mode,
		pad:   pad,
		prog:  prog,
		rbuf:  make([]byte, chunkSize),
		first: true,
	}
}

func (r *reader) Read(p []byte) (n int, err error) {
	if r.nplain > 0 {
		return r.readPlain(p), nil
	}
	r.growBuffer()
	if r.nplain > 0 {
		return r.readPlain(p), nil
	}
	return 0, r.err
}

func (r *reader) readPlain(p []byte) int {
	n := r.nplain
	if n > len(p) {
		n = len(p)
	}
	r.buf.Read(p[:n])
	r.nplain -= n
	return n
}

func (r *reader) growBuffer() {
	if r.err != nil {
		return
	}
	if err := r.prog.Err(); err != nil {
		r.err = err
		return
	}
	bs := r.mode.BlockSize()
	minSize := bs + 1
	nn, err := io.ReadAtLeast(r.r, r.rbuf, minSize-r.buf.Len())
	r.buf.Write(r.rbuf[:nn])
	bufSize := r.buf.Len()
	numExtra := bufSize % bs
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		if numExtra != 0 || r.first && bufSize < bs {
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = io.EOF
		}
	case err != nil:
		r.err = err
	}
	if bufSize < bs {
		return
	}
	r.first = false
	r.nplain = bufSize - numExtra
	if numExtra == 0 && r.err == nil {
		// Stopped on a block boundary: hold the final block back until
		// the next grow decides whether it carries the padding.
		r.nplain -= bs
	}
	b := r.buf.Bytes()[:r.nplain]
	r.mode.CryptBlocks(b, b)
	r.prog.Step(int64(r.nplain))

	if r.err == io.EOF {
		strip, err := r.pad.Strip(b, bs)
		if err != nil {
			r.err = err
		}
		r.nplain = len(strip)
		r.buf.Truncate(r.nplain)
	}
}

type writer struct {
	w    io.Writer
	mode cipher.BlockMode
	pad  padding.Padding
	prog *progress.Progress

	block []byte
	buf   []byte
	err   error
}

// NewWriter creates a new writer that encrypts its input and writes to
// w, polling prog between encrypted runs. Closing the writer adds the
// final padding but does not close w.
func NewWriter(w io.Writer, mode cipher.BlockMode, pad padding.Padding, prog *progress.Progress) io.WriteCloser {
	blockSize := mode.BlockSize()
	bufSize := chunkSize
	if blockSize > bufSize {
		bufSize = blockSize
	}
	return &writer{
		w:     w,
		mode:  mode,
		pad:   pad,
		prog:  prog,
		buf:   make([]byte, bufSize),
		block: make([]byte, 0, blockSize),
	}
}

func (w *writer) Write(p []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}
	bs := w.mode.BlockSize()
	if len(w.block)+len(p) <= bs {
		w.block = append(w.block, p...)
		return len(p), nil
	}
	if len(w.block) > 0 {
		blockLen := len(w.block)
		n = copy(w.block[blockLen:bs], p)
		w.block = w.block[:bs]
		w.mode.CryptBlocks(w.block, w.block)
		nn, err := w.w.Write(w.block)
		if err != nil {
			w.err = err
			if nn <= blockLen {
				nn = 0
			} else {
				n -= blockLen
			}
			return nn, err
		}
		w.block = w.block[:0]
	}
	var end int
	if extra := (len(p) - n) % bs; extra == 0 {
		end = len(p) - bs
	} else {
		end = len(p) - extra
	}
	for n < end {
		if err := w.prog.Err(); err != nil {
			w.err = err
			return n, err
		}
		nn, err := w.writeNext(p[n:end])
		n += nn
		if err != nil {
			w.err = err
			return n, err
		}
	}
	w.block = append(w.block, p[n:]...)
	return len(p), nil
}

func (w *writer) writeNext(p []byte) (n int, err error) {
	bs := w.mode.BlockSize()
	n = len(p)
	if n > len(w.buf) {
		n = len(w.buf)
	}
	n -= n % bs
	copy(w.buf, p[:n])
	w.mode.CryptBlocks(w.buf[:n], w.buf[:n])
	w.prog.Step(int64(n))
	return w.w.Write(w.buf[:n])
}

func (w *writer) Close() error {
	if w.err == errClosed {
		return nil
	} else if w.err != nil {
		return w.err
	}
	last := w.pad.Pad(w.block, w.mode.BlockSize())
	w.mode.CryptBlocks(last, last)
	_, err := w.w.Write(last)
	w.err = errClosed
	return err
}

var errClosed = errors.New("streamcipher: write on closed writer")
