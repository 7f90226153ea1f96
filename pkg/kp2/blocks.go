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

package kp2

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"io"
	"math"

	"zombiezen.com/go/kdbcodec/pkg/progress"
)

// blockSize is the content block payload size used when writing.
// Readers accept any size the file declares.
const blockSize = 1 << 20

// readHashedBlocks consumes the version 3 content stream: numbered
// blocks carrying a SHA-256 of their payload, terminated by an empty
// block. prog is stepped once per block.
func readHashedBlocks(r io.Reader, prog *progress.Progress) ([]byte, error) {
	out := new(bytes.Buffer)
	var want uint32
	for {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		var head [40]byte // index + hash + size
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, ErrPrematureEnd
		}
		index := binary.LittleEndian.Uint32(head[:4])
		if index != want {
			return nil, &BlockError{Index: uint64(index), Reason: "out of order"}
		}
		size := binary.LittleEndian.Uint32(head[36:])
		if size == 0 {
			if !bytes.Equal(head[4:36], make([]byte, 32)) {
				return nil, &BlockError{Index: uint64(index), Reason: "nonzero hash on final block"}
			}
			return out.Bytes(), nil
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, ErrPrematureEnd
		}
		sum := sha256.Sum256(data)
		if !bytes.Equal(sum[:], head[4:36]) {
			return nil, &BlockError{Index: uint64(index), Reason: "hash mismatch"}
		}
		out.Write(data)
		prog.Step(1)
		want++
	}
}

// writeHashedBlocks emits the version 3 content stream.
func writeHashedBlocks(w io.Writer, data []byte, prog *progress.Progress) error {
	var index uint32
	for len(data) > 0 {
		if err := prog.Err(); err != nil {
			return err
		}
		n := len(data)
		if n > blockSize {
			n = blockSize
		}
		if err := writeHashedBlock(w, index, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		index++
		prog.Step(1)
	}
	return writeHashedBlock(w, index, nil)
}

func writeHashedBlock(w io.Writer, index uint32, data []byte) error {
	var head [40]byte
	binary.LittleEndian.PutUint32(head[:4], index)
	if len(data) > 0 {
		sum := sha256.Sum256(data)
		copy(head[4:36], sum[:])
	}
	binary.LittleEndian.PutUint32(head[36:], uint32(len(data)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// blockHMACKey derives the per-block MAC key for a version 4 block:
// SHA-512 over the little-endian block index and the base key.
// Index math.MaxUint64 keys the header MAC.
func blockHMACKey(base []byte, index uint64) []byte {
	h := sha512.New()
	var ib [8]byte
	binary.LittleEndian.PutUint64(ib[:], index)
	h.Write(ib[:])
	h.Write(base)
	return h.Sum(nil)
}

// headerHMAC computes the MAC stored right after a version 4 header.
func headerHMAC(base, headerRaw []byte) []byte {
	mac := hmac.New(sha256.New, blockHMACKey(base, math.MaxUint64))
	mac.Write(headerRaw)
	return mac.Sum(nil)
}

func blockHMAC(base []byte, index uint64, data []byte) []byte {
	mac := hmac.New(sha256.New, blockHMACKey(base, index))
	var ib [8]byte
	binary.LittleEndian.PutUint64(ib[:], index)
	mac.Write(ib[:])
	var sb [4]byte
	binary.LittleEndian.PutUint32(sb[:], uint32(len(data)))
	mac.Write(sb[:])
	mac.Write(data)
	return mac.Sum(nil)
}

// readHMACBlocks consumes the version 4 content stream: blocks
// authenticated with HMAC-SHA256 under per-block keys, terminated by
// an empty block. prog is stepped once per block.
func readHMACBlocks(r io.Reader, base []byte, prog *progress.Progress) ([]byte, error) {
	out := new(bytes.Buffer)
	var index uint64
	for {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		var head [36]byte // mac + size
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, ErrPrematureEnd
		}
		size := binary.LittleEndian.Uint32(head[32:])
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, ErrPrematureEnd
		}
		if !hmac.Equal(head[:32], blockHMAC(base, index, data)) {
			return nil, &BlockError{Index: index, Reason: "MAC mismatch"}
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		out.Write(data)
		prog.Step(1)
		index++
	}
}

// writeHMACBlocks emits the version 4 content stream.
func writeHMACBlocks(w io.Writer, base, data []byte, prog *progress.Progress) error {
	var index uint64
	for len(data) > 0 {
		if err := prog.Err(); err != nil {
			return err
		}
		n := len(data)
		if n > blockSize {
			n = blockSize
		}
		if err := writeHMACBlock(w, base, index, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		index++
		prog.Step(1)
	}
	return writeHMACBlock(w, base, index, nil)
}

func writeHMACBlock(w io.Writer, base []byte, index uint64, data []byte) error {
	if _, err := w.Write(blockHMAC(base, index, data)); err != nil {
		return err
	}
	var sb [4]byte
	binary.LittleEndian.PutUint32(sb[:], uint32(len(data)))
	if _, err := w.Write(sb[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
