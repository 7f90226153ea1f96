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

// Package secbuf provides an erasable byte buffer for secret material.
//
// Keys, seeds, and decrypted protected fields route through Buffer so
// that zeroing is possible and every duplication of secret bytes is an
// explicit Clone call visible in review.
package secbuf

import (
	"crypto/subtle"
	"encoding/base64"
	"io"
)

// A Buffer owns a mutable byte sequence that can be zeroed on demand.
// The zero value is an empty buffer.
type Buffer struct {
	b []byte
}

// New returns a zeroed buffer of n bytes.
func New(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// Of returns a buffer holding a copy of b. The caller keeps ownership
// of the argument and remains responsible for wiping it.
func Of(b []byte) *Buffer {
	c := make([]byte, len(b))
	copy(c, b)
	return &Buffer{b: c}
}

// Take returns a buffer that assumes ownership of b without copying.
func Take(b []byte) *Buffer {
	return &Buffer{b: b}
}

// FromBase64 decodes standard Base64 into a new buffer.
func FromBase64(s string) (*Buffer, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return &Buffer{b: b}, nil
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.b)
}

// Bytes returns the underlying storage. The slice aliases the buffer:
// it is erased along with it and must not outlive it.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.b
}

// Clone returns an independent copy. Duplication of secret bytes is
// always this explicit call, never an implicit copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	return Of(b.b)
}

// Equal reports whether two buffers hold identical bytes. The
// comparison runs in constant time for equal lengths.
func (b *Buffer) Equal(o *Buffer) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), o.Bytes()) == 1
}

// Base64 returns the standard Base64 encoding of the contents.
func (b *Buffer) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Bytes())
}

// Erase overwrites the contents with zero bytes. The length is
// unchanged and the call is idempotent.
func (b *Buffer) Erase() {
	if b == nil {
		return
	}
	for i := range b.b {
		b.b[i] = 0
	}
}

// Wipe zeroes an ordinary byte slice in place. It covers the handoff
// points where raw slices exist before a Buffer takes ownership.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// A Reader consumes typed values from a buffer with a sticky error.
// After the first short read every subsequent call reports
// io.ErrUnexpectedEOF, so a decode path can check the error once.
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader returns a cursor over the contents of b.
func NewReader(b *Buffer) *Reader {
	return &Reader{b: b.Bytes()}
}

// NewSliceReader returns a cursor over b without adopting it; the
// caller keeps ownership of the bytes.
func NewSliceReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

// Read fills p from the cursor.
func (r *Reader) Read(p []byte) {
	copy(p, r.take(len(p)))
}

// Slice returns the next n bytes without copying them.
func (r *Reader) Slice(n int) []byte {
	return r.take(n)
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	v := r.take(2)
	if v == nil {
		return 0
	}
	return uint16(v[0]) | uint16(v[1])<<8
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	v := r.take(4)
	if v == nil {
		return 0
	}
	return uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	v := r.take(8)
	if v == nil {
		return 0
	}
	return uint64(v[0]) | uint64(v[1])<<8 | uint64(v[2])<<16 | uint64(v[3])<<24 |
		uint64(v[4])<<32 | uint64(v[5])<<40 | uint64(v[6])<<48 | uint64(v[7])<<56
}

// Uint32BE reads a big-endian uint32.
func (r *Reader) Uint32BE() uint32 {
	v := r.take(4)
	if v == nil {
		return 0
	}
	return uint32(v[3]) | uint32(v[2])<<8 | uint32(v[1])<<16 | uint32(v[0])<<24
}

// Uint64BE reads a big-endian uint64.
func (r *Reader) Uint64BE() uint64 {
	v := r.take(8)
	if v == nil {
		return 0
	}
	return uint64(v[7]) | uint64(v[6])<<8 | uint64(v[5])<<16 | uint64(v[4])<<24 |
		uint64(v[3])<<32 | uint64(v[2])<<40 | uint64(v[1])<<48 | uint64(v[0])<<56
}

// A Writer appends typed values to a growing buffer.
type Writer struct {
	b []byte
}

// NewWriter returns an empty output cursor.
func NewWriter() *Writer {
	return new(Writer)
}

// Buffer hands the accumulated bytes over as a Buffer. The writer must
// not be used afterwards.
func (w *Writer) Buffer() *Buffer {
	b := w.b
	w.b = nil
	return Take(b)
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.b) }

// Write appends p.
func (w *Writer) Write(p []byte) {
	w.b = append(w.b, p...)
}

// Uint16 appends a little-endian uint16.
func (w *Writer) Uint16(v uint16) {
	w.b = append(w.b, byte(v), byte(v>>8))
}

// Uint32 appends a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	w.b = append(w.b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// Uint64 appends a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	w.b = append(w.b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// Uint32BE appends a big-endian uint32.
func (w *Writer) Uint32BE(v uint32) {
	w.b = append(w.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Uint64BE appends a big-endian uint64.
func (w *Writer) Uint64BE(v uint64) {
	w.b = append(w.b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
