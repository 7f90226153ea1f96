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

// Package fakerand provides a deterministic byte stream, suitable for
// testing code that takes an entropy source.
package fakerand

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"
)

// New returns a reader that yields the same byte sequence every time.
// The reader can be used from multiple goroutines.
func New() io.Reader {
	return NewSeeded(0)
}

// NewSeeded returns a deterministic reader whose sequence depends on
// seed. Distinct seeds give unrelated streams.
func NewSeeded(seed uint64) io.Reader {
	r := new(reader)
	binary.LittleEndian.PutUint64(r.state[:8], seed)
	return r
}

type reader struct {
	mu    sync.Mutex
	state [16]byte // seed followed by a block counter
	buf   []byte
}

func (r *reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n := 0; n < len(p); {
		if len(r.buf) == 0 {
			block := sha256.Sum256(r.state[:])
			r.buf = block[:]
			ctr := binary.LittleEndian.Uint64(r.state[8:])
			binary.LittleEndian.PutUint64(r.state[8:], ctr+1)
		}
		c := copy(p[n:], r.buf)
		r.buf = r.buf[c:]
		n += c
	}
	return len(p), nil
}
