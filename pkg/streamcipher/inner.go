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

package streamcipher

import (
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"

	"zombiezen.com/go/kdbcodec/pkg/progress"
)

// A Stream is a keyed XOR cipher applied to delimited byte runs. The
// keystream position advances across calls, so protected values must
// be processed in the order they occur in the document. Encrypt and
// Decrypt return fresh buffers and never mutate their input.
type Stream interface {
	Encrypt(b []byte, prog *progress.Progress) ([]byte, error)
	Decrypt(b []byte, prog *progress.Progress) ([]byte, error)
}

type salsa20Stream struct {
	key     [32]byte
	counter [16]byte // 8-byte nonce followed by little-endian block counter
	ks      []byte   // unconsumed keystream
}

// NewSalsa20 returns a Stream running Salsa20 with the given key and
// nonce, starting at block zero.
func NewSalsa20(key *[32]byte, nonce *[8]byte) Stream {
	s := &salsa20Stream{key: *key}
	copy(s.counter[:8], nonce[:])
	return s
}

func (s *salsa20Stream) Encrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	return s.apply(b, prog)
}

func (s *salsa20Stream) Decrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	return s.apply(b, prog)
}

func (s *salsa20Stream) apply(b []byte, prog *progress.Progress) ([]byte, error) {
	if err := prog.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	prog.AddTotal(int64(len(out)))
	rest := out
	for len(rest) > 0 {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		if len(s.ks) == 0 {
			n := len(rest)
			if n > chunkSize {
				n = chunkSize
			}
			s.ks = s.keystream((n + 63) &^ 63)
		}
		n := len(rest)
		if n > len(s.ks) {
			n = len(s.ks)
		}
		for i := 0; i < n; i++ {
			rest[i] ^= s.ks[i]
		}
		s.ks = s.ks[n:]
		rest = rest[n:]
		prog.Step(int64(n))
	}
	return out, nil
}

// keystream produces n bytes of keystream (n must be a multiple of 64)
// and advances the block counter.
func (s *salsa20Stream) keystream(n int) []byte {
	ks := make([]byte, n)
	salsa.XORKeyStream(ks, ks, &s.counter, &s.key)
	blocks := uint64(n / 64)
	c := uint64(s.counter[8]) | uint64(s.counter[9])<<8 | uint64(s.counter[10])<<16 |
		uint64(s.counter[11])<<24 | uint64(s.counter[12])<<32 | uint64(s.counter[13])<<40 |
		uint64(s.counter[14])<<48 | uint64(s.counter[15])<<56
	c += blocks
	for i := 0; i < 8; i++ {
		s.counter[8+i] = byte(c >> (8 * i))
	}
	return ks
}

type chacha20Stream struct {
	c *chacha20.Cipher
}

// NewChaCha20 returns a Stream running ChaCha20 with the given 32-byte
// key and 12-byte nonce, starting at block zero.
func NewChaCha20(key, nonce []byte) (Stream, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	return &chacha20Stream{c: c}, nil
}

func (s *chacha20Stream) Encrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	return s.apply(b, prog)
}

func (s *chacha20Stream) Decrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	return s.apply(b, prog)
}

func (s *chacha20Stream) apply(b []byte, prog *progress.Progress) ([]byte, error) {
	if err := prog.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	prog.AddTotal(int64(len(b)))
	for off := 0; off < len(b); off += chunkSize {
		if err := prog.Err(); err != nil {
			return nil, err
		}
		end := off + chunkSize
		if end > len(b) {
			end = len(b)
		}
		s.c.XORKeyStream(out[off:end], b[off:end])
		prog.Step(int64(end - off))
	}
	return out, nil
}
