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

package kp1

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"zombiezen.com/go/kdbcodec/pkg/fakerand"
	"zombiezen.com/go/kdbcodec/pkg/kdbcrypt"
)

func newTestHeader(t *testing.T, c kdbcrypt.Cipher) *Header {
	t.Helper()
	h := &Header{
		Cipher:          c,
		NumGroups:       3,
		NumEntries:      7,
		TransformRounds: 6000,
	}
	if err := h.RandomizeSeeds(fakerand.New()); err != nil {
		t.Fatal(err)
	}
	for i := range h.ContentHash {
		h.ContentHash[i] = byte(i)
	}
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, c := range []kdbcrypt.Cipher{kdbcrypt.RijndaelCipher, kdbcrypt.TwofishCipher} {
		want := newTestHeader(t, c)
		buf := new(bytes.Buffer)
		if err := want.Write(buf); err != nil {
			t.Fatalf("Write(%v header): %v", c, err)
		}
		if buf.Len() != HeaderSize {
			t.Errorf("Write(%v header) emitted %d bytes; want %d", c, buf.Len(), HeaderSize)
		}
		got := new(Header)
		if err := got.Read(buf); err != nil {
			t.Fatalf("Read(%v header): %v", c, err)
		}
		if *got != *want {
			t.Errorf("header round trip (%v):\n got %+v\nwant %+v", c, got, want)
		}
	}
}

func TestHeaderReadErrors(t *testing.T) {
	valid := new(bytes.Buffer)
	if err := newTestHeader(t, kdbcrypt.RijndaelCipher).Write(valid); err != nil {
		t.Fatal(err)
	}

	corrupt := func(off int, val uint32) []byte {
		b := make([]byte, valid.Len())
		copy(b, valid.Bytes())
		binary.LittleEndian.PutUint32(b[off:], val)
		return b
	}

	tests := []struct {
		name  string
		input []byte
		check func(error) bool
	}{
		{
			name:  "empty",
			input: nil,
			check: func(err error) bool { return err == ErrPrematureEnd },
		},
		{
			name:  "truncated",
			input: valid.Bytes()[:HeaderSize-1],
			check: func(err error) bool { return err == ErrPrematureEnd },
		},
		{
			name:  "badSignature",
			input: corrupt(0, 0xdeadbeef),
			check: func(err error) bool { return err == ErrWrongSignature },
		},
		{
			name:  "oldVersion",
			input: corrupt(12, 0x00020001),
			check: func(err error) bool {
				ve, ok := err.(VersionError)
				return ok && uint32(ve) == 0x00020001 &&
					strings.Contains(ve.Error(), "0x00020001")
			},
		},
		{
			name:  "bothCipherBits",
			input: corrupt(8, sha2Flag|rijndaelFlag|twofishFlag),
			check: func(err error) bool { _, ok := err.(CipherFlagsError); return ok },
		},
		{
			name:  "noCipherBits",
			input: corrupt(8, sha2Flag),
			check: func(err error) bool { _, ok := err.(CipherFlagsError); return ok },
		},
	}
	for _, test := range tests {
		err := new(Header).Read(bytes.NewReader(test.input))
		if err == nil {
			t.Errorf("%s: Read = nil error", test.name)
		} else if !test.check(err) {
			t.Errorf("%s: Read = %v (%T); wrong error", test.name, err, err)
		}
	}
}

func TestIsSignatureMatches(t *testing.T) {
	valid := new(bytes.Buffer)
	if err := newTestHeader(t, kdbcrypt.RijndaelCipher).Write(valid); err != nil {
		t.Fatal(err)
	}
	if !IsSignatureMatches(valid.Bytes()) {
		t.Error("IsSignatureMatches(valid header) = false")
	}
	if !IsSignatureMatches(valid.Bytes()[:SignatureSize]) {
		t.Error("IsSignatureMatches(first 16 bytes) = false")
	}
	if IsSignatureMatches(valid.Bytes()[:SignatureSize-1]) {
		t.Error("IsSignatureMatches(15 bytes) = true")
	}
	if IsSignatureMatches(nil) {
		t.Error("IsSignatureMatches(nil) = true")
	}

	flipped := make([]byte, valid.Len())
	copy(flipped, valid.Bytes())
	flipped[0] ^= 0xff
	if IsSignatureMatches(flipped) {
		t.Error("IsSignatureMatches(bad magic) = true")
	}

	old := make([]byte, valid.Len())
	copy(old, valid.Bytes())
	binary.LittleEndian.PutUint32(old[12:], 0x00020001)
	if IsSignatureMatches(old) {
		t.Error("IsSignatureMatches(version 0x00020001) = true")
	}

	minor := make([]byte, valid.Len())
	copy(minor, valid.Bytes())
	binary.LittleEndian.PutUint32(minor[12:], fileVersion+1)
	if !IsSignatureMatches(minor) {
		t.Error("IsSignatureMatches(newer minor version) = false")
	}
}

func TestHeaderWriteShortWriter(t *testing.T) {
	h := newTestHeader(t, kdbcrypt.RijndaelCipher)
	w := &limitWriter{n: 20}
	if err := h.Write(w); err != io.ErrShortWrite {
		t.Errorf("Write to short writer = %v; want %v", err, io.ErrShortWrite)
	}
}

type limitWriter struct {
	n int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		n := w.n
		w.n = 0
		return n, io.ErrShortWrite
	}
	w.n -= len(p)
	return len(p), nil
}
