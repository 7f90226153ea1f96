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

package fakerand

import (
	"bytes"
	"io"
	"testing"
)

func TestDeterministic(t *testing.T) {
	a := make([]byte, 100)
	b := make([]byte, 100)
	if _, err := io.ReadFull(NewSeeded(3), a); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(NewSeeded(3), b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different streams")
	}
}

func TestSeedsDiffer(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	io.ReadFull(NewSeeded(1), a)
	io.ReadFull(NewSeeded(2), b)
	if bytes.Equal(a, b) {
		t.Error("different seeds produced the same stream")
	}
}

func TestStreamContinues(t *testing.T) {
	// Two reads must continue the stream, not restart it.
	r := NewSeeded(5)
	joined := make([]byte, 64)
	io.ReadFull(NewSeeded(5), joined)
	first := make([]byte, 20)
	second := make([]byte, 44)
	io.ReadFull(r, first)
	io.ReadFull(r, second)
	if !bytes.Equal(joined, append(first, second...)) {
		t.Error("chunked reads diverge from a single read")
	}
}

func TestReadNeverFails(t *testing.T) {
	r := New()
	for _, n := range []int{0, 1, 33, 1000} {
		p := make([]byte, n)
		got, err := r.Read(p)
		if err != nil {
			t.Fatalf("Read(%d): %v", n, err)
		}
		if got != n {
			t.Errorf("Read(%d) = %d", n, got)
		}
	}
}
