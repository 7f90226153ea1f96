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

package pwgen

import (
	"strings"
	"testing"

	"zombiezen.com/go/kdbcodec/pkg/fakerand"
)

func TestPassword(t *testing.T) {
	for _, n := range []int{1, 16, 200} {
		pw, err := Password(fakerand.New(), n, Alphanumeric)
		if err != nil {
			t.Fatalf("Password(%d): %v", n, err)
		}
		if len(pw) != n {
			t.Errorf("len(Password(%d)) = %d", n, len(pw))
		}
		for _, c := range pw {
			if !strings.ContainsRune(Alphanumeric, c) {
				t.Errorf("Password(%d) contains %q, not in set", n, c)
			}
		}
	}
}

func TestPasswordErrors(t *testing.T) {
	if _, err := Password(fakerand.New(), 0, Alphanumeric); err == nil {
		t.Error("Password(0) did not fail")
	}
	if _, err := Password(fakerand.New(), 8, ""); err == nil {
		t.Error("Password with empty set did not fail")
	}
}

func TestPasswordDeterministic(t *testing.T) {
	a, err := Password(fakerand.NewSeeded(7), 24, Alphanumeric)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Password(fakerand.NewSeeded(7), 24, Alphanumeric)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same seed produced %q and %q", a, b)
	}
}

func TestLoadWordList(t *testing.T) {
	const dict = "apple\nbanana\ncat's\n\ncherry\ndog's\n"
	wl, err := LoadWordList(strings.NewReader(dict))
	if err != nil {
		t.Fatal(err)
	}
	wantWords := []string{"apple", "banana", "cherry"}
	wantPoss := []string{"cat's", "dog's"}
	if len(wl.Words) != len(wantWords) {
		t.Fatalf("Words = %v; want %v", wl.Words, wantWords)
	}
	for i := range wantWords {
		if wl.Words[i] != wantWords[i] {
			t.Errorf("Words[%d] = %q; want %q", i, wl.Words[i], wantWords[i])
		}
	}
	if len(wl.Possessives) != len(wantPoss) {
		t.Fatalf("Possessives = %v; want %v", wl.Possessives, wantPoss)
	}
}

func TestPassphrase(t *testing.T) {
	wl := &WordList{
		Words:       []string{"apple", "banana", "cherry"},
		Possessives: []string{"cat's"},
	}
	phrase, err := Passphrase(fakerand.New(), wl, 5, false)
	if err != nil {
		t.Fatal(err)
	}
	words := strings.Split(phrase, " ")
	if len(words) != 5 {
		t.Fatalf("Passphrase(5) = %q; want 5 words", phrase)
	}
	for _, w := range words {
		if strings.HasSuffix(w, "'s") {
			t.Errorf("possessive %q in phrase without includePossessives", w)
		}
	}
}

func TestPassphraseErrors(t *testing.T) {
	wl := &WordList{Words: []string{"apple"}}
	if _, err := Passphrase(fakerand.New(), wl, 0, false); err == nil {
		t.Error("Passphrase(0) did not fail")
	}
	if _, err := Passphrase(fakerand.New(), &WordList{}, 3, true); err == nil {
		t.Error("Passphrase with empty list did not fail")
	}
}
