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

// Package pwgen generates random passwords and passphrases.
package pwgen

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

// Character sets for Password.
const (
	UpperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	LowerLetters = "abcdefghijklmnopqrstuvwxyz"
	Digits       = "0123456789"
	Symbols      = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// Alphanumeric is the default password character set.
const Alphanumeric = UpperLetters + LowerLetters + Digits

var (
	errEmptyCharset  = errors.New("pwgen: empty character set")
	errEmptyWordList = errors.New("pwgen: empty word list")
	errBadLength     = errors.New("pwgen: length must be positive")
)

// Password returns a random string of n characters drawn uniformly
// from set. rng may be nil to use crypto/rand.
func Password(rng io.Reader, n int, set string) (string, error) {
	if n < 1 {
		return "", errBadLength
	}
	if len(set) == 0 {
		return "", errEmptyCharset
	}
	pw := make([]byte, n)
	for i := range pw {
		j, err := randInt(rng, len(set))
		if err != nil {
			return "", err
		}
		pw[i] = set[j]
	}
	return string(pw), nil
}

// A WordList is a passphrase dictionary. Possessive forms are kept
// separate so callers can exclude them.
type WordList struct {
	Words       []string
	Possessives []string
}

// LoadWordList reads a dictionary with one word per line, splitting
// out possessive forms ("cat's").
func LoadWordList(r io.Reader) (*WordList, error) {
	wl := new(WordList)
	s := bufio.NewScanner(r)
	for s.Scan() {
		w := s.Text()
		if w == "" {
			continue
		}
		if strings.HasSuffix(w, "'s") {
			wl.Possessives = append(wl.Possessives, w)
		} else {
			wl.Words = append(wl.Words, w)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return wl, nil
}

// Passphrase returns numWords random space-separated words from the
// list. Possessive forms are included only when includePossessives is
// set. rng may be nil to use crypto/rand.
func Passphrase(rng io.Reader, wl *WordList, numWords int, includePossessives bool) (string, error) {
	if numWords < 1 {
		return "", errBadLength
	}
	max := len(wl.Words)
	if includePossessives {
		max += len(wl.Possessives)
	}
	if max == 0 {
		return "", errEmptyWordList
	}
	var buf bytes.Buffer
	for i := 0; i < numWords; i++ {
		w, err := randInt(rng, max)
		if err != nil {
			return "", err
		}
		if i > 0 {
			buf.WriteByte(' ')
		}
		if w < len(wl.Words) {
			buf.WriteString(wl.Words[w])
		} else {
			buf.WriteString(wl.Possessives[w-len(wl.Words)])
		}
	}
	return buf.String(), nil
}

func randInt(rng io.Reader, n int) (int, error) {
	if rng == nil {
		rng = rand.Reader
	}
	i, err := rand.Int(rng, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}
