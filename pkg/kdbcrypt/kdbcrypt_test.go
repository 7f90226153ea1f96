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

package kdbcrypt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"zombiezen.com/go/kdbcodec/pkg/progress"
)

func testParams(c Cipher) *Params {
	p := &Params{
		Key: Key{
			Password:        []byte("swordfish"),
			TransformRounds: 64,
		},
		Cipher: c,
	}
	for i := range p.Key.MasterSeed {
		p.Key.MasterSeed[i] = byte(i)
	}
	for i := range p.Key.TransformSeed {
		p.Key.TransformSeed[i] = byte(i * 3)
	}
	for i := range p.IV {
		p.IV[i] = byte(i * 7)
	}
	return p
}

func TestEncryptDecrypt(t *testing.T) {
	plaintexts := [][]byte{
		nil,
		[]byte("a"),
		[]byte("exactly sixteen!"),
		bytes.Repeat([]byte("0123456789abcdef"), 100),
	}
	for _, c := range []Cipher{RijndaelCipher, TwofishCipher} {
		for _, want := range plaintexts {
			params := testParams(c)
			ct := new(bytes.Buffer)
			w, err := NewEncrypter(ct, params, nil)
			if err != nil {
				t.Fatalf("%v: NewEncrypter: %v", c, err)
			}
			if _, err := w.Write(want); err != nil {
				t.Fatalf("%v: Write: %v", c, err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("%v: Close: %v", c, err)
			}
			if ct.Len()%BlockSize != 0 {
				t.Errorf("%v: ciphertext size %d not a multiple of %d", c, ct.Len(), BlockSize)
			}

			r, err := NewDecrypter(bytes.NewReader(ct.Bytes()), params, nil)
			if err != nil {
				t.Fatalf("%v: NewDecrypter: %v", c, err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("%v: ReadAll: %v", c, err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("%v: round trip of %d bytes: got %d bytes", c, len(want), len(got))
			}
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	params := testParams(RijndaelCipher)
	ct := new(bytes.Buffer)
	w, err := NewEncrypter(ct, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "attack at dawn")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	bad := testParams(RijndaelCipher)
	bad.Key.Password = []byte("letmein")
	r, err := NewDecrypter(bytes.NewReader(ct.Bytes()), bad, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Error("decrypt with wrong key did not fail")
	}
}

func TestUnknownCipher(t *testing.T) {
	params := testParams(Cipher(99))
	if _, err := NewEncrypter(io.Discard, params, nil); err != ErrUnknownCipher {
		t.Errorf("NewEncrypter error = %v; want %v", err, ErrUnknownCipher)
	}
}

func TestComputeDeterministic(t *testing.T) {
	params := testParams(RijndaelCipher)
	k1, err := params.Key.Compute(nil)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := params.Key.Compute(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("Compute is not deterministic")
	}
	if len(k1) != 32 {
		t.Errorf("len(ComputedKey) = %d; want 32", len(k1))
	}
}

func TestComputedKeyShortCircuit(t *testing.T) {
	params := testParams(RijndaelCipher)
	ck, err := params.Key.Compute(nil)
	if err != nil {
		t.Fatal(err)
	}
	ct := new(bytes.Buffer)
	w, err := NewEncrypter(ct, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "hello")
	w.Close()

	// Same ciphertext must decrypt with only the computed key.
	reuse := &Params{Cipher: RijndaelCipher, IV: params.IV, ComputedKey: ck}
	r, err := NewDecrypter(bytes.NewReader(ct.Bytes()), reuse, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("decrypted %q; want %q", got, "hello")
	}
}

func TestComputeCancelled(t *testing.T) {
	params := testParams(RijndaelCipher)
	params.Key.TransformRounds = 1 << 20
	prog := progress.New(1)
	prog.Cancel()
	if _, err := params.Key.Compute(prog); err != progress.ErrCancelled {
		t.Errorf("Compute error = %v; want %v", err, progress.ErrCancelled)
	}
}

func TestKeyDependence(t *testing.T) {
	base := testParams(RijndaelCipher)
	k0, err := base.Key.Compute(nil)
	if err != nil {
		t.Fatal(err)
	}
	mutations := []func(*Key){
		func(k *Key) { k.Password = []byte("other") },
		func(k *Key) { k.KeyFileHash = make([]byte, 32) },
		func(k *Key) { k.MasterSeed[0] ^= 1 },
		func(k *Key) { k.TransformSeed[0] ^= 1 },
		func(k *Key) { k.TransformRounds++ },
	}
	for i, mutate := range mutations {
		p := testParams(RijndaelCipher)
		mutate(&p.Key)
		k, err := p.Key.Compute(nil)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(k, k0) {
			t.Errorf("mutation %d did not change the computed key", i)
		}
	}
}

func TestReadKeyFile(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 32)
	hexKey := strings.Repeat("ab", 32)
	long := []byte("this is not a fixed-size key file at all")
	longHash := sha256.Sum256(long)

	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{"raw32", raw, raw},
		{"hex64", []byte(hexKey), mustHex(hexKey)},
		{"other", long, longHash[:]},
	}
	for _, test := range tests {
		got, err := ReadKeyFile(bytes.NewReader(test.data))
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if !bytes.Equal(got, test.want) {
			t.Errorf("%s: hash = %x; want %x", test.name, got, test.want)
		}
	}
}

func TestReadKeyFileBadHex(t *testing.T) {
	// 64 bytes but not hex: hash like any other file.
	data := bytes.Repeat([]byte("zy"), 32)
	want := sha256.Sum256(data)
	got, err := ReadKeyFile(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want[:]) {
		t.Errorf("hash = %x; want %x", got, want)
	}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
