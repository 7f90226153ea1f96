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

// Package kdbcrypt encrypts and decrypts data using the KeePass1
// encryption scheme: a composite key built from password and key file,
// stretched by the AES transform, driving AES-CBC or Twofish-CBC over
// the container body.
package kdbcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/twofish"

	"zombiezen.com/go/kdbcodec/pkg/kdf"
	"zombiezen.com/go/kdbcodec/pkg/padding"
	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/secbuf"
	"zombiezen.com/go/kdbcodec/pkg/streamcipher"
)

// Errors
var (
	ErrUnknownCipher = errors.New("kdbcrypt: unknown cipher")
	ErrSize          = errors.New("kdbcrypt: data size not a multiple of 16")
)

// BlockSize is the cipher block size in bytes, shared by both
// supported ciphers.
const BlockSize = 16

// Params specifies the encryption/decryption values.
type Params struct {
	Key    Key
	Cipher Cipher
	IV     [16]byte

	// ComputedKey, if non-nil, is used directly and Key is ignored.
	// It lets one derived key drive several operations without paying
	// for the transform rounds again.
	ComputedKey ComputedKey
}

// A Key is the set of parameters used to build the cipher key.
// Password and KeyFileHash are secret; call Erase when done.
type Key struct {
	Password        []byte // optional
	KeyFileHash     []byte // optional; nil or length 32
	MasterSeed      [16]byte
	TransformSeed   [32]byte
	TransformRounds uint32
}

// A ComputedKey is the 32-byte cipher key that results from the full
// key transformation. Call Erase when done.
type ComputedKey []byte

// Erase zeroes the computed key.
func (ck ComputedKey) Erase() {
	secbuf.Wipe(ck)
}

// Compute runs the key transformation: the composite hash of password
// and key file is stretched by the AES transform KDF and folded with
// the master seed. prog is polled between transform chunks.
func (k *Key) Compute(prog *progress.Progress) (ComputedKey, error) {
	base := k.baseHash()
	defer secbuf.Wipe(base[:])
	p := &kdf.AESParams{Seed: k.TransformSeed, Rounds: uint64(k.TransformRounds)}
	tk, err := p.Derive(base[:], prog)
	if err != nil {
		return nil, err
	}
	sum := sha256.New()
	sum.Write(k.MasterSeed[:])
	sum.Write(tk.Bytes())
	tk.Erase()
	return ComputedKey(sum.Sum(nil)), nil
}

// baseHash returns the composite key hash prior to transform rounds.
func (k *Key) baseHash() [sha256.Size]byte {
	if len(k.KeyFileHash) == 0 {
		return sha256.Sum256(k.Password)
	}
	if len(k.Password) == 0 {
		var a [sha256.Size]byte
		copy(a[:], k.KeyFileHash)
		return a
	}
	h := sha256.New()
	p := sha256.Sum256(k.Password)
	h.Write(p[:])
	secbuf.Wipe(p[:])
	h.Write(k.KeyFileHash)
	var a [sha256.Size]byte
	h.Sum(a[:0])
	return a
}

// Erase zeroes the secret fields of the key.
func (k *Key) Erase() {
	secbuf.Wipe(k.Password)
	secbuf.Wipe(k.KeyFileHash)
	secbuf.Wipe(k.MasterSeed[:])
	secbuf.Wipe(k.TransformSeed[:])
	k.TransformRounds = 0
}

// Cipher is a cipher algorithm.
type Cipher int

// Available ciphers
const (
	RijndaelCipher Cipher = iota
	TwofishCipher
)

func (c Cipher) String() string {
	switch c {
	case RijndaelCipher:
		return "AES-256"
	case TwofishCipher:
		return "Twofish"
	default:
		return "unknown"
	}
}

func (c Cipher) cipher(key []byte) (cipher.Block, error) {
	switch c {
	case RijndaelCipher:
		return aes.NewCipher(key)
	case TwofishCipher:
		return twofish.NewCipher(key)
	default:
		return nil, ErrUnknownCipher
	}
}

func (p *Params) computedKey(prog *progress.Progress) (ComputedKey, error) {
	if p.ComputedKey != nil {
		return p.ComputedKey, nil
	}
	return p.Key.Compute(prog)
}

// NewEncrypter creates a new writer that encrypts to w, polling prog
// between cipher runs. Closing the new writer writes the final, padded
// block but does not close w.
func NewEncrypter(w io.Writer, params *Params, prog *progress.Progress) (io.WriteCloser, error) {
	ck, err := params.computedKey(prog)
	if err != nil {
		return nil, err
	}
	ciph, err := params.Cipher.cipher(ck)
	if err != nil {
		return nil, err
	}
	e := cipher.NewCBCEncrypter(ciph, params.IV[:])
	return streamcipher.NewWriter(w, e, padding.PKCS7, prog), nil
}

// NewDecrypter creates a new reader that decrypts and strips padding
// from r, polling prog between cipher runs.
func NewDecrypter(r io.Reader, params *Params, prog *progress.Progress) (io.Reader, error) {
	ck, err := params.computedKey(prog)
	if err != nil {
		return nil, err
	}
	ciph, err := params.Cipher.cipher(ck)
	if err != nil {
		return nil, err
	}
	d := cipher.NewCBCDecrypter(ciph, params.IV[:])
	return streamcipher.NewReader(r, d, padding.PKCS7, prog), nil
}

// ReadKeyFile reads a key file and returns its hash for use in a Key.
// A 32-byte file is taken verbatim, a 64-byte file is tried as hex,
// and anything else is hashed with SHA-256.
func ReadKeyFile(r io.Reader) ([]byte, error) {
	const maxSize = 64
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: maxSize + 1})
	if err != nil {
		return data, err
	}
	switch len(data) {
	case 32:
		return data, nil
	case 64:
		h := make([]byte, hex.DecodedLen(len(data)))
		if _, err := hex.Decode(h, data); err == nil {
			return h, nil
		}
	}
	s := sha256.New()
	s.Write(data)
	if _, err := io.Copy(s, r); err != nil {
		return nil, err
	}
	return s.Sum(nil), nil
}
