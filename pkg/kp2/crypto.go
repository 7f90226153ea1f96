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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"

	"golang.org/x/crypto/twofish"

	"zombiezen.com/go/kdbcodec/pkg/padding"
	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/secbuf"
	"zombiezen.com/go/kdbcodec/pkg/streamcipher"
)

// Inner random stream IDs
const (
	innerStreamNone     uint32 = 0
	innerStreamARC4     uint32 = 1
	innerStreamSalsa20  uint32 = 2
	innerStreamChaCha20 uint32 = 3
)

// salsa20Nonce is the fixed nonce every KDBX client uses for the
// Salsa20 inner stream.
var salsa20Nonce = [8]byte{0xe8, 0x30, 0x09, 0x4b, 0x97, 0x20, 0x5d, 0x2a}

// compositeKey folds the user credentials into the 32-byte composite:
// SHA-256 over the password hash followed by the key file hash,
// hashed once more. Unlike the 1.x scheme, the outer hash is applied
// even when only one credential is present.
func compositeKey(password, keyFileHash []byte) *secbuf.Buffer {
	h := sha256.New()
	if len(password) > 0 {
		p := sha256.Sum256(password)
		h.Write(p[:])
		secbuf.Wipe(p[:])
	}
	if len(keyFileHash) > 0 {
		h.Write(keyFileHash)
	}
	return secbuf.Take(h.Sum(nil))
}

// masterKey is the result of the full key transformation.
type masterKey struct {
	cipherKey *secbuf.Buffer // 32 bytes
	hmacBase  *secbuf.Buffer // 64 bytes, version 4 only
}

func (mk *masterKey) erase() {
	mk.cipherKey.Erase()
	mk.hmacBase.Erase()
}

// deriveMasterKey stretches the composite key with the header's KDF
// and folds in the master seed. For version 4 it also derives the base
// key for the block MACs. prog is polled during the transform.
func deriveMasterKey(h *Header, composite *secbuf.Buffer, prog *progress.Progress) (*masterKey, error) {
	params, err := h.kdfParams()
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	transformed, err := params.Derive(composite.Bytes(), prog)
	if err != nil {
		return nil, err
	}
	defer transformed.Erase()

	mk := new(masterKey)
	ck := sha256.New()
	ck.Write(h.MasterSeed)
	ck.Write(transformed.Bytes())
	mk.cipherKey = secbuf.Take(ck.Sum(nil))
	if h.MajorVersion() >= 4 {
		hb := sha512.New()
		hb.Write(h.MasterSeed)
		hb.Write(transformed.Bytes())
		hb.Write([]byte{0x01})
		mk.hmacBase = secbuf.Take(hb.Sum(nil))
	}
	return mk, nil
}

// contentBlockCipher returns the block cipher the header selects, or
// nil if the header selects the ChaCha20 stream cipher instead.
func contentBlockCipher(id [16]byte, key []byte) (cipher.Block, error) {
	switch id {
	case CipherAES256:
		return aes.NewCipher(key)
	case CipherTwofish:
		return twofish.NewCipher(key)
	case CipherChaCha20:
		return nil, nil
	default:
		return nil, &UnsupportedError{Kind: "cipher", ID: id}
	}
}

// decryptContent decrypts the content section with the header's
// cipher selection.
func decryptContent(h *Header, key *secbuf.Buffer, data []byte, prog *progress.Progress) ([]byte, error) {
	block, err := contentBlockCipher(h.CipherID, key.Bytes())
	if err != nil {
		return nil, err
	}
	if block == nil {
		s, err := streamcipher.NewChaCha20(key.Bytes(), h.IV)
		if err != nil {
			return nil, err
		}
		return s.Decrypt(data, prog)
	}
	if len(h.IV) != block.BlockSize() {
		return nil, &HeaderFieldError{ID: fieldEncryptionIV, Reason: "IV size does not match cipher block size"}
	}
	mode := cipher.NewCBCDecrypter(block, h.IV)
	return streamcipher.DecryptBlocks(data, mode, padding.PKCS7, prog)
}

// encryptContent encrypts the content section with the header's
// cipher selection.
func encryptContent(h *Header, key *secbuf.Buffer, data []byte, prog *progress.Progress) ([]byte, error) {
	block, err := contentBlockCipher(h.CipherID, key.Bytes())
	if err != nil {
		return nil, err
	}
	if block == nil {
		s, err := streamcipher.NewChaCha20(key.Bytes(), h.IV)
		if err != nil {
			return nil, err
		}
		return s.Encrypt(data, prog)
	}
	if len(h.IV) != block.BlockSize() {
		return nil, &HeaderFieldError{ID: fieldEncryptionIV, Reason: "IV size does not match cipher block size"}
	}
	mode := cipher.NewCBCEncrypter(block, h.IV)
	return streamcipher.EncryptBlocks(data, mode, padding.PKCS7, prog)
}

// ivSize returns the IV width the selected cipher needs.
func ivSize(id [16]byte) int {
	if id == CipherChaCha20 {
		return 12
	}
	return 16
}

// newInnerStream builds the cipher that protects in-memory secret
// values, keyed from the raw stream key carried in the header (version
// 3) or inner header (version 4).
func newInnerStream(id uint32, streamKey []byte) (streamcipher.Stream, error) {
	switch id {
	case innerStreamNone:
		return nullStream{}, nil
	case innerStreamSalsa20:
		var key [32]byte
		k := sha256.Sum256(streamKey)
		copy(key[:], k[:])
		defer secbuf.Wipe(key[:])
		return streamcipher.NewSalsa20(&key, &salsa20Nonce), nil
	case innerStreamChaCha20:
		k := sha512.Sum512(streamKey)
		defer secbuf.Wipe(k[:])
		return streamcipher.NewChaCha20(k[:32], k[32:44])
	default:
		var uid [16]byte
		uid[0] = byte(id)
		return nil, &UnsupportedError{Kind: "inner stream", ID: uid}
	}
}

// nullStream is the identity cipher used when a file declares no
// inner stream.
type nullStream struct{}

func (nullStream) Encrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	if err := prog.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

func (nullStream) Decrypt(b []byte, prog *progress.Progress) ([]byte, error) {
	if err := prog.Err(); err != nil {
		return nil, err
	}
	return b, nil
}
