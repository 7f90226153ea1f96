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
	"encoding/binary"
	"io"

	"zombiezen.com/go/kdbcodec/pkg/kdbcrypt"
)

// File header magic numbers
const (
	magic1 = 0x9aa2d903
	magic2 = 0xb54bfb65

	fileVersion             = 0x00030002
	fileVersionCriticalMask = 0xffffff00
)

// Encryption flags
const (
	sha2Flag     uint32 = 1
	rijndaelFlag uint32 = 2
	twofishFlag  uint32 = 8
)

// HeaderSize is the number of bytes the fixed file header occupies.
const HeaderSize = 124

// SignatureSize is the number of bytes IsSignatureMatches inspects.
const SignatureSize = 16

// A Header holds the plaintext prelude of a KDB file: the cipher
// selection, the key-derivation seeds, the record counts, and the
// content hash verified after decryption.
type Header struct {
	Cipher          kdbcrypt.Cipher
	MasterSeed      [16]byte
	EncryptionIV    [16]byte
	NumGroups       uint32
	NumEntries      uint32
	ContentHash     [32]byte
	TransformSeed   [32]byte
	TransformRounds uint32
}

// IsSignatureMatches reports whether prefix starts with the two KDB
// magic words and a version whose masked value is supported. It is the
// cheap sniff used for format auto-detection and never returns an
// error: anything short or corrupt is simply not a match.
func IsSignatureMatches(prefix []byte) bool {
	if len(prefix) < SignatureSize {
		return false
	}
	sig1 := binary.LittleEndian.Uint32(prefix)
	sig2 := binary.LittleEndian.Uint32(prefix[4:])
	version := binary.LittleEndian.Uint32(prefix[12:])
	return sig1 == magic1 && sig2 == magic2 &&
		version&fileVersionCriticalMask == fileVersion&fileVersionCriticalMask
}

// Read parses the fixed header. Signatures and the masked version are
// checked before anything else is trusted; the flags word must select
// exactly one cipher. No decryption is attempted on a rejected header.
func (h *Header) Read(r io.Reader) error {
	rr := reader{r: r}
	signature1 := rr.readUint32()
	signature2 := rr.readUint32()
	flags := rr.readUint32()
	version := rr.readUint32()
	rr.readFull(h.MasterSeed[:])
	rr.readFull(h.EncryptionIV[:])
	h.NumGroups = rr.readUint32()
	h.NumEntries = rr.readUint32()
	rr.readFull(h.ContentHash[:])
	rr.readFull(h.TransformSeed[:])
	h.TransformRounds = rr.readUint32()
	if rr.err != nil {
		if rr.err == io.EOF || rr.err == io.ErrUnexpectedEOF {
			return ErrPrematureEnd
		}
		return rr.err
	}
	if signature1 != magic1 || signature2 != magic2 {
		return ErrWrongSignature
	}
	if version&fileVersionCriticalMask != fileVersion&fileVersionCriticalMask {
		return VersionError(version)
	}
	c, err := cipherFromFlags(flags)
	if err != nil {
		return err
	}
	h.Cipher = c
	return nil
}

// cipherFromFlags resolves the single active cipher. Zero cipher bits
// and contradictory cipher bits are both rejected.
func cipherFromFlags(flags uint32) (kdbcrypt.Cipher, error) {
	switch flags & (rijndaelFlag | twofishFlag) {
	case rijndaelFlag:
		return kdbcrypt.RijndaelCipher, nil
	case twofishFlag:
		return kdbcrypt.TwofishCipher, nil
	default:
		return 0, CipherFlagsError(flags)
	}
}

func encryptionFlags(c kdbcrypt.Cipher) uint32 {
	switch c {
	case kdbcrypt.TwofishCipher:
		return sha2Flag | twofishFlag
	default:
		return sha2Flag | rijndaelFlag
	}
}

// Write emits the header with fixed field order and widths, matching
// Read byte for byte. The flags word is recomputed from Cipher rather
// than echoed.
func (h *Header) Write(w io.Writer) error {
	ww := writer{w: w}
	ww.writeUint32(magic1)
	ww.writeUint32(magic2)
	ww.writeUint32(encryptionFlags(h.Cipher))
	ww.writeUint32(fileVersion)
	ww.write(h.MasterSeed[:])
	ww.write(h.EncryptionIV[:])
	ww.writeUint32(h.NumGroups)
	ww.writeUint32(h.NumEntries)
	ww.write(h.ContentHash[:])
	ww.write(h.TransformSeed[:])
	ww.writeUint32(h.TransformRounds)
	return ww.err
}

// RandomizeSeeds replaces the IV, master seed, and transform seed with
// fresh random bytes. It runs before every save so no two saved files
// share seed material.
func (h *Header) RandomizeSeeds(rand io.Reader) error {
	rr := reader{r: rand}
	rr.readFull(h.MasterSeed[:])
	rr.readFull(h.EncryptionIV[:])
	rr.readFull(h.TransformSeed[:])
	return rr.err
}
