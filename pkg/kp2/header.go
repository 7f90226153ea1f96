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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"zombiezen.com/go/kdbcodec/pkg/kdf"
)

// File header magic numbers
const (
	magic1 = 0x9aa2d903
	magic2 = 0xb54bfb67

	fileVersion3         = 0x00030001
	fileVersion4         = 0x00040000
	fileVersion41        = 0x00040001
	fileVersionMajorMask = 0xffff0000
)

// Outer header field IDs
const (
	fieldEndOfHeader        = 0
	fieldComment            = 1
	fieldCipherID           = 2
	fieldCompressionFlags   = 3
	fieldMasterSeed         = 4
	fieldTransformSeed      = 5
	fieldTransformRounds    = 6
	fieldEncryptionIV       = 7
	fieldProtectedStreamKey = 8
	fieldStreamStartBytes   = 9
	fieldInnerStreamID      = 10
	fieldKDFParameters      = 11
	fieldPublicCustomData   = 12
)

// Compression algorithm IDs
const (
	CompressionNone uint32 = 0
	CompressionGzip uint32 = 1
)

// Content cipher UUIDs
var (
	CipherAES256 = [16]byte{
		0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50,
		0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff,
	}
	CipherTwofish = [16]byte{
		0xad, 0x68, 0xf2, 0x9f, 0x57, 0x6f, 0x4b, 0xb9,
		0xa3, 0x6a, 0xd4, 0x7a, 0xf9, 0x65, 0x34, 0x6c,
	}
	CipherChaCha20 = [16]byte{
		0xd6, 0x03, 0x8a, 0x2b, 0x8b, 0x6f, 0x4c, 0xb5,
		0xa5, 0x24, 0x33, 0x9a, 0x31, 0xdb, 0xb5, 0x9a,
	}
)

// Key derivation function UUIDs
var (
	kdfAES = [16]byte{
		0xc9, 0xd9, 0xf3, 0x9a, 0x62, 0x8a, 0x44, 0x60,
		0xbf, 0x74, 0x0d, 0x08, 0xc1, 0x8a, 0x4f, 0xea,
	}
	kdfArgon2d = [16]byte{
		0xef, 0x63, 0x6d, 0xdf, 0x8c, 0x29, 0x44, 0x4b,
		0x91, 0xf7, 0xa9, 0xa4, 0x03, 0xe3, 0x0a, 0x0c,
	}
	kdfArgon2id = [16]byte{
		0x9e, 0x29, 0x8b, 0x19, 0x56, 0xdb, 0x47, 0x73,
		0xb2, 0x3d, 0xfc, 0x3e, 0xc6, 0xf0, 0xa1, 0xe6,
	}
)

// SignatureSize is the number of bytes IsSignatureMatches inspects.
const SignatureSize = 12

// IsSignatureMatches reports whether prefix starts with the two KDBX
// magic words and a supported major version. It is the cheap sniff
// used for format auto-detection and never returns an error.
func IsSignatureMatches(prefix []byte) bool {
	if len(prefix) < SignatureSize {
		return false
	}
	sig1 := binary.LittleEndian.Uint32(prefix)
	sig2 := binary.LittleEndian.Uint32(prefix[4:])
	if sig1 != magic1 || sig2 != magic2 {
		return false
	}
	switch binary.LittleEndian.Uint32(prefix[8:]) & fileVersionMajorMask {
	case fileVersion3 & fileVersionMajorMask, fileVersion4 & fileVersionMajorMask:
		return true
	default:
		return false
	}
}

// A Header holds the plaintext prelude of a KDBX file. Version 3 keys
// its KDF with the TransformSeed/TransformRounds pair; version 4
// carries a typed parameter dictionary instead and moves the inner
// stream fields into the encrypted inner header.
type Header struct {
	Version     uint32
	CipherID    [16]byte
	Compression uint32
	MasterSeed  []byte
	IV          []byte
	Comment     []byte

	// Version 3 fields
	TransformSeed      []byte
	TransformRounds    uint64
	ProtectedStreamKey []byte
	StreamStartBytes   []byte
	InnerStreamID      uint32

	// Version 4 fields
	KDFParameters    *VariantMap
	PublicCustomData *VariantMap

	raw []byte // exact bytes as read or last written, for hashing
}

// MajorVersion returns 3 or 4.
func (h *Header) MajorVersion() int {
	return int(h.Version >> 16)
}

// Raw returns the exact serialized header bytes, which the integrity
// checks are computed over.
func (h *Header) Raw() []byte { return h.raw }

// ReadHeader parses the outer header, retaining the raw bytes for the
// integrity checks that follow it.
func ReadHeader(r io.Reader) (*Header, error) {
	rec := &recordingReader{r: r}
	h := new(Header)
	var sig [12]byte
	if _, err := io.ReadFull(rec, sig[:]); err != nil {
		return nil, ErrPrematureEnd
	}
	if binary.LittleEndian.Uint32(sig[:]) != magic1 || binary.LittleEndian.Uint32(sig[4:]) != magic2 {
		return nil, ErrWrongSignature
	}
	h.Version = binary.LittleEndian.Uint32(sig[8:])
	switch h.Version & fileVersionMajorMask {
	case fileVersion3 & fileVersionMajorMask, fileVersion4 & fileVersionMajorMask:
	default:
		return nil, VersionError(h.Version)
	}
	if err := h.readFields(rec); err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	h.raw = rec.buf
	return h, nil
}

func (h *Header) readFields(r io.Reader) error {
	v4 := h.MajorVersion() >= 4
	for {
		var id uint8
		var size int
		if v4 {
			var hdr [5]byte
			if _, err := io.ReadFull(r, hdr[:]); err != nil {
				return ErrPrematureEnd
			}
			id = hdr[0]
			size = int(binary.LittleEndian.Uint32(hdr[1:]))
		} else {
			var hdr [3]byte
			if _, err := io.ReadFull(r, hdr[:]); err != nil {
				return ErrPrematureEnd
			}
			id = hdr[0]
			size = int(binary.LittleEndian.Uint16(hdr[1:]))
		}
		if size < 0 {
			return &HeaderFieldError{ID: id, Reason: "negative size"}
		}
		val := make([]byte, size)
		if _, err := io.ReadFull(r, val); err != nil {
			return ErrPrematureEnd
		}
		if id == fieldEndOfHeader {
			return nil
		}
		if err := h.setField(id, val); err != nil {
			return err
		}
	}
}

func (h *Header) setField(id uint8, val []byte) error {
	v4 := h.MajorVersion() >= 4
	switch id {
	case fieldComment:
		h.Comment = val
	case fieldCipherID:
		if len(val) != 16 {
			return &HeaderFieldError{ID: id, Reason: fmt.Sprintf("cipher ID is %d bytes, should be 16", len(val))}
		}
		copy(h.CipherID[:], val)
	case fieldCompressionFlags:
		if len(val) != 4 {
			return &HeaderFieldError{ID: id, Reason: "compression flags must be 4 bytes"}
		}
		h.Compression = binary.LittleEndian.Uint32(val)
	case fieldMasterSeed:
		if len(val) != 32 {
			return &HeaderFieldError{ID: id, Reason: fmt.Sprintf("master seed is %d bytes, should be 32", len(val))}
		}
		h.MasterSeed = val
	case fieldTransformSeed:
		if v4 {
			return &HeaderFieldError{ID: id, Reason: "transform seed is a version 3 field"}
		}
		h.TransformSeed = val
	case fieldTransformRounds:
		if v4 {
			return &HeaderFieldError{ID: id, Reason: "transform rounds is a version 3 field"}
		}
		if len(val) != 8 {
			return &HeaderFieldError{ID: id, Reason: "transform rounds must be 8 bytes"}
		}
		h.TransformRounds = binary.LittleEndian.Uint64(val)
	case fieldEncryptionIV:
		h.IV = val
	case fieldProtectedStreamKey:
		if v4 {
			return &HeaderFieldError{ID: id, Reason: "protected stream key is a version 3 field"}
		}
		h.ProtectedStreamKey = val
	case fieldStreamStartBytes:
		if v4 {
			return &HeaderFieldError{ID: id, Reason: "stream start bytes is a version 3 field"}
		}
		h.StreamStartBytes = val
	case fieldInnerStreamID:
		if v4 {
			return &HeaderFieldError{ID: id, Reason: "inner stream ID is a version 3 field"}
		}
		if len(val) != 4 {
			return &HeaderFieldError{ID: id, Reason: "inner stream ID must be 4 bytes"}
		}
		h.InnerStreamID = binary.LittleEndian.Uint32(val)
	case fieldKDFParameters:
		if !v4 {
			return &HeaderFieldError{ID: id, Reason: "KDF parameters is a version 4 field"}
		}
		m, err := parseVariantMap(val)
		if err != nil {
			return err
		}
		h.KDFParameters = m
	case fieldPublicCustomData:
		if !v4 {
			return &HeaderFieldError{ID: id, Reason: "public custom data is a version 4 field"}
		}
		m, err := parseVariantMap(val)
		if err != nil {
			return err
		}
		h.PublicCustomData = m
	default:
		// Skip unknown fields so minor version bumps stay readable.
	}
	return nil
}

func (h *Header) validate() error {
	if h.MasterSeed == nil || h.IV == nil || h.CipherID == ([16]byte{}) {
		return errMissingField
	}
	if h.MajorVersion() >= 4 {
		if h.KDFParameters == nil {
			return errMissingField
		}
	} else {
		if h.TransformSeed == nil || h.ProtectedStreamKey == nil || h.StreamStartBytes == nil {
			return errMissingField
		}
	}
	return nil
}

// Write serializes the header to w and records the emitted bytes for
// the integrity values computed over them.
func (h *Header) Write(w io.Writer) error {
	buf := new(bytes.Buffer)
	b4 := make([]byte, 4)
	binary.LittleEndian.PutUint32(b4, magic1)
	buf.Write(b4)
	binary.LittleEndian.PutUint32(b4, magic2)
	buf.Write(b4)
	binary.LittleEndian.PutUint32(b4, h.Version)
	buf.Write(b4)

	v4 := h.MajorVersion() >= 4
	field := func(id uint8, val []byte) {
		buf.WriteByte(id)
		if v4 {
			binary.LittleEndian.PutUint32(b4, uint32(len(val)))
			buf.Write(b4)
		} else {
			binary.LittleEndian.PutUint16(b4[:2], uint16(len(val)))
			buf.Write(b4[:2])
		}
		buf.Write(val)
	}

	if h.Comment != nil {
		field(fieldComment, h.Comment)
	}
	field(fieldCipherID, h.CipherID[:])
	binary.LittleEndian.PutUint32(b4, h.Compression)
	field(fieldCompressionFlags, append([]byte(nil), b4...))
	field(fieldMasterSeed, h.MasterSeed)
	if v4 {
		field(fieldEncryptionIV, h.IV)
		field(fieldKDFParameters, h.KDFParameters.marshal())
		if h.PublicCustomData != nil {
			field(fieldPublicCustomData, h.PublicCustomData.marshal())
		}
	} else {
		field(fieldTransformSeed, h.TransformSeed)
		b8 := make([]byte, 8)
		binary.LittleEndian.PutUint64(b8, h.TransformRounds)
		field(fieldTransformRounds, b8)
		field(fieldEncryptionIV, h.IV)
		field(fieldProtectedStreamKey, h.ProtectedStreamKey)
		field(fieldStreamStartBytes, h.StreamStartBytes)
		binary.LittleEndian.PutUint32(b4, h.InnerStreamID)
		field(fieldInnerStreamID, append([]byte(nil), b4...))
	}
	field(fieldEndOfHeader, []byte("\r\n\r\n"))

	h.raw = append([]byte(nil), buf.Bytes()...)
	_, err := w.Write(buf.Bytes())
	return err
}

// KDF names used inside the version 4 parameter dictionary
const (
	kdfParamUUID        = "$UUID"
	kdfParamRounds      = "R"
	kdfParamSeed        = "S" // seed for AES, salt for Argon2
	kdfParamParallelism = "P"
	kdfParamMemory      = "M"
	kdfParamIterations  = "I"
	kdfParamVersion     = "V"
)

// kdfParams resolves the header's key derivation settings into a
// runnable KDF.
func (h *Header) kdfParams() (kdf.Params, error) {
	if h.MajorVersion() < 4 {
		p := &kdf.AESParams{Rounds: h.TransformRounds}
		copy(p.Seed[:], h.TransformSeed)
		return p, nil
	}
	raw, ok := h.KDFParameters.Bytes(kdfParamUUID)
	if !ok || len(raw) != 16 {
		return nil, errMissingField
	}
	var id [16]byte
	copy(id[:], raw)
	switch id {
	case kdfAES:
		rounds, ok := h.KDFParameters.Uint64(kdfParamRounds)
		if !ok {
			return nil, errMissingField
		}
		seed, ok := h.KDFParameters.Bytes(kdfParamSeed)
		if !ok || len(seed) != 32 {
			return nil, errMissingField
		}
		p := &kdf.AESParams{Rounds: rounds}
		copy(p.Seed[:], seed)
		return p, nil
	case kdfArgon2d, kdfArgon2id:
		variant := kdf.Argon2d
		if id == kdfArgon2id {
			variant = kdf.Argon2id
		}
		salt, ok := h.KDFParameters.Bytes(kdfParamSeed)
		if !ok {
			return nil, errMissingField
		}
		mem, ok := h.KDFParameters.Uint64(kdfParamMemory)
		if !ok {
			return nil, errMissingField
		}
		iters, ok := h.KDFParameters.Uint64(kdfParamIterations)
		if !ok {
			return nil, errMissingField
		}
		par, ok := h.KDFParameters.Uint32(kdfParamParallelism)
		if !ok {
			return nil, errMissingField
		}
		version, ok := h.KDFParameters.Uint32(kdfParamVersion)
		if !ok {
			return nil, errMissingField
		}
		return &kdf.Argon2Params{
			Variant:     variant,
			Salt:        append([]byte(nil), salt...),
			MemoryKiB:   mem / 1024,
			Iterations:  iters,
			Parallelism: par,
			Version:     version,
		}, nil
	default:
		return nil, &UnsupportedError{Kind: "kdf", ID: id}
	}
}

// setKDFParams writes p back into the header's derivation fields.
func (h *Header) setKDFParams(p kdf.Params) error {
	if h.MajorVersion() < 4 {
		a, ok := p.(*kdf.AESParams)
		if !ok {
			return &UnsupportedError{Kind: "kdf"}
		}
		h.TransformSeed = append([]byte(nil), a.Seed[:]...)
		h.TransformRounds = a.Rounds
		return nil
	}
	m := NewVariantMap()
	switch a := p.(type) {
	case *kdf.AESParams:
		m.SetBytes(kdfParamUUID, kdfAES[:])
		m.SetUint64(kdfParamRounds, a.Rounds)
		m.SetBytes(kdfParamSeed, a.Seed[:])
	case *kdf.Argon2Params:
		id := kdfArgon2d
		if a.Variant == kdf.Argon2id {
			id = kdfArgon2id
		}
		m.SetBytes(kdfParamUUID, id[:])
		m.SetBytes(kdfParamSeed, a.Salt)
		m.SetUint64(kdfParamMemory, a.MemoryKiB*1024)
		m.SetUint64(kdfParamIterations, a.Iterations)
		m.SetUint32(kdfParamParallelism, a.Parallelism)
		m.SetUint32(kdfParamVersion, a.Version)
	default:
		return &UnsupportedError{Kind: "kdf"}
	}
	h.KDFParameters = m
	return nil
}

// recordingReader captures everything read through it.
type recordingReader struct {
	r   io.Reader
	buf []byte
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	rr.buf = append(rr.buf, p[:n]...)
	return n, err
}
