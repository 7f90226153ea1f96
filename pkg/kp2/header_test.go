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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zombiezen.com/go/kdbcodec/pkg/fakerand"
	"zombiezen.com/go/kdbcodec/pkg/kdf"
)

func TestVariantMapRoundTrip(t *testing.T) {
	m := NewVariantMap()
	m.SetUint32("u32", 0xdeadbeef)
	m.SetUint64("u64", 1<<40)
	m.SetInt64("i64", -5)
	m.SetBool("yes", true)
	m.SetBool("no", false)
	m.SetString("s", "hello")
	m.SetBytes("b", []byte{1, 2, 3})

	got, err := parseVariantMap(m.marshal())
	require.NoError(t, err)
	require.Equal(t, m.Len(), got.Len())

	u32, ok := got.Uint32("u32")
	assert.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	u64, ok := got.Uint64("u64")
	assert.True(t, ok)
	assert.Equal(t, uint64(1<<40), u64)
	i64, ok := got.Int64("i64")
	assert.True(t, ok)
	assert.Equal(t, int64(-5), i64)
	yes, ok := got.Bool("yes")
	assert.True(t, ok)
	assert.True(t, yes)
	no, ok := got.Bool("no")
	assert.True(t, ok)
	assert.False(t, no)
	s, ok := got.String("s")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)
	b, ok := got.Bytes("b")
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)

	// Typed getters must not cross types.
	_, ok = got.Uint64("u32")
	assert.False(t, ok)
}

func TestVariantMapTruncated(t *testing.T) {
	full := func() []byte {
		m := NewVariantMap()
		m.SetString("name", "value")
		return m.marshal()
	}()
	for n := 0; n < len(full); n++ {
		_, err := parseVariantMap(full[:n])
		assert.Errorf(t, err, "prefix of %d bytes", n)
	}
	_, err := parseVariantMap(full)
	assert.NoError(t, err)
}

func newTestHeader3(t *testing.T) *Header {
	t.Helper()
	h := &Header{
		Version:         fileVersion3,
		CipherID:        CipherAES256,
		Compression:     CompressionGzip,
		TransformRounds: 6000,
		InnerStreamID:   innerStreamSalsa20,
	}
	r := fakerand.New()
	for _, field := range []*[]byte{&h.MasterSeed, &h.TransformSeed, &h.ProtectedStreamKey, &h.StreamStartBytes} {
		*field = make([]byte, 32)
		r.Read(*field)
	}
	h.IV = make([]byte, 16)
	r.Read(h.IV)
	return h
}

func newTestHeader4(t *testing.T) *Header {
	t.Helper()
	h := &Header{
		Version:     fileVersion41,
		CipherID:    CipherChaCha20,
		Compression: CompressionGzip,
	}
	r := fakerand.New()
	h.MasterSeed = make([]byte, 32)
	r.Read(h.MasterSeed)
	h.IV = make([]byte, 12)
	r.Read(h.IV)
	salt := make([]byte, 32)
	r.Read(salt)
	err := h.setKDFParams(&kdf.Argon2Params{
		Variant:     kdf.Argon2id,
		Salt:        salt,
		MemoryKiB:   8,
		Iterations:  1,
		Parallelism: 1,
		Version:     0x13,
	})
	require.NoError(t, err)
	return h
}

func TestHeaderRoundTrip3(t *testing.T) {
	want := newTestHeader3(t)
	buf := new(bytes.Buffer)
	require.NoError(t, want.Write(buf))
	raw := append([]byte(nil), buf.Bytes()...)

	got, err := ReadHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MajorVersion())
	assert.Equal(t, want.CipherID, got.CipherID)
	assert.Equal(t, want.Compression, got.Compression)
	assert.Equal(t, want.MasterSeed, got.MasterSeed)
	assert.Equal(t, want.IV, got.IV)
	assert.Equal(t, want.TransformSeed, got.TransformSeed)
	assert.Equal(t, want.TransformRounds, got.TransformRounds)
	assert.Equal(t, want.ProtectedStreamKey, got.ProtectedStreamKey)
	assert.Equal(t, want.StreamStartBytes, got.StreamStartBytes)
	assert.Equal(t, want.InnerStreamID, got.InnerStreamID)
	assert.Equal(t, raw, got.Raw())
}

func TestHeaderRoundTrip4(t *testing.T) {
	want := newTestHeader4(t)
	buf := new(bytes.Buffer)
	require.NoError(t, want.Write(buf))
	raw := append([]byte(nil), buf.Bytes()...)

	got, err := ReadHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, got.MajorVersion())
	assert.Equal(t, want.CipherID, got.CipherID)
	assert.Equal(t, want.MasterSeed, got.MasterSeed)
	assert.Equal(t, want.IV, got.IV)
	assert.Equal(t, raw, got.Raw())

	wantKDF, err := want.kdfParams()
	require.NoError(t, err)
	gotKDF, err := got.kdfParams()
	require.NoError(t, err)
	assert.Equal(t, wantKDF, gotKDF)
}

func TestReadHeaderErrors(t *testing.T) {
	valid := new(bytes.Buffer)
	require.NoError(t, newTestHeader4(t).Write(valid))

	t.Run("empty", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(nil))
		assert.Equal(t, ErrPrematureEnd, err)
	})
	t.Run("badSignature", func(t *testing.T) {
		b := append([]byte(nil), valid.Bytes()...)
		b[4] ^= 0xff
		_, err := ReadHeader(bytes.NewReader(b))
		assert.Equal(t, ErrWrongSignature, err)
	})
	t.Run("badMajorVersion", func(t *testing.T) {
		b := append([]byte(nil), valid.Bytes()...)
		b[10] = 0x05
		b[11] = 0x00
		_, err := ReadHeader(bytes.NewReader(b))
		assert.IsType(t, VersionError(0), err)
	})
	t.Run("truncated", func(t *testing.T) {
		b := valid.Bytes()[:valid.Len()-4]
		_, err := ReadHeader(bytes.NewReader(b))
		assert.Equal(t, ErrPrematureEnd, err)
	})
}

func TestIsSignatureMatches(t *testing.T) {
	valid := new(bytes.Buffer)
	require.NoError(t, newTestHeader4(t).Write(valid))
	assert.True(t, IsSignatureMatches(valid.Bytes()))
	assert.False(t, IsSignatureMatches(valid.Bytes()[:SignatureSize-1]))
	assert.False(t, IsSignatureMatches(nil))

	v3 := new(bytes.Buffer)
	require.NoError(t, newTestHeader3(t).Write(v3))
	assert.True(t, IsSignatureMatches(v3.Bytes()))

	bad := append([]byte(nil), valid.Bytes()...)
	bad[0] ^= 0xff
	assert.False(t, IsSignatureMatches(bad))
}

func TestUnsupportedKDF(t *testing.T) {
	h := newTestHeader4(t)
	m := NewVariantMap()
	m.SetBytes(kdfParamUUID, bytes.Repeat([]byte{0xee}, 16))
	h.KDFParameters = m
	_, err := h.kdfParams()
	var ue *UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "kdf", ue.Kind)
}
