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

package kdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zombiezen.com/go/kdbcodec/pkg/progress"
)

func testSecret() []byte {
	s := make([]byte, 32)
	for i := range s {
		s[i] = byte(i)
	}
	return s
}

func TestAESDerive(t *testing.T) {
	p := &AESParams{Rounds: 1000}
	for i := range p.Seed {
		p.Seed[i] = byte(i * 5)
	}
	k1, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	defer k1.Erase()
	assert.Equal(t, 32, k1.Len())

	k2, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	defer k2.Erase()
	assert.True(t, k1.Equal(k2), "derivation is not deterministic")

	p.Rounds++
	k3, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	defer k3.Erase()
	assert.False(t, k1.Equal(k3), "round count did not affect the key")
}

func TestAESDeriveChunked(t *testing.T) {
	// Rounds above the poll chunk exercise the multi-chunk path.
	small := &AESParams{Rounds: 10}
	big := &AESParams{Rounds: transformChunk + 10}
	k1, err := small.Derive(testSecret(), nil)
	require.NoError(t, err)
	k2, err := big.Derive(testSecret(), nil)
	require.NoError(t, err)
	assert.False(t, k1.Equal(k2))
}

func TestAESDeriveDoesNotMutateSecret(t *testing.T) {
	p := &AESParams{Rounds: 16}
	secret := testSecret()
	want := append([]byte(nil), secret...)
	_, err := p.Derive(secret, nil)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(secret, want))
}

func TestAESValidate(t *testing.T) {
	var perr *ParamError
	err := (&AESParams{}).Validate()
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "rounds", perr.Param)

	assert.NoError(t, (&AESParams{Rounds: 1}).Validate())
}

func TestAESDeriveBadSecretSize(t *testing.T) {
	p := &AESParams{Rounds: 16}
	_, err := p.Derive(make([]byte, 16), nil)
	var perr *ParamError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "secret size", perr.Param)
}

func TestAESDeriveCancelled(t *testing.T) {
	p := &AESParams{Rounds: 1 << 24}
	prog := progress.New(1)
	prog.Cancel()
	_, err := p.Derive(testSecret(), prog)
	assert.Equal(t, progress.ErrCancelled, err)
}

func argon2idParams() *Argon2Params {
	return &Argon2Params{
		Variant:     Argon2id,
		Salt:        bytes.Repeat([]byte{0x42}, 32),
		MemoryKiB:   8,
		Iterations:  1,
		Parallelism: 1,
		Version:     0x13,
	}
}

func TestArgon2Derive(t *testing.T) {
	p := argon2idParams()
	k1, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	assert.Equal(t, 32, k1.Len())

	k2, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	assert.True(t, k1.Equal(k2))

	p.Salt[0] ^= 1
	k3, err := p.Derive(testSecret(), nil)
	require.NoError(t, err)
	assert.False(t, k1.Equal(k3))
}

func TestArgon2dUnavailable(t *testing.T) {
	p := argon2idParams()
	p.Variant = Argon2d
	_, err := p.Derive(testSecret(), nil)
	assert.Equal(t, ErrArgon2dUnavailable, err)
}

func TestArgon2Validate(t *testing.T) {
	tests := []struct {
		param  string
		mutate func(*Argon2Params)
	}{
		{"variant", func(p *Argon2Params) { p.Variant = Argon2Variant(9) }},
		{"salt", func(p *Argon2Params) { p.Salt = nil }},
		{"memory", func(p *Argon2Params) { p.MemoryKiB = 4 }},
		{"memory", func(p *Argon2Params) { p.MemoryKiB = 1 << 32 }},
		{"iterations", func(p *Argon2Params) { p.Iterations = 0 }},
		{"iterations", func(p *Argon2Params) { p.Iterations = 1 << 32 }},
		{"parallelism", func(p *Argon2Params) { p.Parallelism = 0 }},
		{"version", func(p *Argon2Params) { p.Version = 0x10 }},
	}
	for _, test := range tests {
		p := argon2idParams()
		test.mutate(p)
		var perr *ParamError
		err := p.Validate()
		require.ErrorAsf(t, err, &perr, "mutated %s", test.param)
		assert.Equal(t, test.param, perr.Param)
	}
	assert.NoError(t, argon2idParams().Validate())
}
