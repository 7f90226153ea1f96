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

// Package kdf implements the key-derivation functions used by the
// KeePass database formats: the legacy repeated AES-ECB transform and
// Argon2.
package kdf

import (
	"crypto/aes"
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"

	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// Params stretches a 32-byte composite key into 32 bytes of master key
// material. Derivation is deterministic for identical inputs and does
// not mutate the secret.
type Params interface {
	// Name identifies the KDF in errors and diagnostics.
	Name() string

	// Validate checks the parameters and returns a ParamError naming
	// the first offending parameter.
	Validate() error

	// Derive stretches secret, polling prog for cancellation at its
	// yield points. secret must be 32 bytes.
	Derive(secret []byte, prog *progress.Progress) (*secbuf.Buffer, error)
}

// A ParamError reports an invalid KDF parameter.
type ParamError struct {
	KDF   string
	Param string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("kdf: %s: invalid parameter %s", e.KDF, e.Param)
}

// transformChunk is the number of AES rounds run between cancellation
// polls.
const transformChunk = 1 << 16

// AESParams is the classic KeePass transform: the composite key is
// AES-ECB-encrypted with the seed for a fixed number of rounds, then
// hashed with SHA-256.
type AESParams struct {
	Seed   [32]byte
	Rounds uint64
}

// Name implements Params.
func (p *AESParams) Name() string { return "aes-kdf" }

// Validate implements Params.
func (p *AESParams) Validate() error {
	if p.Rounds == 0 {
		return &ParamError{KDF: p.Name(), Param: "rounds"}
	}
	return nil
}

// Derive implements Params. The two 16-byte halves of the secret are
// transformed in parallel, matching the layout the format prescribes.
func (p *AESParams) Derive(secret []byte, prog *progress.Progress) (*secbuf.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(secret) != sha256.Size {
		return nil, &ParamError{KDF: p.Name(), Param: "secret size"}
	}
	if err := prog.Err(); err != nil {
		return nil, err
	}
	prog.AddTotal(2 * int64(p.Rounds))

	var tk [sha256.Size]byte
	var wg sync.WaitGroup
	wg.Add(2)
	go transformKeyBlock(&wg, tk[:aes.BlockSize], secret[:aes.BlockSize], p.Seed[:], p.Rounds, prog)
	go transformKeyBlock(&wg, tk[aes.BlockSize:], secret[aes.BlockSize:], p.Seed[:], p.Rounds, prog)
	wg.Wait()
	if err := prog.Err(); err != nil {
		secbuf.Wipe(tk[:])
		return nil, err
	}
	sum := sha256.Sum256(tk[:])
	secbuf.Wipe(tk[:])
	out := secbuf.Of(sum[:])
	secbuf.Wipe(sum[:])
	return out, nil
}

// transformKeyBlock applies rounds of AES encryption using seed to src
// and stores the result in dst, yielding to prog between chunks.
func transformKeyBlock(wg *sync.WaitGroup, dst, src, seed []byte, rounds uint64, prog *progress.Progress) {
	defer wg.Done()
	dst = dst[:aes.BlockSize]
	copy(dst, src)
	c, err := aes.NewCipher(seed)
	if err != nil {
		panic(err)
	}
	for rounds > 0 {
		n := uint64(transformChunk)
		if n > rounds {
			n = rounds
		}
		for i := uint64(0); i < n; i++ {
			c.Encrypt(dst, dst)
		}
		rounds -= n
		prog.Step(int64(n))
		if prog.Cancelled() {
			return
		}
	}
}

// Argon2Variant selects the Argon2 flavor stored in the file header.
type Argon2Variant int

// Variants carried by KDBX4 headers.
const (
	Argon2d Argon2Variant = iota
	Argon2id
)

func (v Argon2Variant) String() string {
	switch v {
	case Argon2d:
		return "argon2d"
	case Argon2id:
		return "argon2id"
	default:
		return fmt.Sprintf("argon2(%d)", int(v))
	}
}

// Argon2 parameter bounds. The memory and iteration ceilings must fit
// in the uint32 arguments the backing implementation takes; parallelism
// is capped by its uint8 thread count.
const (
	argon2MinMemoryKiB = 8
	argon2MaxMemoryKiB = 1<<32 - 1
	argon2MaxIters     = 1<<32 - 1
	argon2MaxParallel  = 255
	argon2Version      = 0x13
)

// Argon2Params holds the memory-hard KDF parameters of a KDBX4 header.
type Argon2Params struct {
	Variant     Argon2Variant
	Salt        []byte
	MemoryKiB   uint64
	Iterations  uint64
	Parallelism uint32
	Version     uint32
}

// Name implements Params.
func (p *Argon2Params) Name() string { return p.Variant.String() }

// Validate implements Params.
func (p *Argon2Params) Validate() error {
	switch {
	case p.Variant != Argon2d && p.Variant != Argon2id:
		return &ParamError{KDF: "argon2", Param: "variant"}
	case len(p.Salt) == 0:
		return &ParamError{KDF: p.Name(), Param: "salt"}
	case p.MemoryKiB < argon2MinMemoryKiB || p.MemoryKiB > argon2MaxMemoryKiB:
		return &ParamError{KDF: p.Name(), Param: "memory"}
	case p.Iterations == 0 || p.Iterations > argon2MaxIters:
		return &ParamError{KDF: p.Name(), Param: "iterations"}
	case p.Parallelism == 0 || p.Parallelism > argon2MaxParallel:
		return &ParamError{KDF: p.Name(), Param: "parallelism"}
	case p.Version != argon2Version:
		return &ParamError{KDF: p.Name(), Param: "version"}
	}
	return nil
}

// ErrArgon2dUnavailable reports the one variant this build cannot
// derive: golang.org/x/crypto/argon2 exposes only the i and id flavors.
var ErrArgon2dUnavailable = fmt.Errorf("kdf: argon2d is not provided by golang.org/x/crypto/argon2")

// Derive implements Params. Argon2 runs as one opaque call, so
// cancellation is observed before the derivation starts.
func (p *Argon2Params) Derive(secret []byte, prog *progress.Progress) (*secbuf.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := prog.Err(); err != nil {
		return nil, err
	}
	if p.Variant == Argon2d {
		return nil, ErrArgon2dUnavailable
	}
	prog.AddTotal(int64(p.Iterations))
	key := argon2.IDKey(secret, p.Salt, uint32(p.Iterations), uint32(p.MemoryKiB), uint8(p.Parallelism), 32)
	prog.Step(int64(p.Iterations))
	out := secbuf.Of(key)
	secbuf.Wipe(key)
	return out, nil
}
