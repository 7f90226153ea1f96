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
	"crypto/rand"
	"io"
	"time"

	"zombiezen.com/go/kdbcodec/pkg/kdbcrypt"
)

const defaultKeyRounds = 50000

// Options is the set of parameters for creating or opening a database.
// Nil is treated the same as the zero value.
type Options struct {
	// Password is an optional textual password.
	Password string

	// KeyFile is an optional key file.
	KeyFile io.Reader

	// ComputedKey is an optional cached key. When set, it is used
	// instead of deriving the key from Password and KeyFile.
	ComputedKey kdbcrypt.ComputedKey

	// Cipher selects the encryption algorithm for new databases.
	Cipher kdbcrypt.Cipher

	// KeyRounds is the number of key transformation rounds for new
	// databases. Values less than 1 use a sensible default.
	KeyRounds int

	// Rand is the source of entropy for seeds and UUIDs.
	// If nil, crypto/rand is used.
	Rand io.Reader

	// Now reports the current time for new timestamps.
	// If nil, time.Now is used.
	Now func() time.Time

	// StaticIVForTesting disables refreshing the seeds and IV at save
	// time. This should only be used for testing purposes, since
	// reusing an IV weakens the encryption.
	StaticIVForTesting bool
}

func (opts *Options) getPassword() string {
	if opts == nil {
		return ""
	}
	return opts.Password
}

func (opts *Options) getKeyFile() io.Reader {
	if opts == nil {
		return nil
	}
	return opts.KeyFile
}

func (opts *Options) getComputedKey() kdbcrypt.ComputedKey {
	if opts == nil {
		return nil
	}
	return opts.ComputedKey
}

func (opts *Options) getCipher() kdbcrypt.Cipher {
	if opts == nil {
		return kdbcrypt.RijndaelCipher
	}
	return opts.Cipher
}

func (opts *Options) getKeyRounds() uint32 {
	if opts == nil || opts.KeyRounds < 1 {
		return defaultKeyRounds
	}
	return uint32(opts.KeyRounds)
}

func (opts *Options) getRand() io.Reader {
	if opts == nil || opts.Rand == nil {
		return rand.Reader
	}
	return opts.Rand
}

func (opts *Options) getNow() func() time.Time {
	if opts == nil || opts.Now == nil {
		return time.Now
	}
	return opts.Now
}

func (opts *Options) getStaticIV() bool {
	return opts != nil && opts.StaticIVForTesting
}
