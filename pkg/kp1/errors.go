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
	"errors"
	"fmt"
)

// Errors reported while parsing a database. They propagate before any
// structured result is produced: a failed load never returns a
// partially populated tree.
var (
	// ErrWrongSignature means the input does not start with the KDB
	// magic words.
	ErrWrongSignature = errors.New("keepass1: not a KeePass database")

	// ErrHashMismatch means the content hash did not verify after
	// decryption: either the master key is wrong (bad password or key
	// file) or the file is corrupted. The two causes cannot be told
	// apart.
	ErrHashMismatch = errors.New("keepass1: password does not match or database is corrupt")

	// ErrPrematureEnd means the input ended before a record terminator.
	ErrPrematureEnd = errors.New("keepass1: premature end of data")
)

// A VersionError reports a file version whose masked value is not
// supported.
type VersionError uint32

func (e VersionError) Error() string {
	return fmt.Sprintf("keepass1: unsupported file version 0x%08x", uint32(e))
}

// A CipherFlagsError reports an encryption flags word that selects
// zero ciphers or more than one.
type CipherFlagsError uint32

func (e CipherFlagsError) Error() string {
	return fmt.Sprintf("keepass1: unsupported data cipher (flags 0x%08x)", uint32(e))
}

// A CorruptedFieldError reports an unknown field tag or an impossible
// field length inside a group or entry record.
type CorruptedFieldError struct {
	Record string // "group" or "entry"
	Tag    uint16
	Size   int32
}

func (e *CorruptedFieldError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("keepass1: corrupted %s field %#04x: negative size %d", e.Record, e.Tag, e.Size)
	}
	return fmt.Sprintf("keepass1: corrupted %s field: unknown tag %#04x", e.Record, e.Tag)
}

// A FieldSizeError reports a field whose payload width does not match
// the format.
type FieldSizeError struct {
	Name string
	Size int
	Want int
}

func (e *FieldSizeError) Error() string {
	return fmt.Sprintf("keepass1: %s field size is %d, should be %d", e.Name, e.Size, e.Want)
}

// Data validation errors
var (
	errDatabaseUnaligned  = errors.New("keepass1: database does not match block size")
	errGroupsInconsistent = errors.New("keepass1: inconsistent group tree")
	errNoParent           = errors.New("keepass1: group has no parent to detach from")
	errBackupUnavailable  = errors.New("keepass1: backup group cannot be created")
)
