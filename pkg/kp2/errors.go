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
	"errors"
	"fmt"
)

var (
	// ErrWrongSignature means the input does not start with the KDBX
	// magic words.
	ErrWrongSignature = errors.New("keepass2: not a KeePass 2.x database")

	// ErrKeyMismatch means an integrity check failed right after
	// decryption started: either the master key is wrong or the file
	// is corrupted. The two causes cannot be told apart.
	ErrKeyMismatch = errors.New("keepass2: password does not match or database is corrupt")

	// ErrCorruptData means an integrity check failed past the point
	// where a wrong key could explain it.
	ErrCorruptData = errors.New("keepass2: database is corrupt")

	// ErrPrematureEnd means the input ended in the middle of a
	// structure.
	ErrPrematureEnd = errors.New("keepass2: premature end of data")
)

// A VersionError reports a file whose major version is not supported.
type VersionError uint32

func (e VersionError) Error() string {
	return fmt.Sprintf("keepass2: unsupported file version 0x%08x", uint32(e))
}

// A HeaderFieldError reports a malformed outer or inner header field.
type HeaderFieldError struct {
	ID     uint8
	Inner  bool
	Reason string
}

func (e *HeaderFieldError) Error() string {
	kind := "header"
	if e.Inner {
		kind = "inner header"
	}
	return fmt.Sprintf("keepass2: %s field %#02x: %s", kind, e.ID, e.Reason)
}

// An UnsupportedError reports a recognized but unsupported algorithm
// selection, identified by the 16-byte UUID the format uses.
type UnsupportedError struct {
	Kind string // "cipher", "kdf", or "inner stream"
	ID   [16]byte
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("keepass2: unsupported %s %x", e.Kind, e.ID)
}

// A BlockError reports a corrupted content block.
type BlockError struct {
	Index  uint64
	Reason string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("keepass2: content block %d: %s", e.Index, e.Reason)
}

// Structural validation errors
var (
	errVariantMapVersion = errors.New("keepass2: unsupported variant map version")
	errVariantTruncated  = errors.New("keepass2: truncated variant map")
	errMissingField      = errors.New("keepass2: missing required header field")
	errNoRecycleBin      = errors.New("keepass2: recycle bin is disabled")
	errMoveRoot          = errors.New("keepass2: cannot move the root group")
	errMoveIntoSelf      = errors.New("keepass2: cannot move a group into itself or its subtree")
	errNilParent         = errors.New("keepass2: nil parent group")
	errBadBinaryRef      = errors.New("keepass2: attachment references a missing binary")
	errNotFound          = errors.New("keepass2: item is not in the database")
)
