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

// Package kdb detects password database formats and opens databases
// without the caller committing to a format up front. It presents the
// common capabilities of the two formats behind small interfaces; the
// format-specific packages remain available for everything else.
package kdb

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"zombiezen.com/go/kdbcodec/pkg/kp1"
	"zombiezen.com/go/kdbcodec/pkg/kp2"
	"zombiezen.com/go/kdbcodec/pkg/progress"
)

// ErrUnknownFormat is returned by Open when the data matches neither
// format's signature.
var ErrUnknownFormat = errors.New("kdb: unknown database format")

// Format identifies a password database file format.
type Format int

// Recognized formats.
const (
	FormatUnknown Format = iota
	FormatKDB            // KeePass 1.x binary
	FormatKDBX           // KeePass 2.x XML container
)

// String returns the format's conventional file extension name.
func (f Format) String() string {
	switch f {
	case FormatKDB:
		return "kdb"
	case FormatKDBX:
		return "kdbx"
	default:
		return "unknown"
	}
}

// SniffLen is the number of prefix bytes Sniff needs to classify a
// file.
const SniffLen = kp1.SignatureSize

// Sniff classifies data by its signature prefix. It is cheap and never
// errors: anything unrecognized is FormatUnknown.
func Sniff(prefix []byte) Format {
	switch {
	case kp1.IsSignatureMatches(prefix):
		return FormatKDB
	case kp2.IsSignatureMatches(prefix):
		return FormatKDBX
	default:
		return FormatUnknown
	}
}

// Credentials hold the secrets used to derive a database's master key.
type Credentials struct {
	// Password is the master password. May be empty if KeyFile is set.
	Password string

	// KeyFile is an optional key file. It is read once per operation.
	KeyFile io.Reader
}

// An Entry is the format-independent view of a password entry.
type Entry interface {
	// ID returns a stable identifier within the entry's database.
	ID() string
	Title() string
	Username() string
	Password() string
	URL() string
	Notes() string
	// Times returns the creation and last modification timestamps.
	Times() (created, modified time.Time)
}

// A Group is the format-independent view of a tree node.
type Group interface {
	ID() string
	Name() string
	Groups() []Group
	Entries() []Entry
}

// A Database is an open database of either format.
type Database interface {
	Format() Format
	Root() Group
	// Entries returns every entry in the database, flattened.
	Entries() []Entry
	// Save serializes the database with freshly randomized seeds.
	Save(w io.Writer, prog *progress.Progress) error
	// Erase destroys key material and decrypted secrets.
	Erase()
}

// Open sniffs data's format and decrypts it. The pipeline is strictly
// sequential: header validation, key derivation, bulk decrypt,
// integrity check, then decode; any failure leaves no partial tree
// behind. Derived keys are erased before Open returns.
func Open(data []byte, creds Credentials, prog *progress.Progress) (Database, error) {
	format := Sniff(data)
	slog.Debug("kdb: sniffed database", "format", format, "size", len(data))
	switch format {
	case FormatKDB:
		db, err := kp1.Open(bytes.NewReader(data), &kp1.Options{
			Password: creds.Password,
			KeyFile:  creds.KeyFile,
		}, prog)
		if err != nil {
			return nil, err
		}
		slog.Debug("kdb: opened database", "format", format)
		return &kdbDatabase{db}, nil
	case FormatKDBX:
		db, err := kp2.Open(bytes.NewReader(data), &kp2.Options{
			Password: creds.Password,
			KeyFile:  creds.KeyFile,
		}, prog)
		if err != nil {
			return nil, err
		}
		slog.Debug("kdb: opened database", "format", format, "version", db.Version())
		return &kdbxDatabase{db}, nil
	default:
		return nil, ErrUnknownFormat
	}
}

// kdbDatabase adapts a 1.x database.
type kdbDatabase struct {
	db *kp1.Database
}

func (d *kdbDatabase) Format() Format { return FormatKDB }
func (d *kdbDatabase) Root() Group    { return kdbGroup{d.db.Root()} }
func (d *kdbDatabase) Erase()         { d.db.Erase() }

func (d *kdbDatabase) Entries() []Entry {
	src := d.db.Entries()
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = kdbEntry{e}
	}
	return out
}

func (d *kdbDatabase) Save(w io.Writer, prog *progress.Progress) error {
	slog.Debug("kdb: saving database", "format", FormatKDB)
	return d.db.Write(w, prog)
}

type kdbGroup struct {
	g *kp1.Group
}

func (g kdbGroup) ID() string   { return strconv.FormatUint(uint64(g.g.ID), 10) }
func (g kdbGroup) Name() string { return g.g.Name }

func (g kdbGroup) Groups() []Group {
	src := g.g.Groups()
	out := make([]Group, len(src))
	for i, sub := range src {
		out[i] = kdbGroup{sub}
	}
	return out
}

func (g kdbGroup) Entries() []Entry {
	src := g.g.Entries()
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = kdbEntry{e}
	}
	return out
}

type kdbEntry struct {
	e *kp1.Entry
}

func (e kdbEntry) ID() string       { return e.e.UUID.String() }
func (e kdbEntry) Title() string    { return e.e.Title }
func (e kdbEntry) Username() string { return e.e.Username }
func (e kdbEntry) URL() string      { return e.e.URL }
func (e kdbEntry) Notes() string    { return e.e.Notes }

func (e kdbEntry) Password() string {
	if e.e.Password == nil {
		return ""
	}
	return string(e.e.Password.Bytes())
}

func (e kdbEntry) Times() (created, modified time.Time) {
	return e.e.TimeInfo.CreationTime, e.e.TimeInfo.LastModificationTime
}

// kdbxDatabase adapts a 2.x database.
type kdbxDatabase struct {
	db *kp2.Database
}

func (d *kdbxDatabase) Format() Format { return FormatKDBX }
func (d *kdbxDatabase) Root() Group    { return kdbxGroup{d.db.Root()} }
func (d *kdbxDatabase) Erase()         { d.db.Erase() }

func (d *kdbxDatabase) Entries() []Entry {
	var out []Entry
	var walk func(g *kp2.Group)
	walk = func(g *kp2.Group) {
		for _, e := range g.Entries {
			out = append(out, kdbxEntry{e})
		}
		for _, sub := range g.Groups {
			walk(sub)
		}
	}
	walk(d.db.Root())
	return out
}

func (d *kdbxDatabase) Save(w io.Writer, prog *progress.Progress) error {
	slog.Debug("kdb: saving database", "format", FormatKDBX, "version", d.db.Version())
	return d.db.Write(w, prog)
}

type kdbxGroup struct {
	g *kp2.Group
}

func (g kdbxGroup) ID() string   { return g.g.UUID.String() }
func (g kdbxGroup) Name() string { return g.g.Name }

func (g kdbxGroup) Groups() []Group {
	out := make([]Group, len(g.g.Groups))
	for i, sub := range g.g.Groups {
		out[i] = kdbxGroup{sub}
	}
	return out
}

func (g kdbxGroup) Entries() []Entry {
	out := make([]Entry, len(g.g.Entries))
	for i, e := range g.g.Entries {
		out[i] = kdbxEntry{e}
	}
	return out
}

type kdbxEntry struct {
	e *kp2.Entry
}

func (e kdbxEntry) ID() string       { return e.e.UUID.String() }
func (e kdbxEntry) Title() string    { return e.e.Title() }
func (e kdbxEntry) Username() string { return e.e.GetString(kp2.KeyUsername) }
func (e kdbxEntry) Password() string { return e.e.Password() }
func (e kdbxEntry) URL() string      { return e.e.GetString(kp2.KeyURL) }
func (e kdbxEntry) Notes() string    { return e.e.GetString(kp2.KeyNotes) }

func (e kdbxEntry) Times() (created, modified time.Time) {
	return e.e.Times.CreationTime.Time, e.e.Times.LastModificationTime.Time
}
