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
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// A UUID identifies a group or entry. It serializes as base64 inside
// the XML document.
type UUID [16]byte

// NewUUID generates a random UUID from the given entropy source.
func NewUUID(rand interface{ Read([]byte) (int, error) }) (UUID, error) {
	u, err := uuid.NewRandomFromReader(rand)
	if err != nil {
		return UUID{}, err
	}
	return UUID(u), nil
}

// IsZero reports whether the UUID is all zero, the document's "no
// reference" value.
func (u UUID) IsZero() bool { return u == UUID{} }

func (u UUID) String() string { return uuid.UUID(u).String() }

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(u)))
	base64.StdEncoding.Encode(out, u[:])
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = UUID{}
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("keepass2: parse UUID: %w", err)
	}
	if len(raw) != 16 {
		return fmt.Errorf("keepass2: parse UUID: %d bytes, should be 16", len(raw))
	}
	copy(u[:], raw)
	return nil
}

// Bool is the document's tri-state boolean: True, False, or null.
type Bool struct {
	Value bool
	Valid bool
}

// True and False are the common Bool values.
var (
	True  = Bool{Value: true, Valid: true}
	False = Bool{Value: false, Valid: true}
)

// MarshalText implements encoding.TextMarshaler.
func (b Bool) MarshalText() ([]byte, error) {
	switch {
	case !b.Valid:
		return []byte("null"), nil
	case b.Value:
		return []byte("True"), nil
	default:
		return []byte("False"), nil
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bool) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "true":
		*b = True
	case "false":
		*b = False
	default:
		*b = Bool{}
	}
	return nil
}

// timeEpoch is year 1 in the proleptic Gregorian calendar, the zero
// point of the version 4 binary timestamp.
var timeEpoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// A Time is a document timestamp. Version 3 files store RFC 3339 text;
// version 4 files store base64 of a little-endian second count from
// year 1. Formatted selects the text form on output.
type Time struct {
	time.Time
	Formatted bool
}

// Now returns the given wall time truncated to the document's second
// resolution.
func newTime(t time.Time, formatted bool) Time {
	return Time{Time: t.UTC().Truncate(time.Second), Formatted: formatted}
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	if t.Formatted {
		return []byte(t.UTC().Format(time.RFC3339)), nil
	}
	secs := uint64(t.UTC().Sub(timeEpoch) / time.Second)
	raw := binary.LittleEndian.AppendUint64(nil, secs)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Time) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*t = Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		*t = Time{Time: parsed.UTC(), Formatted: true}
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 8 {
		return fmt.Errorf("keepass2: parse time %q", s)
	}
	secs := binary.LittleEndian.Uint64(raw)
	*t = Time{Time: timeEpoch.Add(time.Duration(secs) * time.Second)}
	return nil
}

// setFormatted recursively rewrites the time encoding flag so a
// document saves in its target version's representation.
func (g *Group) setFormatted(formatted bool) {
	g.Times.setFormatted(formatted)
	for i := range g.Entries {
		g.Entries[i].setFormatted(formatted)
	}
	for i := range g.Groups {
		g.Groups[i].setFormatted(formatted)
	}
}

func (e *Entry) setFormatted(formatted bool) {
	e.Times.setFormatted(formatted)
	for i := range e.History {
		e.History[i].setFormatted(formatted)
	}
}

func (ts *Times) setFormatted(formatted bool) {
	ts.CreationTime.Formatted = formatted
	ts.LastModificationTime.Formatted = formatted
	ts.LastAccessTime.Formatted = formatted
	ts.ExpiryTime.Formatted = formatted
	ts.LocationChanged.Formatted = formatted
}

// document is the XML payload of a KDBX file.
type document struct {
	XMLName xml.Name `xml:"KeePassFile"`
	Meta    *Meta    `xml:"Meta"`
	Root    *rootTag `xml:"Root"`
}

type rootTag struct {
	Group          *Group          `xml:"Group"`
	DeletedObjects []DeletedObject `xml:"DeletedObjects>DeletedObject"`
}

// Meta holds the database-wide settings stored alongside the tree.
type Meta struct {
	Generator                  string            `xml:"Generator"`
	HeaderHash                 string            `xml:"HeaderHash,omitempty"`
	DatabaseName               string            `xml:"DatabaseName"`
	DatabaseNameChanged        Time              `xml:"DatabaseNameChanged"`
	DatabaseDescription        string            `xml:"DatabaseDescription"`
	DatabaseDescriptionChanged Time              `xml:"DatabaseDescriptionChanged"`
	DefaultUserName            string            `xml:"DefaultUserName"`
	DefaultUserNameChanged     Time              `xml:"DefaultUserNameChanged"`
	MaintenanceHistoryDays     int               `xml:"MaintenanceHistoryDays"`
	Color                      string            `xml:"Color"`
	MasterKeyChanged           Time              `xml:"MasterKeyChanged"`
	MasterKeyChangeRec         int64             `xml:"MasterKeyChangeRec"`
	MasterKeyChangeForce       int64             `xml:"MasterKeyChangeForce"`
	MemoryProtection           MemoryProtection  `xml:"MemoryProtection"`
	RecycleBinEnabled          Bool              `xml:"RecycleBinEnabled"`
	RecycleBinUUID             UUID              `xml:"RecycleBinUUID"`
	RecycleBinChanged          Time              `xml:"RecycleBinChanged"`
	EntryTemplatesGroup        UUID              `xml:"EntryTemplatesGroup"`
	EntryTemplatesGroupChanged Time              `xml:"EntryTemplatesGroupChanged"`
	HistoryMaxItems            int               `xml:"HistoryMaxItems"`
	HistoryMaxSize             int64             `xml:"HistoryMaxSize"`
	LastSelectedGroup          UUID              `xml:"LastSelectedGroup"`
	LastTopVisibleGroup        UUID              `xml:"LastTopVisibleGroup"`
	Binaries                   []MetaBinary      `xml:"Binaries>Binary"`
	CustomData                 []CustomDataEntry `xml:"CustomData>Item"`
}

// MemoryProtection lists which standard fields clients should keep
// protected in memory.
type MemoryProtection struct {
	ProtectTitle    Bool `xml:"ProtectTitle"`
	ProtectUserName Bool `xml:"ProtectUserName"`
	ProtectPassword Bool `xml:"ProtectPassword"`
	ProtectURL      Bool `xml:"ProtectURL"`
	ProtectNotes    Bool `xml:"ProtectNotes"`
}

// A MetaBinary is an attachment stored in the version 3 pool inside
// Meta. Content is base64; Compressed marks gzip. Protected bodies
// travel encrypted with the inner stream, like protected values.
type MetaBinary struct {
	ID         int    `xml:"ID,attr"`
	Compressed Bool   `xml:"Compressed,attr"`
	Protected  *Bool  `xml:"Protected,attr,omitempty"`
	Content    string `xml:",chardata"`
}

// IsProtected reports whether the body participates in the inner
// stream.
func (b *MetaBinary) IsProtected() bool {
	return b.Protected != nil && b.Protected.Value
}

// A CustomDataEntry is an application-defined key/value pair.
type CustomDataEntry struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

// A DeletedObject records a permanently removed item so synchronizing
// clients can drop their copies.
type DeletedObject struct {
	UUID         UUID `xml:"UUID"`
	DeletionTime Time `xml:"DeletionTime"`
}

// A Group is a named collection of entries and subgroups.
type Group struct {
	UUID                    UUID   `xml:"UUID"`
	Name                    string `xml:"Name"`
	Notes                   string `xml:"Notes,omitempty"`
	IconID                  int32  `xml:"IconID"`
	Times                   Times  `xml:"Times"`
	IsExpanded              Bool   `xml:"IsExpanded"`
	DefaultAutoTypeSequence string `xml:"DefaultAutoTypeSequence,omitempty"`
	EnableAutoType          Bool   `xml:"EnableAutoType"`
	EnableSearching         Bool   `xml:"EnableSearching"`
	LastTopVisibleEntry     UUID   `xml:"LastTopVisibleEntry"`

	// Entries precede subgroups in the document, and the inner stream
	// consumes protected values in document order.
	Entries []*Entry `xml:"Entry"`
	Groups  []*Group `xml:"Group"`
}

// An Entry stores a credential as an ordered set of key/value strings
// plus attachment references.
type Entry struct {
	UUID            UUID        `xml:"UUID"`
	IconID          int32       `xml:"IconID"`
	ForegroundColor string      `xml:"ForegroundColor,omitempty"`
	BackgroundColor string      `xml:"BackgroundColor,omitempty"`
	OverrideURL     string      `xml:"OverrideURL,omitempty"`
	Tags            string      `xml:"Tags,omitempty"`
	Times           Times       `xml:"Times"`
	Strings         []String    `xml:"String"`
	Binaries        []BinaryRef `xml:"Binary"`
	AutoType        *AutoType   `xml:"AutoType,omitempty"`
	History         []*Entry    `xml:"History>Entry"`
}

// Times is the temporal data attached to a group or entry.
type Times struct {
	CreationTime         Time  `xml:"CreationTime"`
	LastModificationTime Time  `xml:"LastModificationTime"`
	LastAccessTime       Time  `xml:"LastAccessTime"`
	ExpiryTime           Time  `xml:"ExpiryTime"`
	Expires              Bool  `xml:"Expires"`
	UsageCount           int64 `xml:"UsageCount"`
	LocationChanged      Time  `xml:"LocationChanged"`
}

// A String is one key/value field of an entry.
type String struct {
	Key   string `xml:"Key"`
	Value Value  `xml:"Value"`
}

// A Value is a field value; Protected values travel encrypted with
// the inner stream.
type Value struct {
	Content   string `xml:",chardata"`
	Protected *Bool  `xml:"Protected,attr,omitempty"`
}

// IsProtected reports whether the value participates in the inner
// stream.
func (v *Value) IsProtected() bool {
	return v.Protected != nil && v.Protected.Value
}

// A BinaryRef ties an attachment name to an index in the binary pool.
type BinaryRef struct {
	Key   string `xml:"Key"`
	Value struct {
		Ref int `xml:"Ref,attr"`
	} `xml:"Value"`
}

// AutoType carries the keystroke automation settings of an entry.
type AutoType struct {
	Enabled                 Bool                  `xml:"Enabled"`
	DataTransferObfuscation int                   `xml:"DataTransferObfuscation"`
	DefaultSequence         string                `xml:"DefaultSequence,omitempty"`
	Associations            []AutoTypeAssociation `xml:"Association"`
}

type AutoTypeAssociation struct {
	XMLName           xml.Name `xml:"Association"`
	Window            string   `xml:"Window"`
	KeystrokeSequence string   `xml:"KeystrokeSequence"`
}

// Standard string field keys
const (
	KeyTitle    = "Title"
	KeyUsername = "UserName"
	KeyPassword = "Password"
	KeyURL      = "URL"
	KeyNotes    = "Notes"
)

// GetString returns the value of the named field, or the empty string.
func (e *Entry) GetString(key string) string {
	for i := range e.Strings {
		if e.Strings[i].Key == key {
			return e.Strings[i].Value.Content
		}
	}
	return ""
}

// SetString sets the named field, creating it if needed. protected
// marks the value for inner stream encryption at save time.
func (e *Entry) SetString(key, value string, protected bool) {
	var p *Bool
	if protected {
		p = &Bool{Value: true, Valid: true}
	}
	for i := range e.Strings {
		if e.Strings[i].Key == key {
			e.Strings[i].Value.Content = value
			e.Strings[i].Value.Protected = p
			return
		}
	}
	e.Strings = append(e.Strings, String{
		Key:   key,
		Value: Value{Content: value, Protected: p},
	})
}

// Title returns the entry's Title field.
func (e *Entry) Title() string { return e.GetString(KeyTitle) }

// Password returns the entry's Password field.
func (e *Entry) Password() string { return e.GetString(KeyPassword) }

// Clone returns a detached shallow copy: every scalar property is
// duplicated, children and tree position are not. It snapshots a
// group before an edit session so Apply can discard the edits.
func (g *Group) Clone() *Group {
	c := *g
	c.Entries = nil
	c.Groups = nil
	return &c
}

// Apply copies g's scalar properties onto dst, leaving dst's children
// alone.
func (g *Group) Apply(dst *Group) {
	entries, groups := dst.Entries, dst.Groups
	*dst = *g
	dst.Entries, dst.Groups = entries, groups
}

// Clone returns a detached copy of the entry. String fields and
// binary references are duplicated; history is not carried over.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Strings = append([]String(nil), e.Strings...)
	c.Binaries = append([]BinaryRef(nil), e.Binaries...)
	if e.AutoType != nil {
		at := *e.AutoType
		at.Associations = append([]AutoTypeAssociation(nil), e.AutoType.Associations...)
		c.AutoType = &at
	}
	c.History = nil
	return &c
}

// Apply copies e's scalar properties, strings, and binary references
// onto dst. dst keeps its own history.
func (e *Entry) Apply(dst *Entry) {
	history := dst.History
	c := e.Clone()
	*dst = *c
	dst.History = history
}

// walkValues visits every string value in document order: this order
// is the inner stream's cipher stream order, so encryption and
// decryption must both traverse it exactly.
func (g *Group) walkValues(f func(*Value) error) error {
	for _, e := range g.Entries {
		if err := e.walkValues(f); err != nil {
			return err
		}
	}
	for _, sub := range g.Groups {
		if err := sub.walkValues(f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entry) walkValues(f func(*Value) error) error {
	for i := range e.Strings {
		if err := f(&e.Strings[i].Value); err != nil {
			return err
		}
	}
	for _, h := range e.History {
		if err := h.walkValues(f); err != nil {
			return err
		}
	}
	return nil
}
