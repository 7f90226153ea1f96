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
	"encoding/binary"
	"sort"

	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// VariantMap value type bytes
const (
	variantUint32 = 0x04
	variantUint64 = 0x05
	variantBool   = 0x08
	variantInt32  = 0x0c
	variantInt64  = 0x0d
	variantString = 0x18
	variantBytes  = 0x42

	variantEnd = 0x00
)

const variantMapVersion uint16 = 0x0100
const variantMapVersionCriticalMask uint16 = 0xff00

// A VariantMap is the typed dictionary KDBX 4 uses to carry KDF
// parameters and custom data. Values keep the type byte they were
// stored with so unknown entries round-trip unchanged.
type VariantMap struct {
	entries map[string]variantValue
}

type variantValue struct {
	typ byte
	raw []byte
}

// NewVariantMap returns an empty map.
func NewVariantMap() *VariantMap {
	return &VariantMap{entries: make(map[string]variantValue)}
}

// parseVariantMap decodes the serialized dictionary. The payload is
// self-delimited by a zero type byte.
func parseVariantMap(b []byte) (*VariantMap, error) {
	r := secbuf.NewSliceReader(b)
	version := r.Uint16()
	if r.Err() != nil {
		return nil, errVariantTruncated
	}
	if version&variantMapVersionCriticalMask != variantMapVersion&variantMapVersionCriticalMask {
		return nil, errVariantMapVersion
	}
	m := NewVariantMap()
	for {
		head := r.Slice(1)
		if r.Err() != nil {
			return nil, errVariantTruncated
		}
		typ := head[0]
		if typ == variantEnd {
			return m, nil
		}
		name := string(r.Slice(int(r.Uint32())))
		raw := append([]byte(nil), r.Slice(int(r.Uint32()))...)
		if r.Err() != nil {
			return nil, errVariantTruncated
		}
		m.entries[name] = variantValue{typ: typ, raw: raw}
	}
}

// marshal serializes the dictionary. Entries are emitted in sorted key
// order so output is deterministic.
func (m *VariantMap) marshal() []byte {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	w := secbuf.NewWriter()
	w.Uint16(variantMapVersion)
	for _, name := range names {
		v := m.entries[name]
		w.Write([]byte{v.typ})
		w.Uint32(uint32(len(name)))
		w.Write([]byte(name))
		w.Uint32(uint32(len(v.raw)))
		w.Write(v.raw)
	}
	w.Write([]byte{variantEnd})
	return w.Buffer().Bytes()
}

// Len returns the number of entries.
func (m *VariantMap) Len() int { return len(m.entries) }

// Uint32 returns the named uint32 entry.
func (m *VariantMap) Uint32(name string) (uint32, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantUint32 || len(v.raw) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v.raw), true
}

// Uint64 returns the named uint64 entry.
func (m *VariantMap) Uint64(name string) (uint64, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantUint64 || len(v.raw) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v.raw), true
}

// Int64 returns the named int64 entry.
func (m *VariantMap) Int64(name string) (int64, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantInt64 || len(v.raw) != 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v.raw)), true
}

// Bool returns the named bool entry.
func (m *VariantMap) Bool(name string) (bool, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantBool || len(v.raw) != 1 {
		return false, false
	}
	return v.raw[0] != 0, true
}

// String returns the named string entry.
func (m *VariantMap) String(name string) (string, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantString {
		return "", false
	}
	return string(v.raw), true
}

// Bytes returns the named byte-array entry. The returned slice aliases
// the map's storage.
func (m *VariantMap) Bytes(name string) ([]byte, bool) {
	v, ok := m.entries[name]
	if !ok || v.typ != variantBytes {
		return nil, false
	}
	return v.raw, true
}

// SetUint32 stores a uint32 entry.
func (m *VariantMap) SetUint32(name string, val uint32) {
	m.entries[name] = variantValue{typ: variantUint32, raw: binary.LittleEndian.AppendUint32(nil, val)}
}

// SetUint64 stores a uint64 entry.
func (m *VariantMap) SetUint64(name string, val uint64) {
	m.entries[name] = variantValue{typ: variantUint64, raw: binary.LittleEndian.AppendUint64(nil, val)}
}

// SetInt64 stores an int64 entry.
func (m *VariantMap) SetInt64(name string, val int64) {
	m.entries[name] = variantValue{typ: variantInt64, raw: binary.LittleEndian.AppendUint64(nil, uint64(val))}
}

// SetBool stores a bool entry.
func (m *VariantMap) SetBool(name string, val bool) {
	raw := []byte{0}
	if val {
		raw[0] = 1
	}
	m.entries[name] = variantValue{typ: variantBool, raw: raw}
}

// SetString stores a string entry.
func (m *VariantMap) SetString(name string, val string) {
	m.entries[name] = variantValue{typ: variantString, raw: []byte(val)}
}

// SetBytes stores a byte-array entry, copying val.
func (m *VariantMap) SetBytes(name string, val []byte) {
	raw := make([]byte, len(val))
	copy(raw, val)
	m.entries[name] = variantValue{typ: variantBytes, raw: raw}
}
