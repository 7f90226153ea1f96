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
	"encoding/binary"
	"io"
	"sort"

	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// Field tags
const (
	groupIDField                   = 0x0001
	groupNameField                 = 0x0002
	groupCreationTimeField         = 0x0003
	groupLastModificationTimeField = 0x0004
	groupLastAccessTimeField       = 0x0005
	groupExpiryTimeField           = 0x0006
	groupIconField                 = 0x0007
	groupLevelField                = 0x0008
	groupFlagsField                = 0x0009

	entryUUIDField                 = 0x0001
	entryGroupIDField              = 0x0002
	entryIconField                 = 0x0003
	entryTitleField                = 0x0004
	entryURLField                  = 0x0005
	entryUsernameField             = 0x0006
	entryPasswordField             = 0x0007
	entryNotesField                = 0x0008
	entryCreationTimeField         = 0x0009
	entryLastModificationTimeField = 0x000a
	entryLastAccessTimeField       = 0x000b
	entryExpiryTimeField           = 0x000c
	entryAttachmentNameField       = 0x000d
	entryAttachmentDataField       = 0x000e

	fieldTerminator = 0xffff
)

// backupGroupName is the reserved name of the v1 recycle bin. A group
// carrying it at nesting level 0 is the backup group regardless of how
// it was written.
const backupGroupName = "Backup"

func (g *Group) read(state *parseState, r io.Reader) error {
	fr := newFieldReader(r, "group")
	var ferr error
	for {
		tag, v, err := fr.next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		} else if ferr != nil {
			continue
		}
		ferr = g.readField(state, tag, v)
	}
	if ferr != nil {
		return ferr
	}
	// Fields missing before the terminator keep their defaults.
	if g.level == 0 && g.Name == backupGroupName {
		g.Deleted = true
	}
	return nil
}

func (g *Group) readField(state *parseState, tag uint16, value []byte) error {
	var err error
	switch tag {
	case 0x0000:
		// ignore
	case groupIDField:
		if err = verifyFieldSize("group ID", value, 4); err != nil {
			return err
		}
		id := binary.LittleEndian.Uint32(value)
		state.groups[id] = g
		g.ID = id
	case groupNameField:
		g.Name = string(stripNull(value))
	case groupCreationTimeField:
		g.CreationTime, err = readDate("group creation time", value)
	case groupLastModificationTimeField:
		g.LastModificationTime, err = readDate("group modification time", value)
	case groupLastAccessTimeField:
		g.LastAccessTime, err = readDate("group access time", value)
	case groupExpiryTimeField:
		g.ExpiryTime, err = readDate("group expiry time", value)
	case groupIconField:
		if err = verifyFieldSize("group icon", value, 4); err != nil {
			return err
		}
		g.Icon = Icon(binary.LittleEndian.Uint32(value))
	case groupLevelField:
		if err = verifyFieldSize("group level", value, 2); err != nil {
			return err
		}
		g.level = binary.LittleEndian.Uint16(value)
	case groupFlagsField:
		if err = verifyFieldSize("group flags", value, 4); err != nil {
			return err
		}
		g.Flags = binary.LittleEndian.Uint32(value)
	default:
		return &CorruptedFieldError{Record: "group", Tag: tag}
	}
	return err
}

// write emits the group record in canonical field order. The order is
// part of the format contract.
func (g *Group) write(w io.Writer, level int) error {
	ww := &writer{w: w}
	writeUint32Field(ww, groupIDField, g.ID)
	writeStringField(ww, groupNameField, g.Name)
	writeDateField(ww, groupCreationTimeField, g.CreationTime)
	writeDateField(ww, groupLastModificationTimeField, g.LastModificationTime)
	writeDateField(ww, groupLastAccessTimeField, g.LastAccessTime)
	writeDateField(ww, groupExpiryTimeField, g.ExpiryTime)
	writeUint32Field(ww, groupIconField, uint32(g.Icon))
	writeUint16Field(ww, groupLevelField, uint16(level))
	writeUint32Field(ww, groupFlagsField, g.Flags)
	writeField(ww, fieldTerminator, []byte{})
	return ww.err
}

func (e *Entry) read(state *parseState, r io.Reader) error {
	fr := newFieldReader(r, "entry")
	var ferr error
	var attachName string
	for {
		tag, v, err := fr.next()
		if err == io.EOF {
			return ferr
		} else if err != nil {
			return err
		}
		if ferr == nil {
			ferr = e.readField(state, &attachName, tag, v)
		}
	}
}

func (e *Entry) readField(state *parseState, attachName *string, tag uint16, value []byte) error {
	var err error
	switch tag {
	case 0x0000:
		// ignore
	case entryUUIDField:
		if err = verifyFieldSize("entry UUID", value, 16); err != nil {
			return err
		}
		copy(e.UUID[:], value)
	case entryGroupIDField:
		if err = verifyFieldSize("entry group ID", value, 4); err != nil {
			return err
		}
		state.entryGroupIDs[e] = binary.LittleEndian.Uint32(value)
	case entryIconField:
		if err = verifyFieldSize("entry icon", value, 4); err != nil {
			return err
		}
		e.Icon = Icon(binary.LittleEndian.Uint32(value))
	case entryTitleField:
		e.Title = string(stripNull(value))
	case entryURLField:
		e.URL = string(stripNull(value))
	case entryUsernameField:
		e.Username = string(stripNull(value))
	case entryPasswordField:
		e.Password = secbuf.Of(stripNull(value))
	case entryNotesField:
		e.Notes = string(stripNull(value))
	case entryCreationTimeField:
		e.CreationTime, err = readDate("entry creation time", value)
	case entryLastModificationTimeField:
		e.LastModificationTime, err = readDate("entry modification time", value)
	case entryLastAccessTimeField:
		e.LastAccessTime, err = readDate("entry access time", value)
	case entryExpiryTimeField:
		e.ExpiryTime, err = readDate("entry expiry time", value)
	case entryAttachmentNameField:
		*attachName = string(stripNull(value))
	case entryAttachmentDataField:
		if len(value) > 0 {
			if e.Attachments == nil {
				e.Attachments = make(map[string][]byte)
			}
			data := make([]byte, len(value))
			copy(data, value)
			e.Attachments[*attachName] = data
		}
	default:
		return &CorruptedFieldError{Record: "entry", Tag: tag}
	}
	return err
}

// write emits the entry record in canonical field order with the
// owning group's ID stamped as the back-reference.
func (e *Entry) write(w io.Writer, gid uint32) error {
	ww := &writer{w: w}
	writeField(ww, entryUUIDField, e.UUID[:])
	writeUint32Field(ww, entryGroupIDField, gid)
	writeUint32Field(ww, entryIconField, uint32(e.Icon))
	writeStringField(ww, entryTitleField, e.Title)
	writeStringField(ww, entryURLField, e.URL)
	writeStringField(ww, entryUsernameField, e.Username)
	writeNulField(ww, entryPasswordField, e.Password.Bytes())
	writeStringField(ww, entryNotesField, e.Notes)
	writeDateField(ww, entryCreationTimeField, e.CreationTime)
	writeDateField(ww, entryLastModificationTimeField, e.LastModificationTime)
	writeDateField(ww, entryLastAccessTimeField, e.LastAccessTime)
	writeDateField(ww, entryExpiryTimeField, e.ExpiryTime)
	names := make([]string, 0, len(e.Attachments))
	for name := range e.Attachments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeStringField(ww, entryAttachmentNameField, name)
		writeField(ww, entryAttachmentDataField, e.Attachments[name])
	}
	if !e.isMetaStream() {
		writeStringField(ww, entryAttachmentNameField, "")
		writeField(ww, entryAttachmentDataField, []byte{})
	}
	writeField(ww, fieldTerminator, []byte{})
	return ww.err
}

// writeNulField emits raw bytes with the trailing NUL string fields
// carry, wiping the intermediate copy afterwards.
func writeNulField(w *writer, tag uint16, b []byte) {
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	writeField(w, tag, buf)
	secbuf.Wipe(buf)
}
