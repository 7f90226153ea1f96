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
	"time"

	"github.com/google/uuid"

	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// Icon is a built-in icon index.
type Icon uint32

// backupIcon is the icon KeePass1 clients stamp on the recycle bin.
const backupIcon Icon = 4

// TimeInfo holds all of the temporal data for a group or entry. A zero
// ExpiryTime is the "never expires" sentinel.
type TimeInfo struct {
	LastModificationTime time.Time
	CreationTime         time.Time
	LastAccessTime       time.Time
	ExpiryTime           time.Time
}

// Expires reports whether the item has an expiry.
func (ti *TimeInfo) Expires() bool {
	return !ti.ExpiryTime.IsZero()
}

// stampNew sets the creation, access, and modification times to now
// and clears the expiry.
func (ti *TimeInfo) stampNew(now time.Time) {
	ti.CreationTime = now
	ti.LastAccessTime = now
	ti.LastModificationTime = now
	ti.ExpiryTime = time.Time{}
}

// A Group is a hierarchical collection of entries. Deleted marks
// recycle-bin membership; it is not serialized but derived from the
// backup group.
type Group struct {
	ID      uint32
	Name    string
	Icon    Icon
	Flags   uint32
	Deleted bool
	TimeInfo

	level   uint16 // nesting level as last read or recomputed
	db      *Database
	parent  *Group
	groups  []*Group
	entries []*Entry
}

// Mutation errors
var (
	errNilParent    = errors.New("keepass1: nil parent group")
	errMoveRoot     = errors.New("keepass1: cannot move the root group")
	errMoveIntoSelf = errors.New("keepass1: cannot move a group into itself or its subtree")
	errEntryAtRoot  = errors.New("keepass1: entries cannot live at the root level")
)

// Parent returns the containing group, or nil for the root.
func (g *Group) Parent() *Group { return g.parent }

// Level returns the nesting depth below the root.
func (g *Group) Level() int { return int(g.level) }

// Groups returns the subgroups as a slice.
func (g *Group) Groups() []*Group {
	gg := make([]*Group, len(g.groups))
	copy(gg, g.groups)
	return gg
}

// NGroups returns the number of subgroups this group has.
func (g *Group) NGroups() int { return len(g.groups) }

// Group returns the subgroup at index i. If i is out of range, this
// method will panic.
func (g *Group) Group(i int) *Group { return g.groups[i] }

// Entries returns the entries in the group as a slice.
func (g *Group) Entries() []*Entry {
	e := make([]*Entry, len(g.entries))
	copy(e, g.entries)
	return e
}

// NEntries returns the number of entries this group has.
func (g *Group) NEntries() int { return len(g.entries) }

// Entry returns the entry at index i. If i is out of range, this
// method will panic.
func (g *Group) Entry(i int) *Entry { return g.entries[i] }

// isRoot reports whether g is the synthetic root of its database.
func (g *Group) isRoot() bool { return g.db != nil && g.db.root == g }

// inSubtree reports whether other is g or a descendant of g.
func (g *Group) inSubtree(other *Group) bool {
	for ; other != nil; other = other.parent {
		if other == g {
			return true
		}
	}
	return false
}

// attach links sub under g, keeping both directions of the relation
// consistent and refreshing nesting levels for the moved subtree.
func (g *Group) attach(sub *Group) {
	g.groups = append(g.groups, sub)
	sub.parent = g
	sub.updateLevels()
}

// detach unlinks sub from g. It reports whether sub was a child.
func (g *Group) detach(sub *Group) bool {
	i, n := 0, len(g.groups)
	for ; i < n; i++ {
		if g.groups[i] == sub {
			break
		}
	}
	if i >= n {
		return false
	}
	copy(g.groups[i:], g.groups[i+1:])
	g.groups[n-1] = nil
	g.groups = g.groups[:n-1]
	sub.parent = nil
	return true
}

// updateLevels recomputes the nesting level of g and its subtree from
// the current parent chain.
func (g *Group) updateLevels() {
	depth := 0
	for p := g.parent; p != nil && !p.isRoot(); p = p.parent {
		depth++
	}
	g.setLevels(depth)
}

func (g *Group) setLevels(depth int) {
	g.level = uint16(depth)
	for _, sub := range g.groups {
		sub.setLevels(depth + 1)
	}
}

// SetParent moves g under parent, updating both parents' child lists
// and g's back-reference together. Moving the root, moving into the
// group's own subtree, and moving under nil are rejected with the tree
// unchanged.
func (g *Group) SetParent(parent *Group) error {
	switch {
	case parent == nil:
		return errNilParent
	case g.isRoot() || g.parent == nil:
		return errMoveRoot
	case g.inSubtree(parent):
		return errMoveIntoSelf
	case parent == g.parent:
		return nil
	}
	old := g.parent
	if !old.detach(g) {
		return errGroupsInconsistent
	}
	parent.attach(g)
	return nil
}

// CreateGroup makes a new subgroup of g: it stamps the next free ID,
// inherits g's icon and deleted state, sets the timestamps to now with
// no expiry, and attaches it.
func (g *Group) CreateGroup() *Group {
	sub := &Group{
		ID:      g.db.nextGroupID(),
		Icon:    g.Icon,
		Deleted: g.Deleted,
		db:      g.db,
	}
	sub.stampNew(g.db.now())
	g.attach(sub)
	g.db.groups[sub.ID] = sub
	return sub
}

// CreateEntry makes a new entry in g: it stamps a fresh UUID, inherits
// g's icon and deleted state, and sets the timestamps to now with no
// expiry. An error is returned if UUID generation fails.
func (g *Group) CreateEntry() (*Entry, error) {
	id, err := uuid.NewRandomFromReader(g.db.rand)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		UUID:    id,
		Icon:    g.Icon,
		Deleted: g.Deleted,
		db:      g.db,
	}
	e.stampNew(g.db.now())
	g.addEntry(e)
	g.db.entries = append(g.db.entries, e)
	return e, nil
}

func (g *Group) addEntry(e *Entry) {
	g.entries = append(g.entries, e)
	e.parent = g
}

func (g *Group) removeEntry(e *Entry) bool {
	var ok bool
	g.entries, ok = removeEntry(g.entries, e)
	if ok {
		e.parent = nil
	}
	return ok
}

func removeEntry(entries []*Entry, e *Entry) ([]*Entry, bool) {
	i, n := 0, len(entries)
	for ; i < n; i++ {
		if entries[i] == e {
			break
		}
	}
	if i >= n {
		return entries, false
	}
	copy(entries[i:], entries[i+1:])
	entries[n-1] = nil
	return entries[:n-1], true
}

// MoveToBackup soft-deletes g. The format cannot nest groups inside
// the backup group, so descendant entries are relocated into it one by
// one and descendant subgroups are discarded; that loss is a format
// limitation, not an accident. All relocations are computed up front,
// so a failure reported here leaves the tree unchanged.
func (g *Group) MoveToBackup() error {
	if g.parent == nil || g.isRoot() {
		return errNoParent
	}
	backup, err := g.db.ensureBackupGroup()
	if err != nil {
		return err
	}
	if g.inSubtree(backup) {
		return errBackupUnavailable
	}
	moved := g.collectEntries(nil)
	if !g.parent.detach(g) {
		return errGroupsInconsistent
	}
	for _, e := range moved {
		e.parent.removeEntry(e)
		backup.addEntry(e)
		e.Deleted = true
	}
	g.eraseSubtree()
	return nil
}

func (g *Group) collectEntries(dst []*Entry) []*Entry {
	dst = append(dst, g.entries...)
	for _, sub := range g.groups {
		dst = sub.collectEntries(dst)
	}
	return dst
}

// eraseSubtree erases g and every descendant group, dropping them from
// the database index.
func (g *Group) eraseSubtree() {
	for _, sub := range g.groups {
		sub.eraseSubtree()
	}
	delete(g.db.groups, g.ID)
	g.groups = nil
	g.entries = nil
	g.parent = nil
	g.Name = ""
	g.Flags = 0
	g.Deleted = false
}

// markDeleted flags g and every descendant as recycle-bin members.
func (g *Group) markDeleted() {
	g.Deleted = true
	for _, e := range g.entries {
		e.Deleted = true
	}
	for _, sub := range g.groups {
		sub.markDeleted()
	}
}

// Clone returns a detached shallow copy: every scalar property is
// duplicated, children and tree links are not. It snapshots a group
// before an edit session so Apply can discard the edits.
func (g *Group) Clone() *Group {
	c := &Group{
		ID:       g.ID,
		Name:     g.Name,
		Icon:     g.Icon,
		Flags:    g.Flags,
		Deleted:  g.Deleted,
		TimeInfo: g.TimeInfo,
		level:    g.level,
	}
	return c
}

// Apply copies g's scalar properties onto dst, leaving dst's tree
// links alone.
func (g *Group) Apply(dst *Group) {
	dst.ID = g.ID
	dst.Name = g.Name
	dst.Icon = g.Icon
	dst.Flags = g.Flags
	dst.Deleted = g.Deleted
	dst.TimeInfo = g.TimeInfo
}

// An Entry stores a username and password.
type Entry struct {
	UUID     uuid.UUID
	Title    string
	Icon     Icon
	URL      string
	Username string
	Password *secbuf.Buffer
	Notes    string
	Deleted  bool
	TimeInfo
	Attachments map[string][]byte

	db     *Database
	parent *Group
}

// Parent returns the group that owns the entry.
func (e *Entry) Parent() *Group { return e.parent }

// SetParent moves e into parent, updating both groups' entry lists and
// e's back-reference together. Entries cannot live at the root level.
func (e *Entry) SetParent(parent *Group) error {
	switch {
	case parent == nil:
		return errNilParent
	case parent.isRoot():
		return errEntryAtRoot
	case parent == e.parent:
		return nil
	}
	if e.parent != nil && !e.parent.removeEntry(e) {
		return errGroupsInconsistent
	}
	parent.addEntry(e)
	return nil
}

// MoveToBackup soft-deletes e by relocating it into the backup group.
func (e *Entry) MoveToBackup() error {
	if e.parent == nil {
		return errNoParent
	}
	backup, err := e.db.ensureBackupGroup()
	if err != nil {
		return err
	}
	e.parent.removeEntry(e)
	backup.addEntry(e)
	e.Deleted = true
	e.LastModificationTime = e.db.now()
	return nil
}

// Clone returns a detached copy of the entry. The password buffer and
// attachments are duplicated explicitly.
func (e *Entry) Clone() *Entry {
	c := &Entry{
		UUID:     e.UUID,
		Title:    e.Title,
		Icon:     e.Icon,
		URL:      e.URL,
		Username: e.Username,
		Password: e.Password.Clone(),
		Notes:    e.Notes,
		Deleted:  e.Deleted,
		TimeInfo: e.TimeInfo,
	}
	if e.Attachments != nil {
		c.Attachments = make(map[string][]byte, len(e.Attachments))
		for name, data := range e.Attachments {
			d := make([]byte, len(data))
			copy(d, data)
			c.Attachments[name] = d
		}
	}
	return c
}

// Apply copies e's scalar properties onto dst, erasing dst's previous
// password buffer.
func (e *Entry) Apply(dst *Entry) {
	dst.UUID = e.UUID
	dst.Title = e.Title
	dst.Icon = e.Icon
	dst.URL = e.URL
	dst.Username = e.Username
	dst.Notes = e.Notes
	dst.Deleted = e.Deleted
	dst.TimeInfo = e.TimeInfo
	dst.Password.Erase()
	dst.Password = e.Password.Clone()
}

// Erase wipes the entry's secret material.
func (e *Entry) Erase() {
	e.Password.Erase()
	e.Password = nil
	for _, data := range e.Attachments {
		secbuf.Wipe(data)
	}
	e.Attachments = nil
	e.Title = ""
	e.URL = ""
	e.Username = ""
	e.Notes = ""
}

func (e *Entry) isMetaStream() bool {
	return e.Title == "Meta-Info" && e.Username == "SYSTEM" && e.URL == "$" &&
		e.Icon == 0 && e.Notes != "" && len(e.Attachments["bin-stream"]) > 0
}
