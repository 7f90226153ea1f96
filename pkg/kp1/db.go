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

// Package kp1 reads and writes the original KeePass 1.x database file
// format. A database is a two-section flat stream of group and entry
// records encrypted with a key derived from the user's credentials;
// this package reconstructs the group tree from record nesting levels
// and flattens it back on save.
package kp1

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"zombiezen.com/go/kdbcodec/pkg/kdbcrypt"
	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/secbuf"
)

// A Database represents a decrypted KDB file.
type Database struct {
	cparams  kdbcrypt.Params
	staticIV bool
	rand     io.Reader
	clock    func() time.Time

	root    *Group
	groups  map[uint32]*Group
	entries []*Entry
	meta    []metaStream
	backup  *Group
}

// A metaStream is a client bookkeeping entry. It is hidden from the
// tree but written back verbatim so other clients keep their state.
type metaStream struct {
	entry   *Entry
	groupID uint32
}

// New creates a new, empty database with fresh seeds.
func New(opts *Options) (*Database, error) {
	db, err := initDatabase(opts)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(db.rand, db.cparams.Key.MasterSeed[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(db.rand, db.cparams.Key.TransformSeed[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(db.rand, db.cparams.IV[:]); err != nil {
		return nil, err
	}
	return db, nil
}

func initDatabase(opts *Options) (*Database, error) {
	db := &Database{
		groups:   make(map[uint32]*Group),
		rand:     opts.getRand(),
		clock:    opts.getNow(),
		staticIV: opts.getStaticIV(),
	}
	db.root = &Group{db: db}
	db.cparams = kdbcrypt.Params{
		Key: kdbcrypt.Key{
			Password:        []byte(opts.getPassword()),
			TransformRounds: opts.getKeyRounds(),
		},
		Cipher:      opts.getCipher(),
		ComputedKey: opts.getComputedKey(),
	}
	if kf := opts.getKeyFile(); kf != nil {
		h, err := kdbcrypt.ReadKeyFile(kf)
		if err != nil {
			return nil, err
		}
		db.cparams.Key.KeyFileHash = h
	}
	return db, nil
}

// Open decrypts a database with the given credentials. The returned
// error is ErrHashMismatch if the credentials are wrong or the
// ciphertext is corrupted; the two cases cannot be told apart.
// prog is polled during key transformation and decryption.
func Open(r io.Reader, opts *Options, prog *progress.Progress) (*Database, error) {
	db, err := initDatabase(opts)
	if err != nil {
		return nil, err
	}
	var h Header
	if err := h.Read(r); err != nil {
		return nil, err
	}
	db.cparams.Cipher = h.Cipher
	db.cparams.IV = h.EncryptionIV
	db.cparams.Key.MasterSeed = h.MasterSeed
	db.cparams.Key.TransformSeed = h.TransformSeed
	db.cparams.Key.TransformRounds = h.TransformRounds
	crypt, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	plain, err := decryptDatabase(crypt, &db.cparams, h.ContentHash[:], prog)
	if err != nil {
		return nil, err
	}
	defer secbuf.Wipe(plain)
	if err := db.parse(bytes.NewReader(plain), int(h.NumGroups), int(h.NumEntries)); err != nil {
		return nil, err
	}
	return db, nil
}

// decryptDatabase decrypts and verifies the content section. Any
// decryption failure other than cancellation is reported as
// ErrHashMismatch, since a wrong key and corrupt data are
// indistinguishable until the hash check.
func decryptDatabase(crypt []byte, params *kdbcrypt.Params, contentHash []byte, prog *progress.Progress) ([]byte, error) {
	if len(crypt) == 0 || len(crypt)%kdbcrypt.BlockSize != 0 {
		return nil, errDatabaseUnaligned
	}
	dec, err := kdbcrypt.NewDecrypter(bytes.NewReader(crypt), params, prog)
	if err != nil {
		return nil, err
	}
	sum := sha256.New()
	plain, err := io.ReadAll(io.TeeReader(dec, sum))
	if err != nil {
		secbuf.Wipe(plain)
		if errors.Is(err, progress.ErrCancelled) {
			return nil, err
		}
		return nil, ErrHashMismatch
	}
	if !bytes.Equal(sum.Sum(nil), contentHash) {
		secbuf.Wipe(plain)
		return nil, ErrHashMismatch
	}
	return plain, nil
}

type parseState struct {
	groups        map[uint32]*Group
	entryGroupIDs map[*Entry]uint32
}

func (db *Database) parse(r io.Reader, ngroups, nentries int) error {
	state := &parseState{
		groups:        db.groups,
		entryGroupIDs: make(map[*Entry]uint32, nentries),
	}
	groups := make([]*Group, 0, ngroups)
	for i := 0; i < ngroups; i++ {
		g := &Group{db: db}
		if err := g.read(state, r); err != nil {
			return err
		}
		groups = append(groups, g)
	}
	for i, g := range groups {
		parent, err := findGroupParent(groups, i)
		if err != nil {
			return err
		}
		if parent == nil {
			parent = db.root
		}
		parent.groups = append(parent.groups, g)
		g.parent = parent
	}
	for i := 0; i < nentries; i++ {
		e := &Entry{db: db}
		if err := e.read(state, r); err != nil {
			return err
		}
		gid := state.entryGroupIDs[e]
		if e.isMetaStream() {
			db.meta = append(db.meta, metaStream{entry: e, groupID: gid})
			continue
		}
		g := state.groups[gid]
		if g == nil {
			return errGroupsInconsistent
		}
		g.addEntry(e)
		db.entries = append(db.entries, e)
	}
	for _, g := range db.root.groups {
		if g.Deleted {
			if db.backup == nil {
				db.backup = g
			}
			g.markDeleted()
		}
	}
	return nil
}

// findGroupParent resolves the parent of groups[i] from the record
// nesting levels: the nearest preceding group one level up. A level
// that jumps past its ancestry is an orphan.
func findGroupParent(groups []*Group, i int) (*Group, error) {
	lvl := groups[i].level
	if lvl == 0 {
		return nil, nil
	}
	for j := i - 1; j >= 0; j-- {
		switch {
		case groups[j].level == lvl-1:
			return groups[j], nil
		case groups[j].level < lvl-1:
			return nil, errNoParent
		}
	}
	return nil, errNoParent
}

// Write encrypts the database to w. Unless the database was opened
// with StaticIVForTesting, the IV is refreshed on every save, and the
// seeds too when the credentials are available to rebuild the key.
// prog is polled during key transformation and encryption.
func (db *Database) Write(w io.Writer, prog *progress.Progress) error {
	if err := db.refreshSeeds(); err != nil {
		return err
	}
	plain := new(bytes.Buffer)
	ngroups, nentries, err := db.writePlaintext(plain)
	if err != nil {
		return err
	}
	defer secbuf.Wipe(plain.Bytes())
	h := Header{
		Cipher:          db.cparams.Cipher,
		MasterSeed:      db.cparams.Key.MasterSeed,
		EncryptionIV:    db.cparams.IV,
		NumGroups:       uint32(ngroups),
		NumEntries:      uint32(nentries),
		ContentHash:     sha256.Sum256(plain.Bytes()),
		TransformSeed:   db.cparams.Key.TransformSeed,
		TransformRounds: db.cparams.Key.TransformRounds,
	}
	crypt := new(bytes.Buffer)
	enc, err := kdbcrypt.NewEncrypter(crypt, &db.cparams, prog)
	if err != nil {
		return err
	}
	if _, err := enc.Write(plain.Bytes()); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := h.Write(w); err != nil {
		return err
	}
	_, err = w.Write(crypt.Bytes())
	return err
}

func (db *Database) refreshSeeds() error {
	if db.staticIV {
		return nil
	}
	if _, err := io.ReadFull(db.rand, db.cparams.IV[:]); err != nil {
		return err
	}
	if len(db.cparams.Key.Password) == 0 && len(db.cparams.Key.KeyFileHash) == 0 {
		// Only a precomputed key is on hand; changing the seeds would
		// make it unreproducible. Keep them.
		return nil
	}
	if _, err := io.ReadFull(db.rand, db.cparams.Key.MasterSeed[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(db.rand, db.cparams.Key.TransformSeed[:]); err != nil {
		return err
	}
	db.cparams.ComputedKey.Erase()
	db.cparams.ComputedKey = nil
	return nil
}

// writePlaintext serializes the content section: every group in
// depth-first document order, then every entry grouped by its owner in
// the same order, then the client meta streams.
func (db *Database) writePlaintext(w io.Writer) (ngroups, nentries int, err error) {
	type frame struct {
		g     *Group
		level int
	}
	var order []frame
	stack := make([]frame, 0, len(db.root.groups))
	for i := len(db.root.groups) - 1; i >= 0; i-- {
		stack = append(stack, frame{db.root.groups[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, f)
		for i := len(f.g.groups) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.g.groups[i], f.level + 1})
		}
	}
	for _, f := range order {
		if err := f.g.write(w, f.level); err != nil {
			return 0, 0, err
		}
		ngroups++
	}
	for _, f := range order {
		for _, e := range f.g.entries {
			if err := e.write(w, f.g.ID); err != nil {
				return 0, 0, err
			}
			nentries++
		}
	}
	for _, m := range db.meta {
		gid := m.groupID
		if _, ok := db.groups[gid]; !ok {
			// The group the client pinned its state to is gone.
			// Reassign to the first group, like KeePass does.
			if len(order) == 0 {
				continue
			}
			gid = order[0].g.ID
		}
		if err := m.entry.write(w, gid); err != nil {
			return 0, 0, err
		}
		nentries++
	}
	return ngroups, nentries, nil
}

// Root returns the root group. The root does not appear in the file;
// its subgroups are the level-zero groups.
func (db *Database) Root() *Group { return db.root }

// Backup returns the recycle bin group, or nil if the database does
// not have one yet.
func (db *Database) Backup() *Group { return db.backup }

// Entries returns all entries in the database, in no particular order.
func (db *Database) Entries() []*Entry {
	e := make([]*Entry, len(db.entries))
	copy(e, db.entries)
	return e
}

// Find returns the entry with the given UUID, or nil if not found.
func (db *Database) Find(id uuid.UUID) *Entry {
	for _, e := range db.entries {
		if e.UUID == id {
			return e
		}
	}
	return nil
}

// FindGroup returns the group with the given ID, or nil if not found.
func (db *Database) FindGroup(id uint32) *Group {
	return db.groups[id]
}

// ComputedKey returns the derived cipher key for the current seeds,
// computing and caching it if necessary.
func (db *Database) ComputedKey(prog *progress.Progress) (kdbcrypt.ComputedKey, error) {
	if db.cparams.ComputedKey != nil {
		return db.cparams.ComputedKey, nil
	}
	ck, err := db.cparams.Key.Compute(prog)
	if err != nil {
		return nil, err
	}
	db.cparams.ComputedKey = ck
	return ck, nil
}

// nextGroupID returns the smallest unused group ID.
func (db *Database) nextGroupID() uint32 {
	for id := uint32(1); ; id++ {
		if _, ok := db.groups[id]; !ok {
			return id
		}
	}
}

func (db *Database) now() time.Time {
	if db.clock == nil {
		return time.Now()
	}
	return db.clock()
}

func (db *Database) ensureBackupGroup() (*Group, error) {
	if db == nil || db.root == nil {
		return nil, errBackupUnavailable
	}
	if db.backup != nil {
		return db.backup, nil
	}
	for _, g := range db.root.groups {
		if g.Name == backupGroupName {
			db.backup = g
			g.markDeleted()
			return g, nil
		}
	}
	b := db.root.CreateGroup()
	b.Name = backupGroupName
	b.Icon = backupIcon
	b.markDeleted()
	db.backup = b
	return b, nil
}

// Erase wipes the key material and every entry's secrets. The
// database must not be used afterward.
func (db *Database) Erase() {
	for _, e := range db.entries {
		e.Erase()
	}
	for _, m := range db.meta {
		m.entry.Erase()
	}
	db.cparams.Key.Erase()
	db.cparams.ComputedKey.Erase()
	db.cparams.ComputedKey = nil
	db.entries = nil
	db.meta = nil
	db.groups = nil
	db.root = nil
	db.backup = nil
}
