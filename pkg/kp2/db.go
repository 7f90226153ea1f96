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

// Package kp2 reads and writes the KeePass 2.x (KDBX) database file
// format: an encrypted container around an XML document. Versions 3
// and 4 of the container are supported, including the Argon2 KDFs,
// the ChaCha20 content cipher, and the HMAC block stream.
package kp2

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"time"

	"zombiezen.com/go/kdbcodec/pkg/kdbcrypt"
	"zombiezen.com/go/kdbcodec/pkg/kdf"
	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/secbuf"
	"zombiezen.com/go/kdbcodec/pkg/streamcipher"
)

const generatorName = "kdbcodec"

// recycleBinName is the name KeePass 2.x gives a freshly created
// recycle bin group.
const recycleBinName = "Recycle Bin"

const recycleBinIcon = 43

// A Database is a decrypted KDBX file: the outer header parameters,
// the Meta settings block, and the group tree.
type Database struct {
	header  *Header
	meta    *Meta
	root    *Group
	deleted []DeletedObject
	pool    *binaryPool

	password    *secbuf.Buffer
	keyFileHash []byte
	rand        io.Reader
	clock       func() time.Time
	staticSeeds bool
}

// Options is the set of parameters for creating or opening a database.
// Nil is treated the same as the zero value.
type Options struct {
	// Password is an optional textual password.
	Password string

	// KeyFile is an optional key file.
	KeyFile io.Reader

	// KDF selects the key derivation settings for new databases.
	// If nil, Argon2id with the KeePass defaults is used.
	KDF kdf.Params

	// Cipher selects the content cipher UUID for new databases.
	// The zero value selects AES-256.
	Cipher [16]byte

	// Version selects the container version for new databases: 3 or 4.
	// The zero value selects 4.
	Version int

	// NoCompression disables gzip for new databases.
	NoCompression bool

	// Rand is the source of entropy for seeds and UUIDs.
	// If nil, crypto/rand is used.
	Rand io.Reader

	// Now reports the current time for new timestamps.
	// If nil, time.Now is used.
	Now func() time.Time

	// StaticSeedsForTesting disables refreshing seed material at save
	// time. This should only be used for testing purposes, since
	// reusing seeds weakens the encryption.
	StaticSeedsForTesting bool
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

func (opts *Options) getKDF() kdf.Params {
	if opts != nil && opts.KDF != nil {
		return opts.KDF
	}
	if opts.getVersion() < fileVersion4 {
		return &kdf.AESParams{Rounds: 60000}
	}
	return &kdf.Argon2Params{
		Variant:     kdf.Argon2id,
		MemoryKiB:   64 * 1024,
		Iterations:  2,
		Parallelism: 2,
		Version:     0x13,
	}
}

func (opts *Options) getCipher() [16]byte {
	if opts == nil || opts.Cipher == ([16]byte{}) {
		return CipherAES256
	}
	return opts.Cipher
}

func (opts *Options) getVersion() uint32 {
	if opts == nil || opts.Version == 0 || opts.Version == 4 {
		return fileVersion41
	}
	return fileVersion3
}

func (opts *Options) getCompression() uint32 {
	if opts != nil && opts.NoCompression {
		return CompressionNone
	}
	return CompressionGzip
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

func (opts *Options) getStaticSeeds() bool {
	return opts != nil && opts.StaticSeedsForTesting
}

func initDatabase(opts *Options) (*Database, error) {
	db := &Database{
		password:    secbuf.Of([]byte(opts.getPassword())),
		rand:        opts.getRand(),
		clock:       opts.getNow(),
		staticSeeds: opts.getStaticSeeds(),
		pool:        new(binaryPool),
	}
	if kf := opts.getKeyFile(); kf != nil {
		h, err := kdbcrypt.ReadKeyFile(kf)
		if err != nil {
			return nil, err
		}
		db.keyFileHash = h
	}
	return db, nil
}

// New creates a new, empty database.
func New(opts *Options) (*Database, error) {
	db, err := initDatabase(opts)
	if err != nil {
		return nil, err
	}
	db.header = &Header{
		Version:     opts.getVersion(),
		CipherID:    opts.getCipher(),
		Compression: opts.getCompression(),
	}
	if err := db.header.setKDFParams(opts.getKDF()); err != nil {
		return nil, err
	}
	if db.header.MajorVersion() < 4 {
		db.header.InnerStreamID = innerStreamSalsa20
	}
	if err := db.refreshSeeds(true); err != nil {
		return nil, err
	}
	now := db.now()
	rootUUID, err := NewUUID(db.rand)
	if err != nil {
		return nil, err
	}
	db.root = &Group{
		UUID:       rootUUID,
		Name:       "Root",
		IsExpanded: True,
		Times:      newTimes(now),
	}
	db.meta = &Meta{
		Generator:              generatorName,
		MasterKeyChanged:       newTime(now, false),
		DatabaseNameChanged:    newTime(now, false),
		RecycleBinEnabled:      True,
		RecycleBinChanged:      newTime(now, false),
		MaintenanceHistoryDays: 365,
		HistoryMaxItems:        10,
		HistoryMaxSize:         6 * 1024 * 1024,
		MemoryProtection:       MemoryProtection{ProtectPassword: True},
	}
	return db, nil
}

func newTimes(now time.Time) Times {
	t := newTime(now, false)
	return Times{
		CreationTime:         t,
		LastModificationTime: t,
		LastAccessTime:       t,
		ExpiryTime:           t,
		Expires:              False,
		LocationChanged:      t,
	}
}

// Open decrypts a database with the given credentials. ErrKeyMismatch
// reports wrong credentials or corruption that is indistinguishable
// from them; later integrity failures report more specific errors.
// prog is polled during key transformation and decryption.
func Open(r io.Reader, opts *Options, prog *progress.Progress) (*Database, error) {
	db, err := initDatabase(opts)
	if err != nil {
		return nil, err
	}
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	db.header = h

	composite := compositeKey(db.password.Bytes(), db.keyFileHash)
	defer composite.Erase()
	mk, err := deriveMasterKey(h, composite, prog)
	if err != nil {
		return nil, err
	}
	defer mk.erase()

	if h.MajorVersion() >= 4 {
		err = db.open4(r, mk, prog)
	} else {
		err = db.open3(r, mk, prog)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (db *Database) open3(r io.Reader, mk *masterKey, prog *progress.Progress) error {
	h := db.header
	crypt, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	plain, err := decryptContent(h, mk.cipherKey, crypt, prog)
	if err != nil {
		if errors.Is(err, progress.ErrCancelled) {
			return err
		}
		var ue *UnsupportedError
		if errors.As(err, &ue) {
			return err
		}
		return ErrKeyMismatch
	}
	defer secbuf.Wipe(plain)
	if len(plain) < len(h.StreamStartBytes) ||
		!hmac.Equal(plain[:len(h.StreamStartBytes)], h.StreamStartBytes) {
		return ErrKeyMismatch
	}
	content, err := readHashedBlocks(bytes.NewReader(plain[len(h.StreamStartBytes):]), prog)
	if err != nil {
		return err
	}
	if h.Compression == CompressionGzip {
		content, err = gunzip(content)
		if err != nil {
			return ErrCorruptData
		}
	}
	stream, err := newInnerStream(h.InnerStreamID, h.ProtectedStreamKey)
	if err != nil {
		return err
	}
	if err := db.unmarshalXML(content); err != nil {
		return err
	}
	if db.meta.HeaderHash != "" {
		sum := sha256.Sum256(h.Raw())
		want, err := base64.StdEncoding.DecodeString(db.meta.HeaderHash)
		if err != nil || !hmac.Equal(sum[:], want) {
			return ErrCorruptData
		}
	}
	// Meta precedes Root, so protected pool bodies consume the inner
	// stream before any protected value.
	pool, remap, err := loadMetaBinaries(db.meta.Binaries, stream, prog)
	if err != nil {
		return err
	}
	db.pool = pool
	db.meta.Binaries = nil
	if err := db.decryptValues(stream, prog); err != nil {
		return err
	}
	db.remapBinaryRefs(remap)
	return nil
}

func (db *Database) open4(r io.Reader, mk *masterKey, prog *progress.Progress) error {
	h := db.header
	var sums [64]byte
	if _, err := io.ReadFull(r, sums[:]); err != nil {
		return ErrPrematureEnd
	}
	headerSum := sha256.Sum256(h.Raw())
	if !hmac.Equal(headerSum[:], sums[:32]) {
		return ErrCorruptData
	}
	if !hmac.Equal(headerHMAC(mk.hmacBase.Bytes(), h.Raw()), sums[32:]) {
		return ErrKeyMismatch
	}
	crypt, err := readHMACBlocks(r, mk.hmacBase.Bytes(), prog)
	if err != nil {
		return err
	}
	plain, err := decryptContent(h, mk.cipherKey, crypt, prog)
	if err != nil {
		if errors.Is(err, progress.ErrCancelled) {
			return err
		}
		var ue *UnsupportedError
		if errors.As(err, &ue) {
			return err
		}
		return ErrCorruptData
	}
	defer secbuf.Wipe(plain)
	if h.Compression == CompressionGzip {
		plain, err = gunzip(plain)
		if err != nil {
			return ErrCorruptData
		}
	}
	inner, content, err := readInnerHeader(plain)
	if err != nil {
		return err
	}
	stream, err := newInnerStream(inner.streamID, inner.streamKey)
	if err != nil {
		return err
	}
	db.pool = loadInnerBinaries(inner.binaries)
	if err := db.unmarshalXML(content); err != nil {
		return err
	}
	return db.decryptValues(stream, prog)
}

func (db *Database) unmarshalXML(content []byte) error {
	doc := new(document)
	if err := xml.Unmarshal(content, doc); err != nil {
		return err
	}
	if doc.Meta == nil || doc.Root == nil || doc.Root.Group == nil {
		return ErrCorruptData
	}
	db.meta = doc.Meta
	db.root = doc.Root.Group
	db.deleted = doc.Root.DeletedObjects
	return nil
}

// decryptValues decrypts protected values in document order against a
// single cipher stream.
func (db *Database) decryptValues(stream streamcipher.Stream, prog *progress.Progress) error {
	return db.root.walkValues(func(v *Value) error {
		if !v.IsProtected() {
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(v.Content)
		if err != nil {
			return ErrCorruptData
		}
		dec, err := stream.Decrypt(raw, prog)
		if err != nil {
			return err
		}
		v.Content = string(dec)
		secbuf.Wipe(dec)
		return nil
	})
}

func (db *Database) remapBinaryRefs(remap map[int]int) {
	var walk func(g *Group)
	walk = func(g *Group) {
		for _, e := range g.Entries {
			for i := range e.Binaries {
				if idx, ok := remap[e.Binaries[i].Value.Ref]; ok {
					e.Binaries[i].Value.Ref = idx
				}
			}
		}
		for _, sub := range g.Groups {
			walk(sub)
		}
	}
	walk(db.root)
}

// refreshSeeds replaces every piece of per-save seed material: the
// master seed, the IV, the KDF seed or salt, and the inner stream key.
func (db *Database) refreshSeeds(force bool) error {
	if db.staticSeeds && !force {
		return nil
	}
	h := db.header
	h.MasterSeed = make([]byte, 32)
	if _, err := io.ReadFull(db.rand, h.MasterSeed); err != nil {
		return err
	}
	h.IV = make([]byte, ivSize(h.CipherID))
	if _, err := io.ReadFull(db.rand, h.IV); err != nil {
		return err
	}
	params, err := h.kdfParams()
	if err != nil {
		return err
	}
	switch p := params.(type) {
	case *kdf.AESParams:
		if _, err := io.ReadFull(db.rand, p.Seed[:]); err != nil {
			return err
		}
	case *kdf.Argon2Params:
		p.Salt = make([]byte, 32)
		if _, err := io.ReadFull(db.rand, p.Salt); err != nil {
			return err
		}
	}
	if err := h.setKDFParams(params); err != nil {
		return err
	}
	if h.MajorVersion() < 4 {
		h.ProtectedStreamKey = make([]byte, 32)
		if _, err := io.ReadFull(db.rand, h.ProtectedStreamKey); err != nil {
			return err
		}
		h.StreamStartBytes = make([]byte, 32)
		if _, err := io.ReadFull(db.rand, h.StreamStartBytes); err != nil {
			return err
		}
	}
	return nil
}

// Write encrypts the database to w. Unless the database was opened
// with StaticSeedsForTesting, all seed material is refreshed on every
// save. prog is polled during key transformation and encryption.
func (db *Database) Write(w io.Writer, prog *progress.Progress) error {
	if err := db.refreshSeeds(false); err != nil {
		return err
	}
	h := db.header
	v4 := h.MajorVersion() >= 4

	var streamKey []byte
	if v4 {
		streamKey = make([]byte, 64)
		if _, err := io.ReadFull(db.rand, streamKey); err != nil {
			return err
		}
	} else {
		streamKey = h.ProtectedStreamKey
	}
	streamID := innerStreamChaCha20
	if !v4 {
		streamID = h.InnerStreamID
	}
	stream, err := newInnerStream(streamID, streamKey)
	if err != nil {
		return err
	}

	// Serialize the header first: the version 3 XML embeds its hash.
	hdrBuf := new(bytes.Buffer)
	if err := h.Write(hdrBuf); err != nil {
		return err
	}

	db.meta.Generator = generatorName
	if v4 {
		db.meta.HeaderHash = ""
		db.meta.Binaries = nil
	} else {
		sum := sha256.Sum256(h.Raw())
		db.meta.HeaderHash = base64.StdEncoding.EncodeToString(sum[:])
		db.meta.Binaries, err = db.pool.metaBinaries(stream, prog)
		if err != nil {
			return err
		}
	}
	db.root.setFormatted(!v4)

	xmlBytes, err := db.marshalXML(stream, prog)
	if err != nil {
		return err
	}
	defer secbuf.Wipe(xmlBytes)

	composite := compositeKey(db.password.Bytes(), db.keyFileHash)
	defer composite.Erase()
	mk, err := deriveMasterKey(h, composite, prog)
	if err != nil {
		return err
	}
	defer mk.erase()

	if v4 {
		return db.write4(w, hdrBuf.Bytes(), xmlBytes, streamKey, mk, prog)
	}
	return db.write3(w, hdrBuf.Bytes(), xmlBytes, mk, prog)
}

func (db *Database) write3(w io.Writer, hdr, xmlBytes []byte, mk *masterKey, prog *progress.Progress) error {
	h := db.header
	content := xmlBytes
	var err error
	if h.Compression == CompressionGzip {
		content, err = gzipBytes(xmlBytes)
		if err != nil {
			return err
		}
	}
	plain := new(bytes.Buffer)
	plain.Write(h.StreamStartBytes)
	if err := writeHashedBlocks(plain, content, prog); err != nil {
		return err
	}
	crypt, err := encryptContent(h, mk.cipherKey, plain.Bytes(), prog)
	if err != nil {
		return err
	}
	secbuf.Wipe(plain.Bytes())
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err = w.Write(crypt)
	return err
}

func (db *Database) write4(w io.Writer, hdr, xmlBytes, streamKey []byte, mk *masterKey, prog *progress.Progress) error {
	h := db.header
	inner := &innerHeader{
		streamID:  innerStreamChaCha20,
		streamKey: streamKey,
		binaries:  db.pool.innerBinaries(),
	}
	plain := new(bytes.Buffer)
	if err := inner.write(plain); err != nil {
		return err
	}
	plain.Write(xmlBytes)

	content := plain.Bytes()
	var err error
	if h.Compression == CompressionGzip {
		content, err = gzipBytes(content)
		if err != nil {
			return err
		}
	}
	crypt, err := encryptContent(h, mk.cipherKey, content, prog)
	if err != nil {
		return err
	}
	secbuf.Wipe(plain.Bytes())

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	headerSum := sha256.Sum256(hdr)
	if _, err := w.Write(headerSum[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerHMAC(mk.hmacBase.Bytes(), hdr)); err != nil {
		return err
	}
	return writeHMACBlocks(w, mk.hmacBase.Bytes(), crypt, prog)
}

// marshalXML serializes the document, encrypting protected values in
// document order. The in-memory plaintext is restored before
// returning.
func (db *Database) marshalXML(stream streamcipher.Stream, prog *progress.Progress) ([]byte, error) {
	var saved []string
	restore := func() {
		i := 0
		db.root.walkValues(func(v *Value) error {
			if v.IsProtected() {
				v.Content = saved[i]
				i++
			}
			return nil
		})
	}
	err := db.root.walkValues(func(v *Value) error {
		if !v.IsProtected() {
			return nil
		}
		saved = append(saved, v.Content)
		enc, err := stream.Encrypt([]byte(v.Content), prog)
		if err != nil {
			return err
		}
		v.Content = base64.StdEncoding.EncodeToString(enc)
		return nil
	})
	if err != nil {
		restore()
		return nil, err
	}
	doc := &document{
		Meta: db.meta,
		Root: &rootTag{Group: db.root, DeletedObjects: db.deleted},
	}
	out, err := xml.MarshalIndent(doc, "", "\t")
	restore()
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func (db *Database) now() time.Time {
	if db.clock == nil {
		return time.Now()
	}
	return db.clock()
}

// Root returns the root group.
func (db *Database) Root() *Group { return db.root }

// Meta returns the database settings block.
func (db *Database) Meta() *Meta { return db.meta }

// Version returns the container major version, 3 or 4.
func (db *Database) Version() int { return db.header.MajorVersion() }

// DeletedObjects returns the tombstones of permanently removed items.
func (db *Database) DeletedObjects() []DeletedObject { return db.deleted }

// FindGroup returns the group with the given UUID, or nil.
func (db *Database) FindGroup(id UUID) *Group {
	g, _ := findGroup(db.root, id)
	return g
}

// findGroup returns the group and its parent (nil for the root).
func findGroup(g *Group, id UUID) (found, parent *Group) {
	if g.UUID == id {
		return g, nil
	}
	for _, sub := range g.Groups {
		if sub.UUID == id {
			return sub, g
		}
		if f, p := findGroup(sub, id); f != nil {
			return f, p
		}
	}
	return nil, nil
}

// FindEntry returns the entry with the given UUID, or nil.
func (db *Database) FindEntry(id UUID) *Entry {
	e, _ := findEntry(db.root, id)
	return e
}

func findEntry(g *Group, id UUID) (*Entry, *Group) {
	for _, e := range g.Entries {
		if e.UUID == id {
			return e, g
		}
	}
	for _, sub := range g.Groups {
		if e, owner := findEntry(sub, id); e != nil {
			return e, owner
		}
	}
	return nil, nil
}

// CreateGroup makes a new subgroup of parent.
func (db *Database) CreateGroup(parent *Group, name string) (*Group, error) {
	if parent == nil {
		return nil, errNilParent
	}
	id, err := NewUUID(db.rand)
	if err != nil {
		return nil, err
	}
	g := &Group{
		UUID:       id,
		Name:       name,
		IconID:     parent.IconID,
		IsExpanded: True,
		Times:      newTimes(db.now()),
	}
	parent.Groups = append(parent.Groups, g)
	return g, nil
}

// CreateEntry makes a new entry in parent with the standard fields
// present and the password marked protected.
func (db *Database) CreateEntry(parent *Group) (*Entry, error) {
	if parent == nil {
		return nil, errNilParent
	}
	id, err := NewUUID(db.rand)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		UUID:   id,
		IconID: parent.IconID,
		Times:  newTimes(db.now()),
	}
	e.SetString(KeyTitle, "", false)
	e.SetString(KeyUsername, db.meta.DefaultUserName, false)
	e.SetString(KeyPassword, "", true)
	e.SetString(KeyURL, "", false)
	e.SetString(KeyNotes, "", false)
	parent.Entries = append(parent.Entries, e)
	return e, nil
}

// inSubtree reports whether other is g or one of g's descendants.
func (g *Group) inSubtree(other *Group) bool {
	if g == other {
		return true
	}
	for _, sub := range g.Groups {
		if sub.inSubtree(other) {
			return true
		}
	}
	return false
}

// SetParent moves g under parent. Moving the root or into the group's
// own subtree is rejected with the tree unchanged.
func (db *Database) SetParent(g, parent *Group) error {
	if parent == nil {
		return errNilParent
	}
	if g == db.root {
		return errMoveRoot
	}
	if g.inSubtree(parent) {
		return errMoveIntoSelf
	}
	_, old := findGroup(db.root, g.UUID)
	if old == nil {
		return errMoveRoot
	}
	if old == parent {
		return nil
	}
	old.Groups = removeGroup(old.Groups, g)
	parent.Groups = append(parent.Groups, g)
	g.Times.LocationChanged = newTime(db.now(), g.Times.LocationChanged.Formatted)
	return nil
}

func removeGroup(groups []*Group, g *Group) []*Group {
	for i, sub := range groups {
		if sub == g {
			return append(groups[:i], groups[i+1:]...)
		}
	}
	return groups
}

func removeEntry(entries []*Entry, e *Entry) []*Entry {
	for i, x := range entries {
		if x == e {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// RecycleBin returns the recycle bin group, creating it if the
// database allows one. errNoRecycleBin is returned when Meta disables
// the bin.
func (db *Database) RecycleBin() (*Group, error) {
	if db.meta.RecycleBinEnabled.Valid && !db.meta.RecycleBinEnabled.Value {
		return nil, errNoRecycleBin
	}
	if !db.meta.RecycleBinUUID.IsZero() {
		if bin := db.FindGroup(db.meta.RecycleBinUUID); bin != nil {
			return bin, nil
		}
	}
	bin, err := db.CreateGroup(db.root, recycleBinName)
	if err != nil {
		return nil, err
	}
	bin.IconID = recycleBinIcon
	bin.EnableAutoType = False
	bin.EnableSearching = False
	db.meta.RecycleBinUUID = bin.UUID
	db.meta.RecycleBinChanged = newTime(db.now(), db.meta.RecycleBinChanged.Formatted)
	return bin, nil
}

// MoveGroupToBackup soft-deletes g by relocating it, subtree intact,
// into the recycle bin.
func (db *Database) MoveGroupToBackup(g *Group) error {
	if g == db.root {
		return errMoveRoot
	}
	bin, err := db.RecycleBin()
	if err != nil {
		return err
	}
	if g.inSubtree(bin) {
		return errMoveIntoSelf
	}
	return db.SetParent(g, bin)
}

// MoveEntryToBackup soft-deletes e by relocating it into the recycle
// bin.
func (db *Database) MoveEntryToBackup(e *Entry) error {
	bin, err := db.RecycleBin()
	if err != nil {
		return err
	}
	_, owner := findEntry(db.root, e.UUID)
	if owner == nil {
		return errNotFound
	}
	if owner == bin {
		return nil
	}
	owner.Entries = removeEntry(owner.Entries, e)
	bin.Entries = append(bin.Entries, e)
	e.Times.LocationChanged = newTime(db.now(), e.Times.LocationChanged.Formatted)
	return nil
}

// Delete permanently removes the group or entry with the given UUID
// and records a tombstone for synchronizing clients.
func (db *Database) Delete(id UUID) error {
	now := newTime(db.now(), db.Version() < 4)
	if g, parent := findGroup(db.root, id); g != nil {
		if parent == nil {
			return errMoveRoot
		}
		parent.Groups = removeGroup(parent.Groups, g)
		db.deleted = append(db.deleted, DeletedObject{UUID: id, DeletionTime: now})
		return nil
	}
	if e, owner := findEntry(db.root, id); e != nil {
		owner.Entries = removeEntry(owner.Entries, e)
		db.deleted = append(db.deleted, DeletedObject{UUID: id, DeletionTime: now})
		return nil
	}
	return errNotFound
}

// Attachment returns the named attachment body of e.
func (db *Database) Attachment(e *Entry, key string) ([]byte, error) {
	for i := range e.Binaries {
		if e.Binaries[i].Key == key {
			return db.pool.get(e.Binaries[i].Value.Ref)
		}
	}
	return nil, errBadBinaryRef
}

// SetAttachment stores an attachment body under the given name,
// sharing pool slots between identical bodies. protected marks the
// body for memory protection in version 4 files.
func (db *Database) SetAttachment(e *Entry, key string, data []byte, protected bool) {
	body := make([]byte, len(data))
	copy(body, data)
	ref := db.pool.add(body, protected)
	for i := range e.Binaries {
		if e.Binaries[i].Key == key {
			e.Binaries[i].Value.Ref = ref
			return
		}
	}
	br := BinaryRef{Key: key}
	br.Value.Ref = ref
	e.Binaries = append(e.Binaries, br)
}

// Erase wipes the credentials and every protected value. The database
// must not be used afterward.
func (db *Database) Erase() {
	db.password.Erase()
	secbuf.Wipe(db.keyFileHash)
	if db.root != nil {
		db.root.walkValues(func(v *Value) error {
			v.Content = ""
			return nil
		})
	}
	if db.pool != nil {
		for i := range db.pool.bodies {
			secbuf.Wipe(db.pool.bodies[i].data)
		}
	}
	db.root = nil
	db.meta = nil
	db.pool = nil
}
