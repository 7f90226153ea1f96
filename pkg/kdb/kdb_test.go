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

package kdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zombiezen.com/go/kdbcodec/pkg/fakerand"
	"zombiezen.com/go/kdbcodec/pkg/kdf"
	"zombiezen.com/go/kdbcodec/pkg/kp1"
	"zombiezen.com/go/kdbcodec/pkg/kp2"
)

const testPassword = "swordfish"

func kdbFile(t *testing.T) []byte {
	t.Helper()
	db, err := kp1.New(&kp1.Options{
		Password:  testPassword,
		KeyRounds: 64,
		Rand:      fakerand.NewSeeded(100),
	})
	require.NoError(t, err)
	g := db.Root().CreateGroup()
	g.Name = "Internet"
	e, err := g.CreateEntry()
	require.NoError(t, err)
	e.Title = "example.com"
	e.Username = "gopher"
	buf := new(bytes.Buffer)
	require.NoError(t, db.Write(buf, nil))
	return buf.Bytes()
}

func kdbxFile(t *testing.T) []byte {
	t.Helper()
	db, err := kp2.New(&kp2.Options{
		Password: testPassword,
		KDF: &kdf.Argon2Params{
			Variant:     kdf.Argon2id,
			MemoryKiB:   8,
			Iterations:  1,
			Parallelism: 1,
			Version:     0x13,
		},
		Rand: fakerand.NewSeeded(101),
	})
	require.NoError(t, err)
	g, err := db.CreateGroup(db.Root(), "Internet")
	require.NoError(t, err)
	e, err := db.CreateEntry(g)
	require.NoError(t, err)
	e.SetString(kp2.KeyTitle, "example.com", false)
	e.SetString(kp2.KeyUsername, "gopher", false)
	buf := new(bytes.Buffer)
	require.NoError(t, db.Write(buf, nil))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	kdb := kdbFile(t)
	kdbx := kdbxFile(t)

	assert.Equal(t, FormatKDB, Sniff(kdb))
	assert.Equal(t, FormatKDBX, Sniff(kdbx))
	assert.Equal(t, FormatUnknown, Sniff(nil))
	assert.Equal(t, FormatUnknown, Sniff([]byte("PK\x03\x04")))

	// A single corrupted signature byte must not classify.
	for _, data := range [][]byte{kdb, kdbx} {
		b := append([]byte(nil), data[:SniffLen]...)
		b[2] ^= 0xff
		assert.Equal(t, FormatUnknown, Sniff(b))
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"kdb", kdbFile(t), FormatKDB},
		{"kdbx", kdbxFile(t), FormatKDBX},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			db, err := Open(test.data, Credentials{Password: testPassword}, nil)
			require.NoError(t, err)
			defer db.Erase()
			assert.Equal(t, test.format, db.Format())

			entries := db.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, "example.com", entries[0].Title())
			assert.Equal(t, "gopher", entries[0].Username())
			assert.NotEmpty(t, entries[0].ID())
			created, modified := entries[0].Times()
			assert.False(t, created.IsZero())
			assert.False(t, modified.IsZero())

			var names []string
			for _, g := range db.Root().Groups() {
				names = append(names, g.Name())
			}
			assert.Contains(t, names, "Internet")
		})
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	_, err := Open([]byte("not a database"), Credentials{Password: testPassword}, nil)
	assert.Equal(t, ErrUnknownFormat, err)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, data := range [][]byte{kdbFile(t), kdbxFile(t)} {
		db, err := Open(data, Credentials{Password: testPassword}, nil)
		require.NoError(t, err)
		buf := new(bytes.Buffer)
		require.NoError(t, db.Save(buf, nil))
		assert.Equal(t, db.Format(), Sniff(buf.Bytes()))

		got, err := Open(buf.Bytes(), Credentials{Password: testPassword}, nil)
		require.NoError(t, err)
		require.Len(t, got.Entries(), 1)
		assert.Equal(t, "example.com", got.Entries()[0].Title())
	}
}

type byteSource []byte

func (s byteSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s)), nil
}

type errSource struct{ err error }

func (s errSource) Open() (io.ReadCloser, error) { return nil, s.err }

func TestRefreshHeaders(t *testing.T) {
	srcs := []Source{
		byteSource(kdbFile(t)),
		byteSource(kdbxFile(t)),
		byteSource(kdbFile(t)),
	}
	infos, err := RefreshHeaders(context.Background(), srcs, 2)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, HeaderInfo{Format: FormatKDB, Version: 1}, infos[0])
	assert.Equal(t, FormatKDBX, infos[1].Format)
	assert.Equal(t, 4, infos[1].Version)
	assert.Equal(t, HeaderInfo{Format: FormatKDB, Version: 1}, infos[2])
}

func TestRefreshHeadersError(t *testing.T) {
	boom := errors.New("disk gone")
	srcs := []Source{
		byteSource(kdbFile(t)),
		errSource{boom},
	}
	_, err := RefreshHeaders(context.Background(), srcs, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestRefreshHeadersUnknown(t *testing.T) {
	srcs := []Source{byteSource([]byte("garbage"))}
	_, err := RefreshHeaders(context.Background(), srcs, 1)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestRefreshHeadersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srcs := []Source{byteSource(kdbFile(t))}
	_, err := RefreshHeaders(ctx, srcs, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRefreshHeadersEmpty(t *testing.T) {
	infos, err := RefreshHeaders(context.Background(), nil, 8)
	require.NoError(t, err)
	assert.Empty(t, infos)
}
