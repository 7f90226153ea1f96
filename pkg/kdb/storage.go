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
	"io"
	"os"
)

// Storage manages I/O to a single database file. Only one operation
// (reading or writing) should be performed at a time; callers
// serialize. It implements Source, so a set of Storages can feed
// RefreshHeaders directly.
type Storage struct {
	path string
}

// NewStorage returns a Storage that points to path. The file is
// created on the first write if it does not exist.
func NewStorage(path string) *Storage {
	return &Storage{path: path}
}

// Path returns the file path the storage points to.
func (st *Storage) Path() string { return st.path }

// Exists reports whether the file exists yet.
func (st *Storage) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Open returns a fresh reader over the file. It implements Source.
func (st *Storage) Open() (io.ReadCloser, error) {
	return os.Open(st.path)
}

// Writer opens a writer to the file by either creating or truncating
// it. Closing the returned writer syncs it to disk.
func (st *Storage) Writer() (io.WriteCloser, error) {
	f, err := os.OpenFile(st.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	return syncWriter{f}, nil
}

// syncWriter syncs on close so a saved database is durable before the
// old bytes are considered replaced.
type syncWriter struct {
	f *os.File
}

func (w syncWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w syncWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
