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
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"zombiezen.com/go/kdbcodec/pkg/progress"
	"zombiezen.com/go/kdbcodec/pkg/streamcipher"
)

// binaryPool holds attachment bodies. Entries reference pool slots by
// index; identical bodies share a slot. Version 3 serializes the pool
// into Meta as base64 (optionally gzip), version 4 into the inner
// header with a protection flag.
type binaryPool struct {
	bodies []poolBinary
}

type poolBinary struct {
	data      []byte
	protected bool
}

// get returns the body at the given pool index.
func (p *binaryPool) get(ref int) ([]byte, error) {
	if ref < 0 || ref >= len(p.bodies) {
		return nil, errBadBinaryRef
	}
	return p.bodies[ref].data, nil
}

// add stores a body and returns its index, reusing an existing slot
// when the bytes match.
func (p *binaryPool) add(data []byte, protected bool) int {
	for i := range p.bodies {
		if bytes.Equal(p.bodies[i].data, data) {
			if protected {
				p.bodies[i].protected = true
			}
			return i
		}
	}
	p.bodies = append(p.bodies, poolBinary{data: data, protected: protected})
	return len(p.bodies) - 1
}

// loadMetaBinaries decodes the version 3 pool from Meta. Pool IDs are
// allowed to be sparse in the file; they are remapped to dense indexes
// and the returned table translates old IDs. Protected bodies decrypt
// against the inner stream, which they consume before any protected
// value because Meta precedes Root in the document.
func loadMetaBinaries(bins []MetaBinary, stream streamcipher.Stream, prog *progress.Progress) (*binaryPool, map[int]int, error) {
	p := new(binaryPool)
	remap := make(map[int]int, len(bins))
	for _, b := range bins {
		raw, err := base64.StdEncoding.DecodeString(b.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("keepass2: binary %d: %w", b.ID, err)
		}
		if b.IsProtected() {
			raw, err = stream.Decrypt(raw, prog)
			if err != nil {
				return nil, nil, fmt.Errorf("keepass2: binary %d: %w", b.ID, err)
			}
		}
		if b.Compressed.Value {
			raw, err = gunzip(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("keepass2: binary %d: %w", b.ID, err)
			}
		}
		remap[b.ID] = p.add(raw, b.IsProtected())
	}
	return p, remap, nil
}

// metaBinaries serializes the pool for a version 3 document. Bodies
// are gzipped, matching what KeePass 2.x writes, and protected bodies
// are then encrypted with the inner stream. The caller must invoke
// this before encrypting protected values so the keystream is consumed
// in document order.
func (p *binaryPool) metaBinaries(stream streamcipher.Stream, prog *progress.Progress) ([]MetaBinary, error) {
	if len(p.bodies) == 0 {
		return nil, nil
	}
	out := make([]MetaBinary, len(p.bodies))
	for i, b := range p.bodies {
		body, err := gzipBytes(b.data)
		if err != nil {
			return nil, err
		}
		m := MetaBinary{ID: i, Compressed: True}
		if b.protected {
			body, err = stream.Encrypt(body, prog)
			if err != nil {
				return nil, err
			}
			m.Protected = &Bool{Value: true, Valid: true}
		}
		m.Content = base64.StdEncoding.EncodeToString(body)
		out[i] = m
	}
	return out, nil
}

// loadInnerBinaries adopts the version 4 pool from the inner header.
func loadInnerBinaries(bins []innerBinary) *binaryPool {
	p := &binaryPool{bodies: make([]poolBinary, len(bins))}
	for i, b := range bins {
		p.bodies[i] = poolBinary{data: b.data, protected: b.protected}
	}
	return p
}

// innerBinaries serializes the pool for a version 4 inner header.
func (p *binaryPool) innerBinaries() []innerBinary {
	out := make([]innerBinary, len(p.bodies))
	for i, b := range p.bodies {
		out[i] = innerBinary{data: b.data, protected: b.protected}
	}
	return out
}

func gzipBytes(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
