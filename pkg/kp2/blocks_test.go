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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zombiezen.com/go/kdbcodec/pkg/fakerand"
	"zombiezen.com/go/kdbcodec/pkg/progress"
)

func TestHashedBlocksRoundTrip(t *testing.T) {
	sizes := []int{0, 1, blockSize - 1, blockSize, blockSize + 1, 3*blockSize + 17}
	for _, size := range sizes {
		data := make([]byte, size)
		io.ReadFull(fakerand.New(), data)
		buf := new(bytes.Buffer)
		require.NoError(t, writeHashedBlocks(buf, data, nil))
		got, err := readHashedBlocks(buf, nil)
		require.NoErrorf(t, err, "size %d", size)
		assert.Truef(t, bytes.Equal(data, got), "size %d: mismatch", size)
	}
}

func TestHashedBlocksCorrupt(t *testing.T) {
	data := []byte("attack at dawn")
	buf := new(bytes.Buffer)
	require.NoError(t, writeHashedBlocks(buf, data, nil))
	b := buf.Bytes()
	b[40] ^= 0xff // first payload byte
	_, err := readHashedBlocks(bytes.NewReader(b), nil)
	var be *BlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, uint64(0), be.Index)
}

func TestHashedBlocksTruncated(t *testing.T) {
	data := []byte("attack at dawn")
	buf := new(bytes.Buffer)
	require.NoError(t, writeHashedBlocks(buf, data, nil))
	_, err := readHashedBlocks(bytes.NewReader(buf.Bytes()[:buf.Len()-41]), nil)
	assert.Equal(t, ErrPrematureEnd, err)
}

func TestHMACBlocksRoundTrip(t *testing.T) {
	base := make([]byte, 64)
	io.ReadFull(fakerand.New(), base)
	sizes := []int{0, 1, blockSize, 2*blockSize + 5}
	for _, size := range sizes {
		data := make([]byte, size)
		io.ReadFull(fakerand.NewSeeded(9), data)
		buf := new(bytes.Buffer)
		require.NoError(t, writeHMACBlocks(buf, base, data, nil))
		got, err := readHMACBlocks(buf, base, nil)
		require.NoErrorf(t, err, "size %d", size)
		assert.Truef(t, bytes.Equal(data, got), "size %d: mismatch", size)
	}
}

func TestHMACBlocksWrongKey(t *testing.T) {
	base := make([]byte, 64)
	io.ReadFull(fakerand.New(), base)
	buf := new(bytes.Buffer)
	require.NoError(t, writeHMACBlocks(buf, base, []byte("attack at dawn"), nil))

	other := make([]byte, 64)
	io.ReadFull(fakerand.NewSeeded(1), other)
	_, err := readHMACBlocks(bytes.NewReader(buf.Bytes()), other, nil)
	var be *BlockError
	require.ErrorAs(t, err, &be)
}

func TestHMACBlocksTamper(t *testing.T) {
	base := make([]byte, 64)
	io.ReadFull(fakerand.New(), base)
	buf := new(bytes.Buffer)
	require.NoError(t, writeHMACBlocks(buf, base, []byte("attack at dawn"), nil))
	b := buf.Bytes()
	b[36] ^= 0x01 // payload
	_, err := readHMACBlocks(bytes.NewReader(b), base, nil)
	var be *BlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, uint64(0), be.Index)
}

func TestBlocksCancelled(t *testing.T) {
	prog := progress.New(1)
	prog.Cancel()
	err := writeHashedBlocks(io.Discard, []byte("x"), prog)
	assert.Equal(t, progress.ErrCancelled, err)
	base := make([]byte, 64)
	err = writeHMACBlocks(io.Discard, base, []byte("x"), prog)
	assert.Equal(t, progress.ErrCancelled, err)
}
