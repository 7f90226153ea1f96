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
	"fmt"
	"io"
	"log/slog"
	"sync"

	"zombiezen.com/go/kdbcodec/pkg/kp1"
	"zombiezen.com/go/kdbcodec/pkg/kp2"
)

// A Source produces a fresh reader over a stored database. Open is
// called at most once per RefreshHeaders call.
type Source interface {
	Open() (io.ReadCloser, error)
}

// HeaderInfo is the result of re-reading one database's header.
type HeaderInfo struct {
	Format Format
	// Version is the format's major version: 1 for KDB, 3 or 4 for
	// KDBX.
	Version int
}

// RefreshHeaders re-reads the header of every source, running at most
// workers reads concurrently, and waits for all of them before
// returning. Results are in source order. The first error encountered
// is returned after the barrier; the corresponding results are zero.
func RefreshHeaders(ctx context.Context, srcs []Source, workers int) ([]HeaderInfo, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(srcs) {
		workers = len(srcs)
	}
	infos := make([]HeaderInfo, len(srcs))
	errs := make([]error, len(srcs))
	tasks := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				infos[i], errs[i] = refreshHeader(ctx, srcs[i])
			}
		}()
	}
	for i := range srcs {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			slog.Debug("kdb: header refresh failed", "index", i, "error", err)
			return nil, fmt.Errorf("kdb: refresh header %d: %w", i, err)
		}
	}
	return infos, nil
}

func refreshHeader(ctx context.Context, src Source) (HeaderInfo, error) {
	if err := ctx.Err(); err != nil {
		return HeaderInfo{}, err
	}
	r, err := src.Open()
	if err != nil {
		return HeaderInfo{}, err
	}
	defer r.Close()

	prefix := make([]byte, SniffLen)
	n, err := io.ReadFull(r, prefix)
	if err != nil && err != io.ErrUnexpectedEOF {
		return HeaderInfo{}, err
	}
	prefix = prefix[:n]

	switch Sniff(prefix) {
	case FormatKDB:
		h := new(kp1.Header)
		if err := h.Read(io.MultiReader(bytes.NewReader(prefix), r)); err != nil {
			return HeaderInfo{}, err
		}
		return HeaderInfo{Format: FormatKDB, Version: 1}, nil
	case FormatKDBX:
		h, err := kp2.ReadHeader(io.MultiReader(bytes.NewReader(prefix), r))
		if err != nil {
			return HeaderInfo{}, err
		}
		return HeaderInfo{Format: FormatKDBX, Version: h.MajorVersion()}, nil
	default:
		return HeaderInfo{}, ErrUnknownFormat
	}
}
