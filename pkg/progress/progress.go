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

// Package progress tracks completion of long-running codec operations
// and carries a cooperative cancellation signal through them.
package progress

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by operations interrupted through Cancel.
// It signals interruption, never a cryptographic or format failure.
var ErrCancelled = errors.New("progress: operation was cancelled")

// A Progress counts completed work units against an expected total and
// holds a cancellation flag. Long-running operations poll it at yield
// points: each KDF round chunk, each cipher block run, each decoded
// record. All methods are safe for concurrent use and work on a nil
// receiver, which tracks nothing and is never cancelled.
type Progress struct {
	total     atomic.Int64
	completed atomic.Int64
	cancelled atomic.Bool
}

// New returns a Progress expecting total work units.
func New(total int64) *Progress {
	p := new(Progress)
	p.total.Store(total)
	return p
}

// AddTotal grows the expected amount of work by n units.
func (p *Progress) AddTotal(n int64) {
	if p == nil {
		return
	}
	p.total.Add(n)
}

// Step records n completed work units.
func (p *Progress) Step(n int64) {
	if p == nil {
		return
	}
	p.completed.Add(n)
}

// Fraction reports completion in [0, 1]. An empty total reports 0.
func (p *Progress) Fraction() float64 {
	if p == nil {
		return 0
	}
	t := p.total.Load()
	if t <= 0 {
		return 0
	}
	f := float64(p.completed.Load()) / float64(t)
	if f > 1 {
		f = 1
	}
	return f
}

// Cancel requests interruption. The operation observes it at its next
// yield point and returns ErrCancelled.
func (p *Progress) Cancel() {
	if p == nil {
		return
	}
	p.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (p *Progress) Cancelled() bool {
	return p != nil && p.cancelled.Load()
}

// Err returns ErrCancelled if the token is cancelled and nil otherwise.
func (p *Progress) Err() error {
	if p.Cancelled() {
		return ErrCancelled
	}
	return nil
}
