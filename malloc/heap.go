/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package malloc is the single entry point for dynamic memory inside an
// enclave. Requests are validated, forwarded to a pluggable Backend,
// and their outcome is recorded errno-style. Failures are also reported
// to an optional FailureCallback.
package malloc

import (
	"sync/atomic"

	"github.com/cloudwego/teemalloc/cache/mempool"
	"github.com/cloudwego/teemalloc/diag"
	"github.com/cloudwego/teemalloc/errno"
)

// Backend carves the memory. A nil slice means the request was not satisfied.
// A Backend must be ready before it is handed to NewHeap and safe for
// concurrent use, Heap adds no locking of its own.
type Backend interface {
	Malloc(size int) []byte
	Free(b []byte)
	Calloc(n, size int) []byte
	Realloc(b []byte, size int) []byte
	// AlignedAlloc reports failures as an error wrapping an errno.Errno.
	AlignedAlloc(alignment, size int) ([]byte, error)
	UsableSize(b []byte) int
}

var _ Backend = (*mempool.Pool)(nil)

// Option ...
type Option struct {
	// Backend serves every allocation. Defaults to mempool.Default().
	Backend Backend

	// Tracker serves the leak-tracking calls. Defaults to diag.Nop.
	Tracker diag.Tracker

	// FailureCallback is installed as the initial failure callback.
	FailureCallback FailureCallback
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		Backend: mempool.Default(),
		Tracker: diag.Nop{},
	}
}

// Heap binds a Backend, a Tracker and one failure callback slot.
//
// The embedded Scope holds the heap-wide last-error cell, shared by every
// goroutine calling the Heap methods directly. Use NewScope for a cell of your own.
type Heap struct {
	Scope

	backend  Backend
	tracker  diag.Tracker
	callback atomic.Pointer[FailureCallback]
}

// NewHeap creates a Heap. nil opt uses DefaultOption.
func NewHeap(opt *Option) *Heap {
	if opt == nil {
		opt = DefaultOption()
	}
	h := &Heap{backend: opt.Backend, tracker: opt.Tracker}
	if h.backend == nil {
		h.backend = mempool.Default()
	}
	if h.tracker == nil {
		h.tracker = diag.Nop{}
	}
	h.Scope.heap = h
	h.SetFailureCallback(opt.FailureCallback)
	return h
}

// NewScope returns a Scope with its own last-error cell.
// It shares the backend and the failure callback of h.
func (h *Heap) NewScope() *Scope {
	return &Scope{heap: h}
}

// Scope runs allocations against a Heap and records the outcome of the
// most recent one in its last-error cell.
//
// A Scope is safe to use from multiple goroutines, but they will observe
// each other's outcomes in LastError.
type Scope struct {
	heap    *Heap
	lastErr atomic.Int32
}

// LastError returns the status of the most recent call on s.
func (s *Scope) LastError() Errno {
	return Errno(s.lastErr.Load())
}

func (s *Scope) setErr(e Errno) {
	s.lastErr.Store(int32(e))
}

// fail records e and notifies the failure callback.
// skip is the number of frames between fail's caller and the user code.
func (s *Scope) fail(e Errno, size, skip int) {
	s.setErr(e)
	s.heap.notify(size, skip+1)
}

// Malloc allocates size bytes with the default alignment of the backend.
// It returns nil and sets ENOMEM if a non-zero request can't be satisfied.
// Malloc(0) never fails, whatever the backend returns.
func (s *Scope) Malloc(size int) []byte {
	return s.malloc(size, 2)
}

func (s *Scope) malloc(size, skip int) []byte {
	p := s.heap.backend.Malloc(size)
	if p == nil && size != 0 {
		s.fail(ENOMEM, size, skip)
	} else {
		s.setErr(OK)
	}
	return p
}

// Free releases b. nil is a no-op for every backend.
func (s *Scope) Free(b []byte) {
	s.heap.backend.Free(b)
	s.setErr(OK)
}

// Calloc allocates n*size zeroed bytes.
// It only fails when both n and size are non-zero and the backend returns nil.
func (s *Scope) Calloc(n, size int) []byte {
	return s.calloc(n, size, 2)
}

func (s *Scope) calloc(n, size, skip int) []byte {
	p := s.heap.backend.Calloc(n, size)
	if p == nil && n != 0 && size != 0 {
		s.fail(ENOMEM, n*size, skip)
	} else {
		s.setErr(OK)
	}
	return p
}

// Realloc resizes b to size bytes. A nil b allocates, size 0 releases b,
// as the backend defines. On failure b is left untouched.
func (s *Scope) Realloc(b []byte, size int) []byte {
	return s.realloc(b, size, 2)
}

func (s *Scope) realloc(b []byte, size, skip int) []byte {
	p := s.heap.backend.Realloc(b, size)
	if p == nil && size != 0 {
		s.fail(ENOMEM, size, skip)
	} else {
		s.setErr(OK)
	}
	return p
}

// Memalign allocates size bytes aligned to alignment.
//
// alignment must be a power of two, otherwise Memalign sets EINVAL and
// returns nil without calling the backend. Alignments smaller than PtrSize
// are raised to PtrSize.
func (s *Scope) Memalign(alignment, size int) []byte {
	return s.memalign(alignment, size, 2)
}

func (s *Scope) memalign(alignment, size, skip int) []byte {
	if !IsPow2(alignment) {
		s.setErr(EINVAL)
		return nil
	}
	if alignment < PtrSize {
		alignment = PtrSize
	}
	p, e := s.posixMemalign(alignment, size, skip+1)
	if p == nil && size != 0 {
		s.setErr(e)
	} else {
		s.setErr(OK)
	}
	return p
}

// PosixMemalign is the strict form of Memalign.
//
// alignment must be a power of two and at least PtrSize, otherwise it
// returns EINVAL without calling the backend or the failure callback.
// The slice is only returned on success. The returned status is also
// recorded as the last error.
func (s *Scope) PosixMemalign(alignment, size int) ([]byte, Errno) {
	return s.posixMemalign(alignment, size, 2)
}

func (s *Scope) posixMemalign(alignment, size, skip int) ([]byte, Errno) {
	if !IsPow2(alignment) || alignment < PtrSize {
		s.setErr(EINVAL)
		return nil, EINVAL
	}
	p, err := s.heap.backend.AlignedAlloc(alignment, size)
	e := errno.From(err)
	if e == OK && p == nil && size != 0 {
		e = ENOMEM
	}
	if e != OK {
		if size != 0 {
			s.fail(e, size, skip)
		} else {
			s.setErr(e)
		}
		return nil, e
	}
	s.setErr(OK)
	return p, OK
}

// UsableSize returns the number of bytes usable in b as reported by the backend.
func (s *Scope) UsableSize(b []byte) int {
	n := s.heap.backend.UsableSize(b)
	s.setErr(OK)
	return n
}

// Tracker returns the leak tracker of h.
func (h *Heap) Tracker() diag.Tracker { return h.tracker }

// TrackingStart starts allocation tracking, if the tracker supports it.
func (h *Heap) TrackingStart() Errno { return h.tracker.Start() }

// TrackingStop stops allocation tracking.
func (h *Heap) TrackingStop() Errno { return h.tracker.Stop() }

// TrackingReport returns the live tracked allocations.
// With diag.Nop it always returns (ENOTSUP, 0, "").
func (h *Heap) TrackingReport() (Errno, int, string) { return h.tracker.Report() }

// CheckLeaks returns OK if the tracker found no leaks.
func (h *Heap) CheckLeaks() Errno { return h.tracker.CheckLeaks() }
