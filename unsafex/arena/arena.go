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

// Package arena implements an allocator backend that carves allocations
// out of one pre-mapped memory region with a buddy allocator.
package arena

import (
	"fmt"
	"sync"

	"github.com/cloudwego/teemalloc/errno"
	"github.com/cloudwego/teemalloc/internal/region"
)

// Option configures an Arena.
type Option struct {
	// Size is the region size in bytes. It is rounded up to a multiple of MaxBlockSize.
	Size int

	// MinBlockSize and MaxBlockSize bound the buddy block sizes.
	// The largest single allocation is MaxBlockSize minus a 16-byte header.
	MinBlockSize int
	MaxBlockSize int
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		Size:         32 << 20,
		MinBlockSize: DefaultMinBlockSize,
		MaxBlockSize: DefaultMaxBlockSize,
	}
}

// Arena is a BuddyAllocator guarded by a mutex.
// It implements the allocator backend used by the malloc package.
//
// Arena is safe to use from multiple goroutines.
type Arena struct {
	mu     sync.Mutex
	buddy  *BuddyAllocator
	region []byte
	mapped bool
}

// New maps a fresh region and builds an Arena over it.
// nil opt uses DefaultOption. Call Close to release the region.
func New(opt *Option) (*Arena, error) {
	if opt == nil {
		opt = DefaultOption()
	}
	if opt.MaxBlockSize <= 0 || opt.Size <= 0 {
		return nil, fmt.Errorf("arena: invalid option size=%d maxBlockSize=%d", opt.Size, opt.MaxBlockSize)
	}
	size := (opt.Size + opt.MaxBlockSize - 1) / opt.MaxBlockSize * opt.MaxBlockSize
	buf, err := region.Map(size)
	if err != nil {
		return nil, err
	}
	a, err := NewWithBuffer(buf[:size], opt.MinBlockSize, opt.MaxBlockSize)
	if err != nil {
		_ = region.Unmap(buf)
		return nil, err
	}
	a.mapped = true
	return a, nil
}

// NewWithBuffer builds an Arena over a caller-owned buffer.
func NewWithBuffer(buf []byte, minBlock, maxBlock int) (*Arena, error) {
	b, err := NewBuddyAllocatorWithBlockSize(buf, minBlock, maxBlock)
	if err != nil {
		return nil, err
	}
	return &Arena{buddy: b, region: buf}, nil
}

func (a *Arena) Malloc(size int) []byte {
	a.mu.Lock()
	b := a.buddy.Alloc(size)
	a.mu.Unlock()
	return b
}

func (a *Arena) Free(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buddy.Free(b)
}

func (a *Arena) Calloc(n, size int) []byte {
	a.mu.Lock()
	b := a.buddy.Calloc(n, size)
	a.mu.Unlock()
	return b
}

func (a *Arena) Realloc(b []byte, size int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buddy.Realloc(b, size)
}

// AlignedAlloc returns size bytes aligned to alignment.
// A size of 0 returns nil without error.
func (a *Arena) AlignedAlloc(alignment, size int) ([]byte, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("arena: alignment %d: %w", alignment, errno.EINVAL)
	}
	if size == 0 {
		return nil, nil
	}
	a.mu.Lock()
	b := a.buddy.AllocAligned(alignment, size)
	a.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("arena: no block for %d bytes aligned to %d: %w", size, alignment, errno.ENOMEM)
	}
	return b, nil
}

func (a *Arena) UsableSize(b []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buddy.UsableSize(b)
}

// Available returns the free bytes left in the arena.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buddy.Available()
}

// Reset drops every allocation at once.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.buddy.Reset()
	a.mu.Unlock()
}

// Close releases the region if it was mapped by New.
// No block from the arena may be used after Close.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.mapped {
		return nil
	}
	a.mapped = false
	return region.Unmap(a.region)
}
