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

package arena

import (
	"fmt"
	"math/bits"
	"slices"
	"unsafe"
)

const (
	// headerSize is the size of the header placed right before each returned block.
	// It also sets the default alignment of returned blocks.
	headerSize = 16

	// magic marks a live header and detects double-free/invalid blocks.
	magic uint32 = 0xBADF00D

	// DefaultMinBlockSize is the default minimum block size (64B).
	DefaultMinBlockSize = 64

	// DefaultMaxBlockSize is the default maximum block size (1MB).
	DefaultMaxBlockSize = 1 << 20

	maxBlockLimit = 1 << 31
)

// header is written in front of the user data:
// [4 bytes magic][4 bytes size][4 bytes block index][4 bytes order]
//
// block is the block offset in units of minBlockSize, so Free does not depend
// on the slice cap and aligned blocks can start anywhere inside their buddy block.
type header struct {
	magic uint32
	size  uint32
	block uint32
	order uint32
}

// BuddyAllocator is a buddy system allocator over a single arena.
// It is not safe for concurrent use, see Arena for the locked variant.
type BuddyAllocator struct {
	arena      []byte
	arenaStart unsafe.Pointer

	// freeLists[order] holds offsets of free blocks of size minBlockSize<<order.
	freeLists [][]int

	// needsCoalesce is set by Free of non-max-order blocks and cleared when coalescing fails.
	needsCoalesce bool

	minBlockSize  int
	minBlockShift int
	maxBlockSize  int
	maxBlockOrder int
}

// NewBuddyAllocator creates a buddy allocator with default block sizes (64B min, 1MB max).
// The arena's size MUST be a multiple of DefaultMaxBlockSize.
func NewBuddyAllocator(arena []byte) (*BuddyAllocator, error) {
	return NewBuddyAllocatorWithBlockSize(arena, DefaultMinBlockSize, DefaultMaxBlockSize)
}

// NewBuddyAllocatorWithBlockSize creates a buddy allocator with custom block sizes.
// Both minBlock and maxBlock must be powers of two, minBlock <= maxBlock,
// and the arena must start on a 16-byte boundary with a size that is a multiple of maxBlock.
func NewBuddyAllocatorWithBlockSize(arena []byte, minBlock, maxBlock int) (*BuddyAllocator, error) {
	if minBlock <= 0 || (minBlock&(minBlock-1)) != 0 {
		return nil, fmt.Errorf("arena: minBlockSize must be a power of two, got %d", minBlock)
	}
	if maxBlock <= 0 || (maxBlock&(maxBlock-1)) != 0 {
		return nil, fmt.Errorf("arena: maxBlockSize must be a power of two, got %d", maxBlock)
	}
	if minBlock > maxBlock {
		return nil, fmt.Errorf("arena: minBlockSize (%d) must be <= maxBlockSize (%d)", minBlock, maxBlock)
	}
	if minBlock < 2*headerSize {
		return nil, fmt.Errorf("arena: minBlockSize must be >= %d, got %d", 2*headerSize, minBlock)
	}
	if maxBlock > maxBlockLimit {
		return nil, fmt.Errorf("arena: maxBlockSize must be <= %d, got %d", maxBlockLimit, maxBlock)
	}

	totalSize := len(arena)
	if totalSize < maxBlock || totalSize%maxBlock != 0 {
		return nil, fmt.Errorf("arena: size must be a multiple of %d bytes and >= %d, got %d",
			maxBlock, maxBlock, totalSize)
	}
	start := unsafe.Pointer(unsafe.SliceData(arena))
	if uintptr(start)&(headerSize-1) != 0 {
		return nil, fmt.Errorf("arena: start %p is not %d-byte aligned", start, headerSize)
	}

	minShift := bits.TrailingZeros(uint(minBlock))
	maxOrder := bits.TrailingZeros(uint(maxBlock)) - minShift
	a := &BuddyAllocator{
		arena:         arena,
		arenaStart:    start,
		minBlockSize:  minBlock,
		minBlockShift: minShift,
		maxBlockSize:  maxBlock,
		maxBlockOrder: maxOrder,
		freeLists:     make([][]int, maxOrder+1),
	}
	for i := 0; i < maxOrder; i++ {
		a.freeLists[i] = make([]int, 0, min(1<<(maxOrder-i), 64))
	}
	a.freeLists[maxOrder] = make([]int, 0, totalSize/maxBlock)
	a.Reset()
	return a, nil
}

// Alloc allocates a block of at least size bytes aligned to 16 bytes.
// It returns nil if size <= 0 or no sufficiently large block is available.
// The returned slice has len == size and cap == usable size of the block.
func (a *BuddyAllocator) Alloc(size int) []byte {
	if size <= 0 || size > a.maxBlockSize-headerSize {
		return nil
	}
	order := a.getOrderForSize(size + headerSize)
	offset := a.take(order)
	if offset < 0 {
		return nil
	}
	return a.place(offset, order, headerSize, size)
}

// AllocAligned is like Alloc but the returned block starts on an alignment boundary.
// alignment must be a power of two.
func (a *BuddyAllocator) AllocAligned(alignment, size int) []byte {
	if alignment <= headerSize {
		return a.Alloc(size)
	}
	if size <= 0 || alignment > a.maxBlockSize || size > a.maxBlockSize-alignment {
		return nil
	}
	// blocks are at least 16-byte aligned, so header plus padding never exceed alignment.
	order := a.getOrderForSize(size + alignment)
	offset := a.take(order)
	if offset < 0 {
		return nil
	}
	base := uintptr(a.arenaStart) + uintptr(offset)
	data := (base + headerSize + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	return a.place(offset, order, int(data-base), size)
}

// Calloc allocates n*size zeroed bytes. It returns nil on overflow.
func (a *BuddyAllocator) Calloc(n, size int) []byte {
	if n < 0 || size < 0 {
		return nil
	}
	hi, lo := bits.Mul(uint(n), uint(size))
	if hi != 0 || lo > uint(a.maxBlockSize) {
		return nil
	}
	b := a.Alloc(int(lo))
	clear(b)
	return b
}

// Realloc resizes block to size bytes, in place when the block is large enough.
// A nil block behaves like Alloc, size 0 frees the block and returns nil.
// On failure it returns nil and block is left untouched.
func (a *BuddyAllocator) Realloc(block []byte, size int) []byte {
	if cap(block) == 0 {
		return a.Alloc(size)
	}
	if size == 0 {
		a.Free(block)
		return nil
	}
	if size < 0 {
		return nil
	}
	data := unsafe.Pointer(unsafe.SliceData(block))
	h := a.headerOf(data)
	if usable := a.usable(h, data); size <= usable {
		h.size = uint32(size)
		return unsafe.Slice((*byte)(data), usable)[:size]
	}
	nb := a.Alloc(size)
	if nb == nil {
		return nil
	}
	copy(nb, unsafe.Slice((*byte)(data), h.size))
	a.Free(block)
	return nb
}

// UsableSize returns the number of bytes usable from the start of block.
func (a *BuddyAllocator) UsableSize(block []byte) int {
	if cap(block) == 0 {
		return 0
	}
	data := unsafe.Pointer(unsafe.SliceData(block))
	return a.usable(a.headerOf(data), data)
}

// Free returns a block to the allocator.
// Panics if the block doesn't belong to this allocator or was already freed.
// Uses lazy coalescing - blocks are marked free but not merged until needed.
//
// The block must start where the slice returned by Alloc started.
// Reslicing the end (block[:n]) is fine, reslicing the start (block[n:]) is not.
func (a *BuddyAllocator) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	h := a.headerOf(unsafe.Pointer(unsafe.SliceData(block)))
	offset := int(h.block) << a.minBlockShift
	order := int(h.order)
	if order > a.maxBlockOrder || offset&(a.minBlockSize<<order-1) != 0 {
		panic("arena: corrupted header")
	}
	h.magic = 0
	a.freeLists[order] = append(a.freeLists[order], offset)
	if order < a.maxBlockOrder {
		a.needsCoalesce = true
	}
}

// Available returns the total free bytes available for allocation.
func (a *BuddyAllocator) Available() int {
	total := 0
	for order, freeList := range a.freeLists {
		total += len(freeList) * ((a.minBlockSize << order) - headerSize)
	}
	return total
}

// CoalesceUntil merges adjacent free buddy blocks until we have a block >= targetOrder.
// Returns the order of a suitable block found, or -1 if none available.
func (a *BuddyAllocator) CoalesceUntil(targetOrder int) int {
	if o := a.firstFree(targetOrder); o >= 0 {
		return o
	}
	a.mergeBelow(targetOrder)
	return a.firstFree(targetOrder)
}

// Coalesce merges every free buddy pair, up to the root blocks.
func (a *BuddyAllocator) Coalesce() {
	a.mergeBelow(a.maxBlockOrder)
	a.needsCoalesce = false
}

// mergeBelow merges buddy pairs of every order below top.
// Merging at lower orders creates blocks that can be merged at higher orders.
func (a *BuddyAllocator) mergeBelow(top int) {
	for order := 0; order < top; order++ {
		freeList := a.freeLists[order]
		if len(freeList) < 2 {
			continue
		}
		// sorted, so a left buddy is always followed by its right buddy
		slices.Sort(freeList)

		blockSize := a.minBlockSize << order
		n := 0
		for i := 0; i < len(freeList); {
			offset := freeList[i]
			if i+1 < len(freeList) && freeList[i+1] == offset^blockSize {
				a.freeLists[order+1] = append(a.freeLists[order+1], offset&^blockSize)
				i += 2
				continue
			}
			freeList[n] = offset
			n++
			i++
		}
		a.freeLists[order] = freeList[:n]
	}
}

// Reset clears all allocations and returns the allocator to its initial state.
func (a *BuddyAllocator) Reset() {
	for i := range a.freeLists {
		a.freeLists[i] = a.freeLists[i][:0]
	}
	for off := 0; off < len(a.arena); off += a.maxBlockSize {
		a.freeLists[a.maxBlockOrder] = append(a.freeLists[a.maxBlockOrder], off)
	}
	a.needsCoalesce = false
}

// take pops a free block of the given order, splitting or coalescing larger ones.
// Returns the block offset, or -1 if nothing is available.
func (a *BuddyAllocator) take(order int) int {
	found := a.firstFree(order)
	if found < 0 {
		if !a.needsCoalesce {
			return -1
		}
		if found = a.CoalesceUntil(order); found < 0 {
			a.needsCoalesce = false
			return -1
		}
	}

	freeList := a.freeLists[found]
	n := len(freeList) - 1
	offset := freeList[n]
	a.freeLists[found] = freeList[:n]

	// the left half keeps the offset, the right half goes to the lower order free list
	for found > order {
		found--
		a.freeLists[found] = append(a.freeLists[found], offset+(a.minBlockSize<<found))
	}
	return offset
}

func (a *BuddyAllocator) firstFree(order int) int {
	for o := order; o <= a.maxBlockOrder; o++ {
		if len(a.freeLists[o]) > 0 {
			return o
		}
	}
	return -1
}

// place writes the header for a block at offset and returns the user slice
// starting dataOff bytes into the block.
func (a *BuddyAllocator) place(offset, order, dataOff, size int) []byte {
	data := unsafe.Add(a.arenaStart, offset+dataOff)
	h := (*header)(unsafe.Add(data, -headerSize))
	h.magic = magic
	h.size = uint32(size)
	h.block = uint32(offset >> a.minBlockShift)
	h.order = uint32(order)
	return unsafe.Slice((*byte)(data), (a.minBlockSize<<order)-dataOff)[:size]
}

// headerOf returns the live header in front of data, panics if there is none.
func (a *BuddyAllocator) headerOf(data unsafe.Pointer) *header {
	start := uintptr(a.arenaStart)
	p := uintptr(data)
	if p < start+headerSize || p >= start+uintptr(len(a.arena)) {
		panic("arena: block not in arena")
	}
	if (p-start)&(headerSize-1) != 0 {
		panic("arena: misaligned block")
	}
	h := (*header)(unsafe.Add(data, -headerSize))
	if h.magic != magic {
		panic("arena: double free or invalid block")
	}
	return h
}

func (a *BuddyAllocator) usable(h *header, data unsafe.Pointer) int {
	end := uintptr(a.arenaStart) + uintptr(h.block)<<a.minBlockShift + uintptr(a.minBlockSize)<<h.order
	return int(end - uintptr(data))
}

// getOrderForSize calculates the smallest order that can fit the given size.
func (a *BuddyAllocator) getOrderForSize(size int) int {
	if size <= a.minBlockSize {
		return 0
	}
	return bits.Len(uint(size-1)) - a.minBlockShift
}
