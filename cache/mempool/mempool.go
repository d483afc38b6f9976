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

// Package mempool implements an allocator backend on top of the Go heap.
// Buffers are recycled through power-of-two size-class pools.
package mempool

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/cloudwego/teemalloc/errno"
)

type memPool struct {
	sync.Pool

	Size int
}

var pools []*memPool

const (
	minMemPoolSize = 64        // `Malloc` returns buf with cap >= the number
	maxMemPoolSize = 128 << 30 // 128GB, `Malloc` returns nil if > the number
)

const (
	// footer is a [8]byte, it contains two parts: magic(58 bits) and index (6 bits):
	// * magic is for checking a []byte is created by this package
	// * index is for `pools`, the buf always ends where a pools[i].Size buffer ends
	// the footer sits at the end of cap, so reslicing the front (aligned allocations) keeps it reachable.
	footerLen = 8

	footerMagicMask = uint64(0xFFFFFFFFFFFFFFC0) // 58 bits mask
	footerIndexMask = uint64(0x000000000000003F) // 6 bits mask
	footerMagic     = uint64(0xBADC0DEBADC0DEC0) // it ends with 6 zero bits which used by index
)

// bits2idx maps bits.Len to the index of `pools`
// for size < minMemPoolSize, bits2idx maps to `pools[0]` which is expected.
var bits2idx [64]int

func init() {
	i := 0
	for sz := minMemPoolSize; sz <= maxMemPoolSize; sz <<= 1 {
		p := &memPool{Size: sz}
		p.New = func() interface{} {
			b := dirtmake.Bytes(p.Size, p.Size)
			return &b[0]
		}
		pools = append(pools, p)
		bits2idx[bits.Len(uint(p.Size))] = i
		i++
	}
}

// poolIndex returns index of a pool which fits the given size `sz`
func poolIndex(sz int) int {
	if sz <= minMemPoolSize {
		return 0
	}
	i := bits2idx[bits.Len(uint(sz))]
	if uint(sz)&(uint(sz)-1) == 0 {
		// if power of two, it fits perfectly
		// like `128` should be in pools[1], but `129` in pools[2]
		return i
	}
	return i + 1
}

// Pool hands out buffers from the shared size-class pools and accounts for
// the bytes it holds. A Pool with a limit reports exhaustion by returning nil
// once the next buffer would exceed it.
//
// Tips for usage:
// * buf returned by Malloc/Realloc may not be initialized with zeros, use Calloc if needed.
// * DO NOT use `cap` or `append` to grow a buf, the bytes at the end of cap store malloc info.
// * DO NOT reslice the front of a buf before Free, except for bufs from AlignedAlloc as returned.
//
// Pool is safe to use from multiple goroutines.
type Pool struct {
	limit int64
	inuse int64
}

// NewPool creates a Pool holding at most limit bytes. limit <= 0 means unlimited.
func NewPool(limit int64) *Pool {
	return &Pool{limit: limit}
}

// InUse returns the bytes currently held by buffers of this Pool, footers included.
func (p *Pool) InUse() int64 {
	return atomic.LoadInt64(&p.inuse)
}

func (p *Pool) reserve(n int) bool {
	if atomic.AddInt64(&p.inuse, int64(n)) > p.limit && p.limit > 0 {
		atomic.AddInt64(&p.inuse, -int64(n))
		return false
	}
	return true
}

// Malloc returns a buf of len size. Malloc(0) returns an empty non-nil buf.
// It returns nil if size is negative, too large or over the limit.
func (p *Pool) Malloc(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	if size < 0 || size > maxMemPoolSize-footerLen {
		return nil
	}
	i := poolIndex(size + footerLen) // reserve for footer
	pool := pools[i]
	if !p.reserve(pool.Size) {
		return nil
	}
	data := unsafe.Pointer(pool.Get().(*byte))

	// add footerMagic & index to the end of bytes
	// it will check later when `Free`
	*(*uint64)(unsafe.Add(data, pool.Size-footerLen)) = footerMagic | uint64(i)
	return unsafe.Slice((*byte)(data), pool.Size)[:size]
}

// Calloc returns a zeroed buf of len n*size, or nil on overflow.
func (p *Pool) Calloc(n, size int) []byte {
	if n < 0 || size < 0 {
		return nil
	}
	hi, lo := bits.Mul(uint(n), uint(size))
	if hi != 0 || lo > maxMemPoolSize {
		return nil
	}
	b := p.Malloc(int(lo))
	clear(b)
	return b
}

// Realloc resizes buf to size bytes, reusing it when its usable size is large enough.
// An empty buf behaves like Malloc, size 0 frees buf and returns nil.
// On failure it returns nil and buf is left untouched.
func (p *Pool) Realloc(buf []byte, size int) []byte {
	if cap(buf) == 0 {
		return p.Malloc(size)
	}
	if size == 0 {
		p.Free(buf)
		return nil
	}
	if size < 0 {
		return nil
	}
	if size <= p.UsableSize(buf) {
		return buf[:size]
	}
	ret := p.Malloc(size)
	if ret == nil {
		return nil
	}
	copy(ret, buf)
	p.Free(buf)
	return ret
}

// AlignedAlloc returns a buf of len size whose first byte is aligned to alignment.
func (p *Pool) AlignedAlloc(alignment, size int) ([]byte, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("mempool: alignment %d: %w", alignment, errno.EINVAL)
	}
	if size == 0 {
		return []byte{}, nil
	}
	if size < 0 || size > maxMemPoolSize-footerLen-alignment {
		return nil, fmt.Errorf("mempool: size %d: %w", size, errno.ENOMEM)
	}
	b := p.Malloc(size + alignment - 1)
	if b == nil {
		return nil, fmt.Errorf("mempool: %d bytes over limit %d: %w", size, p.limit, errno.ENOMEM)
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	shift := int((addr+uintptr(alignment)-1)&^(uintptr(alignment)-1) - addr)
	return b[shift : shift+size : cap(b)], nil
}

// UsableSize returns the max len a buf can be resized to in place,
// or 0 if buf is not created by this package.
func (p *Pool) UsableSize(buf []byte) int {
	if _, _, ok := lookup(buf); !ok {
		return 0
	}
	return cap(buf) - footerLen
}

// Free should be called when a buf is no longer used.
// It ignores bufs not created by this package and bufs already freed.
func (p *Pool) Free(buf []byte) {
	i, base, ok := lookup(buf)
	if !ok {
		return
	}
	setFooter(buf, 0)
	atomic.AddInt64(&p.inuse, -int64(pools[i].Size))
	pools[i].Put(base)
}

// lookup validates the footer of buf and returns its pool index and base pointer.
func lookup(buf []byte) (int, *byte, bool) {
	c := cap(buf)
	if c-len(buf) < footerLen {
		return 0, nil, false
	}
	footer := getFooter(buf)
	if footer&footerMagicMask != footerMagic {
		return 0, nil, false
	}
	i := int(footer & footerIndexMask)
	if i >= len(pools) || c > pools[i].Size {
		return 0, nil, false
	}
	// buf ends where its pool buffer ends
	base := unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), c-pools[i].Size)
	return i, (*byte)(base), true
}

func getFooter(buf []byte) uint64 {
	return *(*uint64)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), cap(buf)-footerLen))
}

func setFooter(buf []byte, v uint64) {
	*(*uint64)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), cap(buf)-footerLen)) = v
}

var defaultPool = NewPool(0)

// Default returns the unlimited Pool used by the package-level functions.
func Default() *Pool { return defaultPool }

// Malloc creates a buf from the default pool. See Pool.Malloc.
func Malloc(size int) []byte { return defaultPool.Malloc(size) }

// Calloc creates a zeroed buf from the default pool. See Pool.Calloc.
func Calloc(n, size int) []byte { return defaultPool.Calloc(n, size) }

// Realloc resizes a buf of the default pool. See Pool.Realloc.
func Realloc(buf []byte, size int) []byte { return defaultPool.Realloc(buf, size) }

// AlignedAlloc creates an aligned buf from the default pool. See Pool.AlignedAlloc.
func AlignedAlloc(alignment, size int) ([]byte, error) {
	return defaultPool.AlignedAlloc(alignment, size)
}

// UsableSize returns the max len buf can be resized to in place. See Pool.UsableSize.
func UsableSize(buf []byte) int { return defaultPool.UsableSize(buf) }

// Free returns buf to the default pool. See Pool.Free.
func Free(buf []byte) { defaultPool.Free(buf) }
