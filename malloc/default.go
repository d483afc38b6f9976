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

package malloc

import (
	"log"
	"os"
	"strconv"

	"github.com/cloudwego/teemalloc/unsafex/arena"
)

var _ Backend = (*arena.Arena)(nil)

// Environment variables read once when the package is loaded:
//   - TEEMALLOC_ARENA_SIZE backs the default heap with an arena of that many bytes
//     instead of the Go heap.
//   - TEEMALLOC_LOG_FAILURES=true installs LogFailure on the default heap.
const (
	envArenaSize   = "TEEMALLOC_ARENA_SIZE"
	envLogFailures = "TEEMALLOC_LOG_FAILURES"
)

var std = newDefaultHeap()

func newDefaultHeap() *Heap {
	opt := DefaultOption()
	if v, ok := os.LookupEnv(envArenaSize); ok {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			ao := arena.DefaultOption()
			ao.Size = size
			if a, err := arena.New(ao); err == nil {
				opt.Backend = a
			} else {
				log.Printf("MALLOC: arena of %d bytes unavailable, using mempool: %v", size, err)
			}
		} else {
			log.Printf("MALLOC: invalid %s=%q, using mempool", envArenaSize, v)
		}
	}
	if v, ok := os.LookupEnv(envLogFailures); ok {
		if on, err := strconv.ParseBool(v); err == nil && on {
			opt.FailureCallback = LogFailure
		}
	}
	return NewHeap(opt)
}

// Default returns the process-wide Heap used by the package-level functions.
func Default() *Heap { return std }

// Malloc allocates size bytes from the default heap. See Scope.Malloc.
func Malloc(size int) []byte { return std.malloc(size, 2) }

// Free releases b to the default heap. See Scope.Free.
func Free(b []byte) { std.Free(b) }

// Calloc allocates n*size zeroed bytes from the default heap. See Scope.Calloc.
func Calloc(n, size int) []byte { return std.calloc(n, size, 2) }

// Realloc resizes b in the default heap. See Scope.Realloc.
func Realloc(b []byte, size int) []byte { return std.realloc(b, size, 2) }

// Memalign allocates aligned memory from the default heap. See Scope.Memalign.
func Memalign(alignment, size int) []byte { return std.memalign(alignment, size, 2) }

// PosixMemalign allocates aligned memory from the default heap. See Scope.PosixMemalign.
func PosixMemalign(alignment, size int) ([]byte, Errno) {
	return std.posixMemalign(alignment, size, 2)
}

// UsableSize returns the usable size of b. See Scope.UsableSize.
func UsableSize(b []byte) int { return std.UsableSize(b) }

// SetFailureCallback replaces the failure callback of the default heap.
func SetFailureCallback(fn FailureCallback) { std.SetFailureCallback(fn) }

// LastError returns the status of the most recent package-level call.
// The cell is shared by every goroutine, use Heap.NewScope for a private one.
func LastError() Errno { return std.LastError() }

// TrackingStart starts allocation tracking on the default heap.
func TrackingStart() Errno { return std.TrackingStart() }

// TrackingStop stops allocation tracking on the default heap.
func TrackingStop() Errno { return std.TrackingStop() }

// TrackingReport returns the tracking report of the default heap.
func TrackingReport() (Errno, int, string) { return std.TrackingReport() }

// CheckLeaks reports whether the default heap found leaks.
func CheckLeaks() Errno { return std.CheckLeaks() }
