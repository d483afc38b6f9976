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
	"bytes"
	"context"
	"log"
	"math"
	"os"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/teemalloc/cache/mempool"
	"github.com/cloudwego/teemalloc/unsafex/arena"
)

func TestDefaultHeap(t *testing.T) {
	p := Malloc(16)
	require.Equal(t, 16, len(p))
	assert.Equal(t, OK, LastError())
	assert.GreaterOrEqual(t, UsableSize(p), 16)

	p = Realloc(p, 4096)
	require.Equal(t, 4096, len(p))
	Free(p)
	assert.Equal(t, OK, LastError())

	z := Calloc(8, 8)
	require.Equal(t, 64, len(z))
	Free(z)

	a := Memalign(256, 100)
	require.Equal(t, 100, len(a))
	assert.Equal(t, uintptr(0), uintptr(unsafe.Pointer(&a[0]))%256)
	Free(a)

	a, e := PosixMemalign(3, 8)
	assert.Nil(t, a)
	assert.Equal(t, EINVAL, e)
	assert.Equal(t, EINVAL, LastError())

	a, e = PosixMemalign(64, 8)
	assert.Equal(t, OK, e)
	assert.Equal(t, 8, len(a))
	Free(a)
}

func TestDefaultHeapFailure(t *testing.T) {
	r := &recorder{}
	SetFailureCallback(r.callback)
	defer SetFailureCallback(nil)

	assert.Nil(t, Malloc(math.MaxInt))
	assert.Equal(t, ENOMEM, LastError())
	assert.Equal(t, []int{math.MaxInt}, r.sizes())
	assert.True(t, strings.HasSuffix(r.failures[0].function, ".TestDefaultHeapFailure"), r.failures[0].function)
}

func TestDefaultTracking(t *testing.T) {
	assert.Equal(t, OK, TrackingStart())
	status, count, report := TrackingReport()
	assert.Equal(t, ENOTSUP, status)
	assert.Equal(t, 0, count)
	assert.Empty(t, report)
	assert.Equal(t, OK, CheckLeaks())
	assert.Equal(t, OK, TrackingStop())
}

func TestNewDefaultHeapFromEnv(t *testing.T) {
	t.Setenv(envArenaSize, "1048576")
	t.Setenv(envLogFailures, "true")
	h := newDefaultHeap()
	a, ok := h.backend.(*arena.Arena)
	require.True(t, ok)
	defer a.Close()
	assert.NotNil(t, h.callback.Load())

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	assert.Nil(t, h.Malloc(2<<20))
	assert.Contains(t, buf.String(), "MALLOC: failed to allocate 2097152 bytes in ")
	assert.Contains(t, buf.String(), "default_test.go")
}

func TestNewDefaultHeapInvalidEnv(t *testing.T) {
	t.Setenv(envArenaSize, "lots")
	t.Setenv(envLogFailures, "nope")

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := newDefaultHeap()
	_, ok := h.backend.(*mempool.Pool)
	assert.True(t, ok)
	assert.Nil(t, h.callback.Load())
	assert.Contains(t, buf.String(), "MALLOC: invalid TEEMALLOC_ARENA_SIZE")
}

func TestLogFailure(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	LogFailure("enclave.go", 42, "main.run", 128)
	assert.Contains(t, buf.String(), "MALLOC: failed to allocate 128 bytes in main.run at enclave.go:42")
}

func TestScopeFrom(t *testing.T) {
	assert.Same(t, &Default().Scope, ScopeFrom(context.Background()))

	h, _, _ := newTestHeap(8)
	s := h.NewScope()
	ctx := WithScope(context.Background(), s)
	assert.Same(t, s, ScopeFrom(ctx))

	ScopeFrom(ctx).Malloc(16)
	assert.Equal(t, ENOMEM, s.LastError())
	assert.Equal(t, OK, h.LastError())

	assert.Same(t, &Default().Scope, ScopeFrom(WithScope(context.Background(), nil)))
}
