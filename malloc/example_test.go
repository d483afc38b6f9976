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

package malloc_test

import (
	"fmt"

	"github.com/cloudwego/teemalloc/cache/mempool"
	"github.com/cloudwego/teemalloc/malloc"
)

func Example() {
	h := malloc.NewHeap(&malloc.Option{
		Backend: mempool.NewPool(1024),
		FailureCallback: func(file string, line int, function string, size int) {
			fmt.Printf("allocation of %d bytes failed\n", size)
		},
	})

	b := h.Malloc(100)
	fmt.Printf("len=%d err=%v\n", len(b), h.LastError())

	if h.Malloc(4096) == nil {
		fmt.Printf("err=%v\n", h.LastError())
	}

	_, e := h.PosixMemalign(3, 64)
	fmt.Printf("err=%v\n", e)

	h.Free(b)

	// Output:
	// len=100 err=success
	// allocation of 4096 bytes failed
	// err=out of memory
	// err=invalid argument
}
