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

import "fmt"

func Example() {
	a, _ := NewBuddyAllocatorWithBlockSize(make([]byte, 64*1024), 1024, 64*1024)

	b1 := a.Alloc(1000) // fits in a 1KB block
	b2 := a.Alloc(1024) // needs a 2KB block due to the 16-byte header
	b3 := a.AllocAligned(256, 100)

	fmt.Printf("b1: len=%d cap=%d\n", len(b1), cap(b1))
	fmt.Printf("b2: len=%d cap=%d\n", len(b2), cap(b2))
	fmt.Printf("b3: len=%d usable=%d\n", len(b3), a.UsableSize(b3))

	a.Free(b1)
	a.Free(b2)
	a.Free(b3)

	// Output:
	// b1: len=1000 cap=1008
	// b2: len=1024 cap=2032
	// b3: len=100 usable=768
}
