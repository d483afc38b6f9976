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

import "unsafe"

// PtrSize is the size of a pointer in bytes, the smallest alignment
// accepted by PosixMemalign.
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// IsPow2 reports whether a is a valid alignment, i.e. a positive power of two.
func IsPow2(a int) bool {
	return a > 0 && a&(a-1) == 0
}
