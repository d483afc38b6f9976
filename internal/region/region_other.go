//go:build !linux && !darwin && !freebsd

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

package region

import "unsafe"

// mapRegion falls back to the Go heap. Over-allocate by a page so the
// returned region keeps the same page alignment as mmap.
func mapRegion(size int) ([]byte, error) {
	buf := make([]byte, size+PageSize)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	shift := int((addr+PageSize-1)&^(PageSize-1) - addr)
	return buf[shift : shift+size : shift+size], nil
}

func unmapRegion([]byte) error { return nil }
