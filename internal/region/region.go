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

// Package region provides the raw memory regions carved up by arena allocators.
package region

import "fmt"

// PageSize is the granularity regions are rounded up to.
const PageSize = 4096

func roundUp(size int) int {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// Map returns a read/write region of at least size bytes.
// The region is page aligned and not guaranteed to be zeroed on reuse.
func Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("region: invalid size %d", size)
	}
	return mapRegion(roundUp(size))
}

// Unmap releases a region returned by Map.
// The region must not be used afterwards.
func Unmap(b []byte) error {
	if cap(b) == 0 {
		return nil
	}
	return unmapRegion(b[:cap(b)])
}
