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

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	b, err := Map(10000)
	require.NoError(t, err)
	assert.Equal(t, 3*PageSize, len(b))
	assert.Equal(t, uintptr(0), uintptr(unsafe.Pointer(&b[0]))&(PageSize-1))

	for i := range b {
		b[i] = byte(i)
	}
	assert.Equal(t, byte(0xff), b[255])
	require.NoError(t, Unmap(b))
}

func TestMapInvalid(t *testing.T) {
	_, err := Map(0)
	assert.Error(t, err)
	_, err = Map(-1)
	assert.Error(t, err)
	assert.NoError(t, Unmap(nil))
}
