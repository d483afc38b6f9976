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

package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/teemalloc/errno"
)

func TestNop(t *testing.T) {
	var tr Tracker = Nop{}
	assert.Equal(t, errno.OK, tr.Start())
	assert.Equal(t, errno.OK, tr.Stop())

	status, count, report := tr.Report()
	assert.Equal(t, errno.ENOTSUP, status)
	assert.Equal(t, 0, count)
	assert.Equal(t, "", report)

	assert.Equal(t, errno.OK, tr.CheckLeaks())
}

func TestChecksDisabledHasNoEffect(t *testing.T) {
	ChecksDisabled.Store(true)
	defer ChecksDisabled.Store(false)

	status, _, _ := Nop{}.Report()
	assert.Equal(t, errno.ENOTSUP, status)
	assert.Equal(t, errno.OK, Nop{}.CheckLeaks())
}
