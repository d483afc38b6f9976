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

// Package diag defines the leak-tracking surface of an allocator and a no-op
// implementation of it. Callers can probe for tracking support through
// Tracker without knowing whether a tracking backend is installed.
package diag

import (
	"sync/atomic"

	"github.com/cloudwego/teemalloc/errno"
)

// Tracker controls allocation tracking and leak reporting.
type Tracker interface {
	// Start begins recording live allocations.
	Start() errno.Errno
	// Stop ends recording.
	Stop() errno.Errno
	// Report returns the number of live tracked allocations and a printable report.
	Report() (status errno.Errno, count int, report string)
	// CheckLeaks returns OK if no leaks were found.
	CheckLeaks() errno.Errno
}

// ChecksDisabled mirrors the switch a tracking backend reads to skip its
// consistency checks. Nop ignores it.
var ChecksDisabled atomic.Bool

// Nop is the Tracker used when no tracking backend is configured.
type Nop struct{}

var _ Tracker = Nop{}

func (Nop) Start() errno.Errno { return errno.OK }

func (Nop) Stop() errno.Errno { return errno.OK }

// Report always returns ENOTSUP, so callers can tell Nop apart from a
// tracking backend that has nothing to report.
func (Nop) Report() (errno.Errno, int, string) { return errno.ENOTSUP, 0, "" }

// CheckLeaks always reports no leaks.
func (Nop) CheckLeaks() errno.Errno { return errno.OK }
