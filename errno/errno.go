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

// Package errno defines the status codes shared by allocator backends and
// the malloc package.
package errno

import (
	"errors"
	"strconv"
)

// Errno is an allocation status code. The zero value means success.
//
// Values follow the Linux errno numbering so they can be handed to code
// that expects errno semantics.
type Errno int32

const (
	OK      Errno = 0
	ENOMEM  Errno = 12
	EINVAL  Errno = 22
	ENOTSUP Errno = 95
)

var names = map[Errno]string{
	OK:      "success",
	ENOMEM:  "out of memory",
	EINVAL:  "invalid argument",
	ENOTSUP: "operation not supported",
}

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// From maps an error reported by a backend to an Errno.
// nil maps to OK, an error wrapping an Errno maps to that Errno,
// anything else is treated as ENOMEM.
func From(err error) Errno {
	if err == nil {
		return OK
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return ENOMEM
}
