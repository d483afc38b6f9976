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
	"log"
	"runtime"
)

// FailureCallback is notified when a backend fails a non-zero allocation.
// file, line and function identify the caller of the failing entry point,
// size is the number of bytes requested.
//
// It runs synchronously on the failing goroutine before the entry point returns.
// It can't change what the entry point returns.
type FailureCallback func(file string, line int, function string, size int)

// SetFailureCallback replaces the failure callback of h. nil disables notifications.
func (h *Heap) SetFailureCallback(fn FailureCallback) {
	if fn == nil {
		h.callback.Store(nil)
		return
	}
	h.callback.Store(&fn)
}

// notify calls the failure callback, if any, with the call site found skip
// frames above notify's caller.
func (h *Heap) notify(size, skip int) {
	fn := h.callback.Load()
	if fn == nil {
		return
	}
	file, line, function := callSite(skip + 1)
	(*fn)(file, line, function, size)
}

// callSite resolves the frame skip frames above its caller.
func callSite(skip int) (file string, line int, function string) {
	var pcs [8]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return "", 0, ""
	}
	frame, _ := runtime.CallersFrames(pcs[:n]).Next()
	return frame.File, frame.Line, frame.Function
}

// LogFailure is a FailureCallback that logs every failure with the standard logger.
func LogFailure(file string, line int, function string, size int) {
	log.Printf("MALLOC: failed to allocate %d bytes in %s at %s:%d", size, function, file, line)
}
