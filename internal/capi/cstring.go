// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package capi

import "unsafe"

// goString copies a NUL-terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}

	start := unsafe.Pointer(p)

	var n uintptr
	for *(*byte)(unsafe.Add(start, n)) != 0 {
		n++
	}

	return string(unsafe.Slice((*byte)(start), n))
}

// cString returns a NUL-terminated copy of s in Go memory.
// The caller must keep it pinned while the native side may read it.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)

	return b
}
