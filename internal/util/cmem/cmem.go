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

// Package cmem allocates memory outside of the Go heap.
//
// Addresses of such memory may be converted to uintptr and back,
// the way native libraries hand them out, without tripping checkptr instrumentation
// enabled by the race detector.
package cmem

// Alloc returns a zeroed n-byte buffer outside of the Go heap.
// The buffer is never nil, even if n is zero.
// It must be released with [Free].
func Alloc(n int) ([]byte, error) {
	b, err := alloc(max(n, 1))
	if err != nil {
		return nil, err
	}

	return b[:n], nil
}

// Free releases a buffer returned by [Alloc].
func Free(b []byte) error {
	return free(b[:cap(b)])
}

// CString returns a NUL-terminated copy of s allocated with [Alloc].
func CString(s string) ([]byte, error) {
	b, err := Alloc(len(s) + 1)
	if err != nil {
		return nil, err
	}

	copy(b, s)

	return b, nil
}
