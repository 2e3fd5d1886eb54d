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

package embedded

import (
	"sync/atomic"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/resource"
)

// Response is a response buffer owned by the native library.
//
// It must be released exactly once with [Response.Release].
type Response struct {
	c        *Client
	out      capi.Output
	token    *resource.Token
	released atomic.Bool
}

// Bytes returns the response without copying.
//
// The returned slice is valid only until Release; Bytes returns nil after that.
func (r *Response) Bytes() []byte {
	if r == nil || r.released.Load() {
		return nil
	}

	return r.out.Bytes()
}

// Len returns the response length in bytes.
func (r *Response) Len() int {
	if r == nil {
		return 0
	}

	return r.out.Len
}

// Release frees the native buffer.
//
// Second and subsequent calls return [ErrInvalidState] without touching native memory.
func (r *Response) Release() error {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return ErrInvalidState
	}

	r.c.release(r)
	resource.Untrack(r, r.token)

	return nil
}
