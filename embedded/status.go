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
	"context"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/lazyerrors"
	"github.com/FerretDB/mongo-embedded/internal/util/observability"
)

// call runs a single fallible native operation with a fresh status handle.
// The call is marked in the Go execution tracer as a region of the task in ctx.
//
// fn returns true on success. On failure, the status is translated into [*NativeError].
// The status handle is destroyed on every path, including panics in fn.
func call(ctx context.Context, gw capi.Gateway, op string, fn func(st capi.Status) bool) (err error) {
	defer observability.NativeCall(ctx, op)()

	st := gw.StatusCreate()
	if st == 0 {
		return lazyerrors.Errorf("%s: failed to create status: %w", op, ErrAllocation)
	}

	defer gw.StatusDestroy(st)

	defer func() {
		if p := recover(); p != nil {
			err = lazyerrors.Errorf("%s: native call panicked: %v", op, p)
		}
	}()

	if fn(st) {
		return nil
	}

	return statusError(gw, op, st)
}

// statusError reads the failure details from the status handle.
func statusError(gw capi.Gateway, op string, st capi.Status) error {
	code := ErrorCode(gw.StatusGetError(st))
	if code == ErrorSuccess {
		return lazyerrors.Errorf("%s: native call failed without reporting an error", op)
	}

	return &NativeError{
		Op:          op,
		Code:        code,
		SubCode:     gw.StatusGetCode(st),
		Explanation: gw.StatusGetExplanation(st),
	}
}
