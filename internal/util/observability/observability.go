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

// Package observability provides helpers for the Go execution tracer.
package observability

import (
	"context"
	"runtime/trace"
)

// NativeCall marks a native call in the Go execution tracer.
//
// It should be called right before the call, and returned function should be called after it returns:
//
//	defer NativeCall(ctx, "client_invoke")()
//
// The region is attached to the task in the context (or background task).
// If the tracer is disabled, NativeCall does nothing.
func NativeCall(ctx context.Context, op string) func() {
	if !trace.IsEnabled() {
		return func() {}
	}

	return trace.StartRegion(ctx, "mongo_embedded_v1_"+op).End
}

// NewTask starts a task in the Go execution tracer.
// Native calls marked with the returned context are attached to it.
//
//	ctx, end := NewTask(ctx, "embedded.Invoke")
//	defer end()
func NewTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}
