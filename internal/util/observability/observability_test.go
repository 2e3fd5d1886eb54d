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

package observability

import (
	"bytes"
	"context"
	"runtime/trace"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeCall(t *testing.T) {
	// not parallel: the execution tracer is process-wide

	ctx := context.Background()

	NativeCall(ctx, "lib_init")()

	if trace.IsEnabled() {
		t.Skip("execution tracer is already enabled")
	}

	var buf bytes.Buffer
	require.NoError(t, trace.Start(&buf))

	ctx, end := NewTask(ctx, "embedded.Invoke")
	NativeCall(ctx, "client_invoke")()
	end()

	trace.Stop()

	assert.NotZero(t, buf.Len())
}
