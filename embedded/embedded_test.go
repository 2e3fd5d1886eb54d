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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/mongo-embedded/internal/capi/capitest"
	"github.com/FerretDB/mongo-embedded/internal/util/testutil"
)

// Tests that open a Library must not run in parallel: the Library is a process-wide singleton.

// resetLibraries empties the singleton slot after a test that left a Library open.
func resetLibraries() {
	libraries.m.Lock()
	defer libraries.m.Unlock()

	libraries.active = nil
}

// setup opens a Library backed by the given fake native library.
func setup(t *testing.T, g *capitest.Gateway, opts *Options) *Library {
	t.Helper()

	if opts == nil {
		opts = new(Options)
	}

	opts.gateway = g

	if opts.Logger == nil {
		opts.Logger = testutil.Logger(t)
	}

	lib, err := Open(opts)
	require.NoError(t, err)

	t.Cleanup(resetLibraries)

	return lib
}

// setupClient opens a Library, an Instance, and a Client, and closes them on cleanup.
func setupClient(t *testing.T, g *capitest.Gateway, opts *Options) *Client {
	t.Helper()

	lib := setup(t, g, opts)

	inst, err := lib.NewInstance("{}")
	require.NoError(t, err)

	c, err := inst.NewClient()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, c.Close())
		assert.NoError(t, inst.Close())
		assert.NoError(t, lib.Close())
	})

	return c
}

// assertStatusesDestroyed checks that every status handle was destroyed exactly once.
func assertStatusesDestroyed(t *testing.T, g *capitest.Gateway) {
	t.Helper()

	s := g.Stats()
	assert.NotZero(t, s.StatusCreated)
	assert.Equal(t, s.StatusCreated, s.StatusDestroyed)
	assert.Zero(t, s.StatusUseAfterDestroy)
}
