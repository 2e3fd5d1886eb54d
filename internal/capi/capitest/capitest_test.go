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

package capitest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/mongo-embedded/internal/capi"
)

// initLib initializes the fake library with a status that is destroyed on cleanup.
func initLib(t *testing.T, g *Gateway, params *capi.InitParams) capi.Lib {
	t.Helper()

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	h := g.LibInit(params, st)
	require.NotZero(t, h, g.StatusGetExplanation(st))

	return h
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	g := New()
	l := initLib(t, g, &capi.InitParams{YAMLConfig: "{}"})

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	assert.Zero(t, g.LibInit(nil, st))
	assert.EqualValues(t, errorLibraryAlreadyInitialized, g.StatusGetError(st))

	inst := g.InstanceCreate(l, "{}", st)
	require.NotZero(t, inst)

	assert.Zero(t, g.InstanceCreate(l, "{}", st))
	assert.EqualValues(t, errorDBMaxOpen, g.StatusGetError(st))

	c := g.ClientCreate(inst, st)
	require.NotZero(t, c)

	assert.EqualValues(t, errorHasDBHandlesOpen, g.LibFini(l, st))
	assert.EqualValues(t, errorDBClientsOpen, g.InstanceDestroy(inst, st))

	out, code := g.ClientInvoke(c, []byte{1, 2, 3}, st)
	require.EqualValues(t, capi.Success, code)
	assert.Equal(t, []byte{1, 2, 3}, out.Bytes())

	g.FreeOutput(c, out)
	g.FreeOutput(c, out)

	assert.EqualValues(t, capi.Success, g.ClientDestroy(c, st))
	assert.EqualValues(t, errorInvalidClientHandle, g.ClientDestroy(c, st))
	assert.EqualValues(t, capi.Success, g.InstanceDestroy(inst, st))
	assert.EqualValues(t, capi.Success, g.LibFini(l, st))
	assert.EqualValues(t, errorInvalidLibHandle, g.LibFini(l, st))

	s := g.Stats()
	assert.Equal(t, 1, s.OutputsAllocated)
	assert.Equal(t, 1, s.OutputsFreed)
	assert.Equal(t, 1, s.InvalidFrees)
	assert.Zero(t, s.LiveLibs)
	assert.Zero(t, s.LiveInstances)
	assert.Zero(t, s.LiveClients)
	assert.Equal(t, 2, s.Calls[OpLibInit])
}

func TestFailNext(t *testing.T) {
	t.Parallel()

	g := New()
	g.FailNext(OpLibInit, Failure{Code: 123, SubCode: 4, Explanation: "bad state"})

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	assert.Zero(t, g.LibInit(nil, st))
	assert.EqualValues(t, 123, g.StatusGetError(st))
	assert.EqualValues(t, 4, g.StatusGetCode(st))
	assert.Equal(t, "bad state", g.StatusGetExplanation(st))

	// only the next call fails
	assert.NotZero(t, g.LibInit(nil, st))
	assert.EqualValues(t, capi.Success, g.StatusGetError(st))
}

func TestInvokeError(t *testing.T) {
	t.Parallel()

	g := New()
	g.Invoke = func([]byte) ([]byte, error) { return nil, errors.New("boom") }

	l := initLib(t, g, nil)

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	inst := g.InstanceCreate(l, "", st)
	c := g.ClientCreate(inst, st)

	out, code := g.ClientInvoke(c, nil, st)
	assert.EqualValues(t, errorException, code)
	assert.Zero(t, out.Ptr)
	assert.Equal(t, "boom", g.StatusGetExplanation(st))
}

func TestEmptyOutput(t *testing.T) {
	t.Parallel()

	g := New()
	l := initLib(t, g, nil)

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	inst := g.InstanceCreate(l, "", st)
	c := g.ClientCreate(inst, st)

	out, code := g.ClientInvoke(c, nil, st)
	require.EqualValues(t, capi.Success, code)
	assert.NotZero(t, out.Ptr)
	assert.Zero(t, out.Len)
	assert.Empty(t, out.Bytes())

	g.FreeOutput(c, out)
	assert.Equal(t, 1, g.Stats().OutputsFreed)
}

func TestStatusUseAfterDestroy(t *testing.T) {
	t.Parallel()

	g := New()

	st := g.StatusCreate()
	g.StatusDestroy(st)
	g.StatusDestroy(st)
	g.StatusGetError(st)

	s := g.Stats()
	assert.Equal(t, 1, s.StatusCreated)
	assert.Equal(t, 1, s.StatusDestroyed)
	assert.Equal(t, 2, s.StatusUseAfterDestroy)
}

func TestAllocFailures(t *testing.T) {
	t.Parallel()

	g := New()
	g.AllocFailures = 1

	assert.Zero(t, g.StatusCreate())
	assert.NotZero(t, g.StatusCreate())
}

func TestPanicNext(t *testing.T) {
	t.Parallel()

	g := New()
	g.PanicNext(OpLibInit, "native crash")

	st := g.StatusCreate()
	defer g.StatusDestroy(st)

	assert.PanicsWithValue(t, "native crash", func() { g.LibInit(nil, st) })

	// the lock is released
	assert.NotZero(t, g.LibInit(nil, st))
}

func TestLog(t *testing.T) {
	t.Parallel()

	g := New()

	var messages []string
	initLib(t, g, &capi.InitParams{
		LogFlags: capi.LogCallback,
		LogHandler: func(message, component, context string, severity int32) {
			messages = append(messages, component+": "+message)
		},
	})

	g.Log("hello", "TEST", "conn1", 0)

	assert.Equal(t, []string{"CONTROL: library initialized", "TEST: hello"}, messages)

	config, flags, err := g.LibConfig()
	require.NoError(t, err)
	assert.Empty(t, config)
	assert.Equal(t, capi.LogCallback, flags)
}
