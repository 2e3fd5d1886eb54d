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
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/FerretDB/mongo-embedded/internal/capi/capitest"
	"github.com/FerretDB/mongo-embedded/internal/util/testutil"
	"github.com/FerretDB/mongo-embedded/internal/util/testutil/teststress"
)

func TestInvokeRelease(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	resp, err := c.Invoke(testutil.Ctx(t), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp.Bytes())
	assert.Equal(t, 5, resp.Len())

	require.NoError(t, resp.Release())
	assert.Nil(t, resp.Bytes())

	assert.ErrorIs(t, resp.Release(), ErrInvalidState)
	assert.ErrorIs(t, resp.Release(), ErrInvalidState)

	var nilResp *Response
	assert.ErrorIs(t, nilResp.Release(), ErrInvalidState)
	assert.Nil(t, nilResp.Bytes())

	s := g.Stats()
	assert.Equal(t, 1, s.OutputsAllocated)
	assert.Equal(t, 1, s.OutputsFreed)
	assert.Zero(t, s.InvalidFrees)
}

func TestInvokeEmpty(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	resp, err := c.Invoke(testutil.Ctx(t), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Bytes())
	assert.Zero(t, resp.Len())
	require.NoError(t, resp.Release())
}

func TestInvokeCopiesRequest(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	req := []byte{0x01, 0x02, 0x03}

	resp, err := c.Invoke(testutil.Ctx(t), req)
	require.NoError(t, err)

	req[0] = 0xff

	assert.Equal(t, []byte{0x01, 0x02, 0x03}, resp.Bytes())
	require.NoError(t, resp.Release())
}

func TestInvokeError(t *testing.T) {
	g := capitest.New()
	g.Invoke = func([]byte) ([]byte, error) {
		return nil, errors.New("unsupported message")
	}

	c := setupClient(t, g, nil)

	resp, err := c.Invoke(testutil.Ctx(t), []byte{0x01})
	assert.Nil(t, resp)
	require.EqualError(t, err, "unsupported message (2:0)")
	assert.ErrorIs(t, err, ErrorException)

	// nothing to release, so the next invoke is allowed
	_, err = c.Invoke(testutil.Ctx(t), []byte{0x01})
	require.ErrorIs(t, err, ErrorException)

	assert.Zero(t, g.Stats().OutputsAllocated)
}

func TestInvokeCanceled(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	ctx, cancel := context.WithCancel(testutil.Ctx(t))
	cancel()

	_, err := c.Invoke(ctx, []byte{0x01})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.Stats().Calls[capitest.OpClientInvoke])
}

func TestHeldResponse(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	resp, err := c.Invoke(testutil.Ctx(t), []byte{0x01})
	require.NoError(t, err)

	_, err = c.Invoke(testutil.Ctx(t), []byte{0x02})
	require.ErrorIs(t, err, ErrInvalidState)

	require.ErrorIs(t, c.Close(), ErrInvalidState)

	// the held response is intact
	assert.Equal(t, []byte{0x01}, resp.Bytes())
	assert.Equal(t, 1, g.Stats().Calls[capitest.OpClientInvoke])

	require.NoError(t, resp.Release())

	resp, err = c.Invoke(testutil.Ctx(t), []byte{0x02})
	require.NoError(t, err)
	require.NoError(t, resp.Release())
}

func TestConcurrentClients(t *testing.T) {
	g := capitest.New()

	// let invokes overlap
	g.Invoke = func(input []byte) ([]byte, error) {
		time.Sleep(time.Millisecond)
		return capitest.Echo(input)
	}

	lib := setup(t, g, nil)

	inst, err := lib.NewInstance("{}")
	require.NoError(t, err)

	const n = 10

	clients := make([]*Client, n)
	for i := range n {
		clients[i], err = inst.NewClient()
		require.NoError(t, err)
	}

	teststress.Stress(t, n, func(i int, ready chan<- struct{}, start <-chan struct{}) {
		c := clients[i]

		ready <- struct{}{}
		<-start

		for j := range 20 {
			req := []byte(fmt.Sprintf("client %d request %d", i, j))

			resp, err := c.Invoke(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}

			assert.Equal(t, req, resp.Bytes())
			assert.NoError(t, resp.Release())
		}
	})

	for _, c := range clients {
		require.NoError(t, c.Close())
	}

	require.NoError(t, inst.Close())
	require.NoError(t, lib.Close())

	s := g.Stats()
	assert.Equal(t, n*20, s.OutputsFreed)
	assert.Zero(t, s.InvalidFrees)
	assert.Zero(t, s.ConcurrentInvokes)

	assertStatusesDestroyed(t, g)
}

func TestConcurrentSameClient(t *testing.T) {
	g := capitest.New()
	c := setupClient(t, g, nil)

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			req := []byte{byte(i)}

			for {
				resp, err := c.Invoke(context.Background(), req)
				if errors.Is(err, ErrInvalidState) {
					// another goroutine holds the response
					runtime.Gosched()
					continue
				}

				if !assert.NoError(t, err) {
					return
				}

				assert.True(t, bytes.Equal(req, resp.Bytes()))
				assert.NoError(t, resp.Release())

				return
			}
		}()
	}

	wg.Wait()

	s := g.Stats()
	assert.Equal(t, 10, s.OutputsFreed)
	assert.Zero(t, s.ConcurrentInvokes)
}

func TestInvokeTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	g := capitest.New()
	c := setupClient(t, g, &Options{TracerProvider: tp})

	resp, err := c.Invoke(testutil.Ctx(t), []byte{0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, resp.Release())

	g.FailNext(capitest.OpClientInvoke, capitest.Failure{Code: int32(ErrorReentrancyNotAllowed), Explanation: "reentrancy"})

	_, err = c.Invoke(testutil.Ctx(t), []byte{0x03})
	require.ErrorIs(t, err, ErrorReentrancyNotAllowed)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	for _, s := range spans {
		assert.Equal(t, "embedded.Invoke", s.Name())
		assert.Equal(t, tracerName, s.InstrumentationScope().Name)
	}

	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "reentrancy (12:0)", spans[1].Status().Description)

	// native calls are recorded in the caller's span
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "client_invoke", events[0].Name)
	assert.Equal(t, []attribute.KeyValue{attribute.Bool("embedded.error", false)}, events[0].Attributes)

	events = spans[1].Events()
	require.Len(t, events, 2)
	assert.Equal(t, "client_invoke", events[0].Name)
	assert.Equal(t, []attribute.KeyValue{attribute.Bool("embedded.error", true)}, events[0].Attributes)
	assert.Equal(t, "exception", events[1].Name)
}
