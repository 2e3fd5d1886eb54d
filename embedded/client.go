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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/lazyerrors"
	"github.com/FerretDB/mongo-embedded/internal/util/must"
	"github.com/FerretDB/mongo-embedded/internal/util/observability"
	"github.com/FerretDB/mongo-embedded/internal/util/resource"
)

// Client represents a client of an Instance.
//
// It is safe for concurrent use, but invokes on the same Client are serialized;
// use several Clients for concurrency.
type Client struct {
	lib   *Library
	l     *zap.Logger
	token *resource.Token
	id    uuid.UUID

	// protects h and held; serializes client_invoke, output release, and client_destroy
	m    sync.Mutex
	h    capi.Client
	held *Response
}

// Invoke sends a wire protocol request to the engine and returns its response.
//
// The request is read only for the duration of the call.
// The returned Response must be released before the next Invoke on the same Client;
// until then, Invoke returns [ErrInvalidState].
//
// The native call can't be canceled; ctx is used only for tracing and is checked before the call.
func (c *Client) Invoke(ctx context.Context, request []byte) (*Response, error) {
	if c == nil {
		return nil, ErrInvalidState
	}

	ctx, span := c.lib.tracer.Start(
		ctx,
		"embedded.Invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("embedded.request.size", len(request))),
	)
	defer span.End()

	ctx, endTask := observability.NewTask(ctx, "embedded.Invoke")
	defer endTask()

	resp, err := c.invoke(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("embedded.response.size", resp.Len()))

	return resp, nil
}

// invoke implements Invoke.
func (c *Client) invoke(ctx context.Context, request []byte) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	c.m.Lock()
	defer c.m.Unlock()

	if c.h == 0 {
		return nil, ErrInvalidState
	}

	if c.held != nil {
		return nil, lazyerrors.Errorf("previous response is not released: %w", ErrInvalidState)
	}

	start := time.Now()

	var out capi.Output
	err := c.lib.call(ctx, "client_invoke", func(st capi.Status) bool {
		var code int32
		out, code = c.lib.gw.ClientInvoke(c.h, request, st)

		return code == capi.Success
	})

	c.lib.metrics.observeInvoke(start)

	if err != nil {
		c.l.Warn("Invoke failed", zap.Error(err))
		return nil, err
	}

	if out.Ptr == 0 {
		return nil, lazyerrors.Errorf("native library returned no output buffer (%d bytes)", out.Len)
	}

	resp := &Response{
		c:     c,
		out:   out,
		token: resource.NewToken(),
	}
	resource.Track(resp, resp.token)

	c.held = resp

	return resp, nil
}

// release frees the output buffer of resp.
func (c *Client) release(resp *Response) {
	c.m.Lock()
	defer c.m.Unlock()

	// Close fails while a response is held
	must.BeTrue(c.h != 0)

	c.lib.gw.FreeOutput(c.h, resp.out)

	if c.held == resp {
		c.held = nil
	}
}

// Close destroys the client.
//
// It fails with [ErrInvalidState] if a Response is not released or the Client is closed.
func (c *Client) Close() error {
	if c == nil {
		return ErrInvalidState
	}

	c.m.Lock()
	defer c.m.Unlock()

	if c.h == 0 {
		return ErrInvalidState
	}

	if c.held != nil {
		return lazyerrors.Errorf("response is not released: %w", ErrInvalidState)
	}

	err := c.lib.call(context.Background(), "client_destroy", func(st capi.Status) bool {
		return c.lib.gw.ClientDestroy(c.h, st) == capi.Success
	})

	if err != nil {
		c.l.Warn("Failed to destroy client", zap.Error(err))
		return err
	}

	c.h = 0

	resource.Untrack(c, c.token)
	c.lib.metrics.Handles.WithLabelValues("client").Dec()

	c.l.Debug("Client destroyed")

	return nil
}
