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
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FerretDB/mongo-embedded/internal/util/lazyerrors"
	"github.com/FerretDB/mongo-embedded/internal/wire"
)

// RunCommand runs a database command and returns its reply document.
//
// cmd is anything that go.mongodb.org/mongo-driver/bson can marshal to a document, typically [bson.D],
// without the "$db" field. A reply with "ok" other than 1 is returned as [mongo.CommandError]
// together with the reply document.
func (c *Client) RunCommand(ctx context.Context, db string, cmd any) (bson.Raw, error) {
	if c == nil {
		return nil, ErrInvalidState
	}

	msg, err := wire.NewCommand(db, cmd)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	ctx, span := c.lib.tracer.Start(ctx, "embedded.RunCommand")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.name", db),
		attribute.String("db.operation", msg.Command()),
		attribute.Int("embedded.request_id", int(msg.RequestID)),
	)

	reply, err := c.runCommand(ctx, msg)
	if err != nil {
		var ce mongo.CommandError
		if errors.As(err, &ce) {
			span.SetAttributes(attribute.String("db.response.status_code", strconv.Itoa(int(ce.Code))))
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return reply, err
}

// runCommand implements RunCommand.
func (c *Client) runCommand(ctx context.Context, msg *wire.OpMsg) (bson.Raw, error) {
	req, err := msg.MarshalBinary()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	// copy the reply out of the native buffer before releasing it
	b := bytes.Clone(resp.Bytes())

	if err = resp.Release(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	replyMsg, err := wire.ReadOpMsg(b)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if replyMsg.ResponseTo != msg.RequestID {
		return nil, lazyerrors.Errorf("reply is for request %d, expected %d", replyMsg.ResponseTo, msg.RequestID)
	}

	reply, err := replyMsg.Body()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if err = replyError(reply); err != nil {
		return reply, err
	}

	return reply, nil
}

// replyError returns [mongo.CommandError] if the reply is not successful.
func replyError(reply bson.Raw) error {
	ok, err := reply.LookupErr("ok")
	if err != nil {
		return lazyerrors.Errorf("reply has no ok field: %w", err)
	}

	if isOne(ok) {
		return nil
	}

	ce := mongo.CommandError{
		Message: "command failed",
		Raw:     reply,
	}

	if v, e := reply.LookupErr("code"); e == nil {
		ce.Code, _ = v.Int32OK()
	}

	if v, e := reply.LookupErr("errmsg"); e == nil {
		ce.Message, _ = v.StringValueOK()
	}

	if v, e := reply.LookupErr("codeName"); e == nil {
		ce.Name, _ = v.StringValueOK()
	}

	return ce
}

// isOne returns true if v is a numeric one or true.
func isOne(v bson.RawValue) bool {
	switch v.Type {
	case bson.TypeDouble:
		return v.Double() == 1
	case bson.TypeInt32:
		return v.Int32() == 1
	case bson.TypeInt64:
		return v.Int64() == 1
	case bson.TypeBoolean:
		return v.Boolean()
	default:
		return false
	}
}

// Ping checks that the engine responds to commands.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.RunCommand(ctx, "admin", bson.D{{"ping", int32(1)}})
	return err
}
