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

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/mongo/driver/wiremessage"

	"github.com/FerretDB/mongo-embedded/internal/util/must"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	msg, err := NewCommand("admin", bson.D{{"ping", int32(1)}})
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Command())

	b, err := msg.MarshalBinary()
	require.NoError(t, err)

	actual, err := ReadOpMsg(b)
	require.NoError(t, err)
	assert.Equal(t, msg, actual)

	body, err := actual.Body()
	require.NoError(t, err)
	assert.Equal(t, int32(1), body.Lookup("ping").Int32())
	assert.Equal(t, "admin", body.Lookup("$db").StringValue())

	t.Run("Errors", func(t *testing.T) {
		t.Parallel()

		_, err := NewCommand("", bson.D{{"ping", int32(1)}})
		assert.Error(t, err)

		_, err = NewCommand("admin", bson.D{})
		assert.Error(t, err)

		_, err = NewCommand("admin", bson.D{{"ping", int32(1)}, {"$db", "test"}})
		assert.Error(t, err)

		_, err = NewCommand("admin", 42)
		assert.Error(t, err)
	})
}

func TestOpMsgSequence(t *testing.T) {
	t.Parallel()

	msg := &OpMsg{
		RequestID:  7,
		ResponseTo: 3,
		Sections: []OpMsgSection{{
			Kind:       SectionSequence,
			Identifier: "documents",
			Documents: []bson.Raw{
				must.NotFail(bson.Marshal(bson.D{{"_id", int32(1)}})),
				must.NotFail(bson.Marshal(bson.D{{"_id", int32(2)}})),
			},
		}, {
			Kind: SectionBody,
			Documents: []bson.Raw{
				must.NotFail(bson.Marshal(bson.D{{"insert", "values"}, {"$db", "test"}})),
			},
		}},
	}

	b, err := msg.MarshalBinary()
	require.NoError(t, err)

	actual, err := ReadOpMsg(b)
	require.NoError(t, err)
	assert.Equal(t, msg, actual)
	assert.Equal(t, "insert", actual.Command())
	assert.Contains(t, actual.String(), `"Identifier": "documents"`)
}

func TestOpMsgChecksum(t *testing.T) {
	t.Parallel()

	msg, err := NewCommand("admin", bson.D{{"hello", int32(1)}})
	require.NoError(t, err)

	msg.Flags = OpMsgFlags(OpMsgChecksumPresent)

	b, err := msg.MarshalBinary()
	require.NoError(t, err)

	actual, err := ReadOpMsg(b)
	require.NoError(t, err)
	assert.Equal(t, msg, actual)

	b[len(b)-6] ^= 0xff

	_, err = ReadOpMsg(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestReadOpMsgErrors(t *testing.T) {
	t.Parallel()

	msg, err := NewCommand("admin", bson.D{{"ping", int32(1)}})
	require.NoError(t, err)

	valid, err := msg.MarshalBinary()
	require.NoError(t, err)

	query := wiremessage.AppendHeader(nil, 16, 1, 0, wiremessage.OpQuery)

	for name, b := range map[string][]byte{
		"Empty":     nil,
		"Short":     valid[:10],
		"Truncated": valid[:len(valid)-1],
		"Trailing":  append(append([]byte{}, valid...), 0x00),
		"OpQuery":   query,
		"NoBody":    valid[:20],
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := ReadOpMsg(b)
			assert.Error(t, err)
		})
	}
}

func TestMarshalNoBody(t *testing.T) {
	t.Parallel()

	_, err := new(OpMsg).MarshalBinary()
	assert.Error(t, err)
}

func TestOpMsgFlags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[]", OpMsgFlags(0).String())
	assert.Equal(t, "[checksumPresent, exhaustAllowed]", OpMsgFlags(OpMsgChecksumPresent|OpMsgExhaustAllowed).String())
	assert.Equal(t, "[moreToCome, bit3]", OpMsgFlags(OpMsgMoreToCome|1<<3).String())

	assert.True(t, OpMsgFlags(OpMsgMoreToCome).FlagSet(OpMsgMoreToCome))
	assert.False(t, OpMsgFlags(OpMsgMoreToCome).FlagSet(OpMsgChecksumPresent))
}
