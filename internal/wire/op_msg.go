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
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-driver/x/mongo/driver/wiremessage"

	"github.com/FerretDB/mongo-embedded/internal/util/lazyerrors"
	"github.com/FerretDB/mongo-embedded/internal/util/must"
)

// Section kinds.
const (
	SectionBody     = byte(wiremessage.SingleDocument)
	SectionSequence = byte(wiremessage.DocumentSequence)
)

// castagnoli is the CRC-32C table used for OP_MSG checksums.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// OpMsgSection is one section of an OpMsg.
type OpMsgSection struct {
	Kind byte

	// Identifier is set only for SectionSequence.
	Identifier string

	// Documents contains exactly one document for SectionBody.
	Documents []bson.Raw
}

// OpMsg is an OP_MSG message with its header fields.
type OpMsg struct {
	RequestID  int32
	ResponseTo int32
	Flags      OpMsgFlags
	Sections   []OpMsgSection
}

// NewCommand returns a new OpMsg with the given command and the "$db" field.
//
// cmd is anything that go.mongodb.org/mongo-driver/bson can marshal to a document,
// typically [bson.D]. It must not contain "$db".
func NewCommand(db string, cmd any) (*OpMsg, error) {
	if db == "" {
		return nil, lazyerrors.New("database name is empty")
	}

	doc, err := bson.Marshal(cmd)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if len(doc) == 5 {
		return nil, lazyerrors.New("command document is empty")
	}

	if _, err = bson.Raw(doc).LookupErr("$db"); err == nil {
		return nil, lazyerrors.New(`command document already contains "$db"`)
	}

	idx, body := bsoncore.ReserveLength(nil)
	body = append(body, doc[4:len(doc)-1]...)
	body = bsoncore.AppendStringElement(body, "$db", db)
	body = append(body, 0x00)
	body = bsoncore.UpdateLength(body, idx, int32(len(body[idx:])))

	return &OpMsg{
		RequestID: wiremessage.NextRequestID(),
		Sections: []OpMsgSection{{
			Kind:      SectionBody,
			Documents: []bson.Raw{body},
		}},
	}, nil
}

// Body returns the document of the only body section.
func (msg *OpMsg) Body() (bson.Raw, error) {
	var res bson.Raw

	for _, s := range msg.Sections {
		if s.Kind != SectionBody {
			continue
		}

		if res != nil {
			return nil, lazyerrors.New("multiple body sections")
		}

		if l := len(s.Documents); l != 1 {
			return nil, lazyerrors.Errorf("%d documents in body section", l)
		}

		res = s.Documents[0]
	}

	if res == nil {
		return nil, lazyerrors.New("no body section")
	}

	return res, nil
}

// Command returns the command name, that is the first field of the body document.
func (msg *OpMsg) Command() string {
	body, err := msg.Body()
	if err != nil {
		return ""
	}

	e, err := body.IndexErr(0)
	if err != nil {
		return ""
	}

	return e.Key()
}

// MarshalBinary returns the wire representation of msg including the message header.
//
// If OpMsgChecksumPresent is set, the checksum is computed.
func (msg *OpMsg) MarshalBinary() ([]byte, error) {
	if _, err := msg.Body(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	idx, b := wiremessage.AppendHeaderStart(nil, msg.RequestID, msg.ResponseTo, wiremessage.OpMsg)
	b = wiremessage.AppendMsgFlags(b, wiremessage.MsgFlag(msg.Flags))

	for _, s := range msg.Sections {
		switch s.Kind {
		case SectionBody:
			b = wiremessage.AppendMsgSectionType(b, wiremessage.SingleDocument)
			b = append(b, s.Documents[0]...)

		case SectionSequence:
			b = wiremessage.AppendMsgSectionType(b, wiremessage.DocumentSequence)

			var sidx int32
			sidx, b = bsoncore.ReserveLength(b)
			b = append(b, s.Identifier...)
			b = append(b, 0x00)

			for _, doc := range s.Documents {
				b = append(b, doc...)
			}

			b = bsoncore.UpdateLength(b, sidx, int32(len(b[sidx:])))

		default:
			return nil, lazyerrors.Errorf("kind is %d", s.Kind)
		}
	}

	if !msg.Flags.FlagSet(OpMsgChecksumPresent) {
		return bsoncore.UpdateLength(b, idx, int32(len(b[idx:]))), nil
	}

	b = bsoncore.UpdateLength(b, idx, int32(len(b[idx:])+4))
	b = binary.LittleEndian.AppendUint32(b, crc32.Checksum(b, castagnoli))

	return b, nil
}

// ReadOpMsg parses the wire representation of OP_MSG including the message header.
//
// Documents of the returned message reference b; they must be copied before b is released.
func ReadOpMsg(b []byte) (*OpMsg, error) {
	length, requestID, responseTo, opcode, rem, ok := wiremessage.ReadHeader(b)
	if !ok {
		return nil, lazyerrors.Errorf("message is too short: %d bytes", len(b))
	}

	if int(length) != len(b) {
		return nil, lazyerrors.Errorf("message length is %d, got %d bytes", length, len(b))
	}

	if opcode != wiremessage.OpMsg {
		return nil, lazyerrors.Errorf("unexpected opcode %s", opcode)
	}

	f, rem, ok := wiremessage.ReadMsgFlags(rem)
	if !ok {
		return nil, lazyerrors.New("no flags")
	}

	msg := &OpMsg{
		RequestID:  requestID,
		ResponseTo: responseTo,
		Flags:      OpMsgFlags(f),
	}

	if msg.Flags.FlagSet(OpMsgChecksumPresent) {
		if len(rem) < 4 {
			return nil, lazyerrors.New("no checksum")
		}

		expected := binary.LittleEndian.Uint32(b[len(b)-4:])
		if actual := crc32.Checksum(b[:len(b)-4], castagnoli); actual != expected {
			return nil, lazyerrors.Errorf("checksum mismatch: expected %#08x, got %#08x", expected, actual)
		}

		rem = rem[:len(rem)-4]
	}

	for len(rem) > 0 {
		var kind wiremessage.SectionType

		if kind, rem, ok = wiremessage.ReadMsgSectionType(rem); !ok {
			return nil, lazyerrors.New("no section kind")
		}

		switch kind {
		case wiremessage.SingleDocument:
			var doc bsoncore.Document

			if doc, rem, ok = wiremessage.ReadMsgSectionSingleDocument(rem); !ok {
				return nil, lazyerrors.New("malformed body section")
			}

			msg.Sections = append(msg.Sections, OpMsgSection{
				Kind:      SectionBody,
				Documents: []bson.Raw{bson.Raw(doc)},
			})

		case wiremessage.DocumentSequence:
			var id string
			var docs []bsoncore.Document

			if id, docs, rem, ok = wiremessage.ReadMsgSectionDocumentSequence(rem); !ok {
				return nil, lazyerrors.New("malformed document sequence section")
			}

			s := OpMsgSection{
				Kind:       SectionSequence,
				Identifier: id,
				Documents:  make([]bson.Raw, len(docs)),
			}

			for i, doc := range docs {
				s.Documents[i] = bson.Raw(doc)
			}

			msg.Sections = append(msg.Sections, s)

		default:
			return nil, lazyerrors.Errorf("kind is %d", kind)
		}
	}

	for _, s := range msg.Sections {
		for _, doc := range s.Documents {
			if err := doc.Validate(); err != nil {
				return nil, lazyerrors.Error(err)
			}
		}
	}

	if _, err := msg.Body(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return msg, nil
}

// String returns a string representation for logging.
func (msg *OpMsg) String() string {
	if msg == nil {
		return "<nil>"
	}

	m := map[string]any{
		"RequestID":  msg.RequestID,
		"ResponseTo": msg.ResponseTo,
		"FlagBits":   msg.Flags.String(),
	}

	sections := make([]map[string]any, len(msg.Sections))
	for i, section := range msg.Sections {
		s := map[string]any{
			"Kind": section.Kind,
		}

		docs := make([]string, len(section.Documents))
		for j, doc := range section.Documents {
			docs[j] = doc.String()
		}

		switch section.Kind {
		case SectionBody:
			if len(docs) == 1 {
				s["Document"] = docs[0]
			}
		case SectionSequence:
			s["Identifier"] = section.Identifier
			s["Documents"] = docs
		}

		sections[i] = s
	}

	m["Sections"] = sections

	return string(must.NotFail(json.MarshalIndent(m, "", "  ")))
}
