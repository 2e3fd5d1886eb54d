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
	"fmt"

	"go.mongodb.org/mongo-driver/x/mongo/driver/wiremessage"
)

// OpMsgFlagBit integer is a bitmask encoding flags that modify the format and behavior of OpMsg.
type OpMsgFlagBit flagBit

const (
	// OpMsgChecksumPresent indicates that there is a CRC-32C checksum in a message.
	OpMsgChecksumPresent = OpMsgFlagBit(wiremessage.ChecksumPresent)

	// OpMsgMoreToCome indicates that there is another message coming, no need to do anything for it.
	OpMsgMoreToCome = OpMsgFlagBit(wiremessage.MoreToCome)

	// OpMsgExhaustAllowed indicates that client can handle multiple replies.
	OpMsgExhaustAllowed = OpMsgFlagBit(wiremessage.ExhaustAllowed)
)

// String implements fmt.Stringer.
func (bit OpMsgFlagBit) String() string {
	switch bit {
	case OpMsgChecksumPresent:
		return "checksumPresent"
	case OpMsgMoreToCome:
		return "moreToCome"
	case OpMsgExhaustAllowed:
		return "exhaustAllowed"
	default:
		return unknownBitString(flagBit(bit))
	}
}

// OpMsgFlags is a set of OpMsg flag bits.
type OpMsgFlags flags

func opMsgFlagBitStringer(bit flagBit) string {
	return OpMsgFlagBit(bit).String()
}

// String returns OpMsgFlags as a string.
func (f OpMsgFlags) String() string {
	return flags(f).string(opMsgFlagBitStringer)
}

// FlagSet check if flag is set.
func (f OpMsgFlags) FlagSet(bit OpMsgFlagBit) bool {
	return f&OpMsgFlags(bit) != 0
}

// check interfaces
var (
	_ fmt.Stringer = OpMsgFlagBit(0)
	_ fmt.Stringer = OpMsgFlags(0)
)
