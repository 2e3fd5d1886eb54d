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

// Package wire provides OP_MSG framing of commands exchanged with the embedded engine.
package wire

import (
	"fmt"
	"math/bits"
	"strings"
)

// flagBit is a single bit of a flags bitmask.
type flagBit uint32

// flags is a bitmask of message flags.
type flags uint32

// string returns a list of set bits formatted by the given stringer.
func (f flags) string(bitStringer func(flagBit) string) string {
	if f == 0 {
		return "[]"
	}

	res := make([]string, 0, bits.OnesCount32(uint32(f)))

	for f != 0 {
		bit := flagBit(1 << bits.TrailingZeros32(uint32(f)))
		res = append(res, bitStringer(bit))
		f &^= flags(bit)
	}

	return "[" + strings.Join(res, ", ") + "]"
}

// unknownBitString returns a string representation of an unknown bit.
func unknownBitString(bit flagBit) string {
	return fmt.Sprintf("bit%d", bits.TrailingZeros32(uint32(bit)))
}
