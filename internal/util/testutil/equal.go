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

package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// AssertEqualDocument asserts that two BSON documents are equal byte for byte.
//
// On failure, it reports the difference between their canonical Extended JSON forms.
func AssertEqualDocument(t testing.TB, expected, actual bson.Raw) bool {
	t.Helper()

	if bytes.Equal(expected, actual) {
		return true
	}

	expectedS, actualS, diff := diffDocuments(t, expected, actual)
	msg := fmt.Sprintf("Not equal: \nexpected: %s\nactual  : %s\n%s", expectedS, actualS, diff)

	return assert.Fail(t, msg)
}

// MarshalDocument marshals v to a BSON document, failing the test on error.
func MarshalDocument(t testing.TB, v any) bson.Raw {
	t.Helper()

	b, err := bson.Marshal(v)
	require.NoError(t, err)

	return b
}

// diffDocuments returns a readable form of given documents and the difference between them.
func diffDocuments(t testing.TB, expected, actual bson.Raw) (expectedS string, actualS string, diff string) {
	expectedB, err := bson.MarshalExtJSONIndent(expected, true, false, "", "  ")
	require.NoError(t, err)
	expectedS = string(expectedB)

	actualB, err := bson.MarshalExtJSONIndent(actual, true, false, "", "  ")
	require.NoError(t, err)
	actualS = string(actualB)

	diff, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expectedS),
		FromFile: "expected",
		B:        difflib.SplitLines(actualS),
		ToFile:   "actual",
		Context:  1,
	})
	require.NoError(t, err)

	return
}
