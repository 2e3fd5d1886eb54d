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
	"errors"
	"fmt"
	"strconv"

	"github.com/FerretDB/mongo-embedded/internal/capi"
)

// ErrorCode is a native error code reported through a status handle.
type ErrorCode int32

// Native error codes.
const (
	ErrorInReportingError          ErrorCode = -2
	ErrorUnknown                   ErrorCode = -1
	ErrorSuccess                   ErrorCode = 0
	ErrorENOMEM                    ErrorCode = 1
	ErrorException                 ErrorCode = 2
	ErrorLibraryAlreadyInitialized ErrorCode = 3
	ErrorLibraryNotInitialized     ErrorCode = 4
	ErrorInvalidLibHandle          ErrorCode = 5
	ErrorDBInitializationFailed    ErrorCode = 6
	ErrorInvalidDBHandle           ErrorCode = 7
	ErrorHasDBHandlesOpen          ErrorCode = 8
	ErrorDBMaxOpen                 ErrorCode = 9
	ErrorDBClientsOpen             ErrorCode = 10
	ErrorInvalidClientHandle       ErrorCode = 11
	ErrorReentrancyNotAllowed      ErrorCode = 12
)

var errorCodeNames = map[ErrorCode]string{
	ErrorInReportingError:          "InReportingError",
	ErrorUnknown:                   "Unknown",
	ErrorSuccess:                   "Success",
	ErrorENOMEM:                    "ENOMEM",
	ErrorException:                 "Exception",
	ErrorLibraryAlreadyInitialized: "LibraryAlreadyInitialized",
	ErrorLibraryNotInitialized:     "LibraryNotInitialized",
	ErrorInvalidLibHandle:          "InvalidLibHandle",
	ErrorDBInitializationFailed:    "DBInitializationFailed",
	ErrorInvalidDBHandle:           "InvalidDBHandle",
	ErrorHasDBHandlesOpen:          "HasDBHandlesOpen",
	ErrorDBMaxOpen:                 "DBMaxOpen",
	ErrorDBClientsOpen:             "DBClientsOpen",
	ErrorInvalidClientHandle:       "InvalidClientHandle",
	ErrorReentrancyNotAllowed:      "ReentrancyNotAllowed",
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}

	return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
}

// Error implements error interface, so codes can be used with [errors.Is].
func (c ErrorCode) Error() string {
	return c.String()
}

var (
	// ErrAlreadyInitialized is returned by Open while another Library is open.
	ErrAlreadyInitialized = errors.New("embedded: library is already initialized")

	// ErrInvalidState is returned when an operation is called on a closed
	// or never opened handle, or on a released response.
	ErrInvalidState = errors.New("embedded: invalid state")

	// ErrAllocation is returned when the native side fails to allocate memory.
	ErrAllocation = errors.New("embedded: allocation failed")
)

// LoadError is returned by Open when the native library can't be resolved.
type LoadError = capi.LoadError

// NativeError is a failure reported by the native library through a status handle.
//
// It is returned as is, without wrapping, so its message is the native explanation
// followed by error and sub-error codes.
type NativeError struct {
	// Op is the name of the native operation, e.g. "instance_destroy".
	Op string

	Code        ErrorCode
	SubCode     int32
	Explanation string
}

// Error implements error interface.
func (e *NativeError) Error() string {
	return fmt.Sprintf("%s (%d:%d)", e.Explanation, int32(e.Code), e.SubCode)
}

// Is matches native error codes and generic errors that correspond to them.
func (e *NativeError) Is(target error) bool {
	if code, ok := target.(ErrorCode); ok { //nolint:errorlint // target is never wrapped
		return e.Code == code
	}

	switch target {
	case ErrAlreadyInitialized:
		return e.Code == ErrorLibraryAlreadyInitialized
	case ErrAllocation:
		return e.Code == ErrorENOMEM
	case ErrInvalidState:
		switch e.Code { //nolint:exhaustive // only handle state errors
		case ErrorLibraryNotInitialized, ErrorInvalidLibHandle, ErrorInvalidDBHandle, ErrorInvalidClientHandle:
			return true
		}
	}

	return false
}

// check interfaces
var (
	_ error        = ErrorCode(0)
	_ fmt.Stringer = ErrorCode(0)
	_ error        = (*NativeError)(nil)
)
