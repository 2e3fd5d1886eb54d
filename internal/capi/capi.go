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

// Package capi provides the foreign-function boundary to the embedded engine's native library.
//
// It performs no policy: it only declares native entry points, their argument layout,
// and library resolution. Lifecycle rules, status translation, and locking live in the embedded package.
// Gateway is implemented by the purego-based native library binding and by the capitest fake.
package capi

import "unsafe"

// Opaque native handles.
type (
	// Status is a mongo_embedded_v1_status*.
	Status uintptr

	// Lib is a mongo_embedded_v1_lib*.
	Lib uintptr

	// Instance is a mongo_embedded_v1_instance*.
	Instance uintptr

	// Client is a mongo_embedded_v1_client*.
	Client uintptr
)

// Success is the result code of a successful native call.
const Success = 0

// LogFlags is a bitmask of native log destinations.
type LogFlags uint64

// Native log destinations.
const (
	LogNone     LogFlags = 0
	LogStdout   LogFlags = 1
	LogCallback LogFlags = 4
)

// LogFunc receives native log records.
//
// It may be called from any thread at any time while the library is initialized,
// and must not call back into lifecycle entry points.
type LogFunc func(message, component, context string, severity int32)

// InitParams contains library initialization parameters.
type InitParams struct {
	YAMLConfig string
	LogFlags   LogFlags

	// LogHandler is used only if LogFlags contains LogCallback.
	LogHandler LogFunc
}

// Output is a response buffer allocated by the native side.
//
// It stays valid until it is passed to Gateway.FreeOutput.
type Output struct {
	Ptr uintptr
	Len int
}

// Bytes returns the contents of the buffer without copying.
func (o Output) Bytes() []byte {
	if o.Ptr == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(o.Ptr)), o.Len)
}

// Gateway is the set of native entry points.
//
// Fallible entry points report failure with a zero handle or a non-zero result code,
// and fill the given status with details.
type Gateway interface {
	StatusCreate() Status
	StatusDestroy(status Status)
	StatusGetError(status Status) int32
	StatusGetExplanation(status Status) string
	StatusGetCode(status Status) int32

	LibInit(params *InitParams, status Status) Lib
	LibFini(lib Lib, status Status) int32

	InstanceCreate(lib Lib, yamlConfig string, status Status) Instance
	InstanceDestroy(instance Instance, status Status) int32

	ClientCreate(instance Instance, status Status) Client
	ClientDestroy(client Client, status Status) int32

	// ClientInvoke reads input only for the duration of the call.
	ClientInvoke(client Client, input []byte, status Status) (Output, int32)

	// FreeOutput releases the buffer returned by ClientInvoke for the same client.
	FreeOutput(client Client, output Output)
}
