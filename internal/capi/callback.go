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

//go:build ((darwin || freebsd || linux) && (amd64 || arm64)) || windows

package capi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// Log handlers are dispatched by the id passed as log_user_data,
// so a single callback trampoline serves every library initialization.
// purego callbacks are never freed.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr

	handlers      sync.Map // uintptr -> LogFunc
	lastHandlerID atomic.Uintptr
)

// logCallback returns the pointer to the native log callback trampoline.
func logCallback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = purego.NewCallback(logTrampoline)
	})

	return callbackPtr
}

// registerLogHandler stores h and returns its id.
func registerLogHandler(h LogFunc) uintptr {
	id := lastHandlerID.Add(1)
	handlers.Store(id, h)

	return id
}

// unregisterLogHandler removes the handler with the given id.
func unregisterLogHandler(id uintptr) {
	handlers.Delete(id)
}

// logTrampoline is called by the native side for every log record:
//
//	void (*)(void* user_data, const char* message, const char* component, const char* context, int severity)
//
// Severity is received as uintptr and truncated: the upper half of the register is unspecified.
func logTrampoline(userData, message, component, context, severity uintptr) uintptr {
	v, ok := handlers.Load(userData)
	if !ok {
		return 0
	}

	// panics must not unwind through native frames
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("Log handler panicked", zap.String("panic", fmt.Sprint(p)))
		}
	}()

	v.(LogFunc)(goString(message), goString(component), goString(context), int32(severity))

	return 0
}
