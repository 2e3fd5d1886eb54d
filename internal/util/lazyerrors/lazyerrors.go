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

// Package lazyerrors wraps errors with the location of the wrapping call.
//
// It is used for errors that are not expected to be handled programmatically
// beyond [errors.Is] and [errors.As]; the location helps to find where
// a native call failed without a full stack trace.
package lazyerrors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// located is an error with the program counter of the wrapping call.
type located struct {
	err error
	pc  uintptr
}

// Error implements error interface.
func (e *located) Error() string {
	loc := location(e.pc)
	if loc == "" {
		return "[unknown] " + e.err.Error()
	}

	return "[" + loc + "] " + e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *located) Unwrap() error {
	return e.err
}

// New returns a new error with the given text and the caller's location.
func New(s string) error {
	return &located{err: errors.New(s), pc: caller()}
}

// Error wraps err with the caller's location. err must not be nil.
func Error(err error) error {
	if err == nil {
		panic("lazyerrors.Error: err is nil")
	}

	return &located{err: err, pc: caller()}
}

// Errorf returns a formatted error with the caller's location.
// Use %w to keep the wrapped error visible to [errors.Is] and [errors.As].
func Errorf(format string, a ...any) error {
	return &located{err: fmt.Errorf(format, a...), pc: caller()}
}

// caller returns the program counter of the function that called New, Error, or Errorf.
func caller() uintptr {
	pcs := make([]uintptr, 1)

	// skip runtime.Callers, caller, and New/Error/Errorf
	if runtime.Callers(3, pcs) < 1 {
		return 0
	}

	return pcs[0]
}

// location formats pc as "file.go:line pkg.Func".
func location(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return ""
	}

	res := filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)

	if fn := f.Function; fn != "" {
		res += " " + fn[strings.LastIndex(fn, "/")+1:]
	}

	return res
}
