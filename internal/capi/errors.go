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

package capi

import (
	"fmt"
	"path/filepath"
)

// LoadError is returned when the native library can't be resolved or bound.
type LoadError struct {
	// Path passed to the platform loader.
	Path string

	// Symbol is set when the library was loaded but does not export a required entry point.
	Symbol string

	Err error
}

// Error implements error interface.
func (e *LoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf(
			"native library %q does not export %s (%s); check that it is an embedded v1 build with the expected name",
			e.Path, e.Symbol, e.Err,
		)
	}

	return fmt.Sprintf(
		"failed to load native library %q: %s; "+
			"set LibraryPath to the directory containing %s, "+
			"or add that directory to the system library search path (%s)",
		e.Path, e.Err, filepath.Base(e.Path), SearchPathVariable(),
	)
}

// Unwrap returns the loader error.
func (e *LoadError) Unwrap() error {
	return e.Err
}
