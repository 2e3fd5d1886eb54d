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

import "runtime"

// Native library names.
// Entry points of a library are prefixed with its name and the API version.
const (
	MongoEmbedded  = "mongo_embedded"
	MongerEmbedded = "monger_embedded"
)

// LibraryFileName returns the platform file name of the native library with the given name.
func LibraryFileName(name string) string {
	switch runtime.GOOS {
	case "darwin":
		return "lib" + name + ".dylib"
	case "windows":
		return name + ".dll"
	default:
		return "lib" + name + ".so"
	}
}

// symbolName returns the name of the entry point fn exported by the library with the given name.
func symbolName(name, fn string) string {
	return name + "_v1_" + fn
}

// SearchPathVariable returns the environment variable used by the platform loader
// to find shared libraries.
func SearchPathVariable() string {
	switch runtime.GOOS {
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	case "windows":
		return "PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}
