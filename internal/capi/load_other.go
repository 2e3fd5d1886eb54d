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

//go:build !(((darwin || freebsd || linux) && (amd64 || arm64)) || windows)

package capi

import (
	"errors"
	"path/filepath"
)

// Load always fails: native callbacks are not available on this platform.
func Load(dir, name string) (Gateway, error) {
	if name == "" {
		name = MongoEmbedded
	}

	path := LibraryFileName(name)
	if dir != "" {
		path = filepath.Join(dir, path)
	}

	return nil, &LoadError{Path: path, Err: errors.ErrUnsupported}
}
