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

// Package logging provides logging helpers.
package logging

import "go.uber.org/zap"

// Logger returns l named for the given component, falling back to the global logger.
//
// Embedding applications often initialize the global logger in their main functions,
// so it is resolved at call time rather than at init time.
func Logger(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.L()
	}

	return l.Named(name)
}
