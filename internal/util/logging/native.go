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

package logging

import (
	"strconv"

	"go.uber.org/zap/zapcore"
)

// Native log severities as reported by the engine's log callback.
//
// Positive values are debug levels 1-5.
const (
	SeveritySevere  = -4
	SeverityError   = -3
	SeverityWarning = -2
	SeverityInfo    = -1
	SeverityLog     = 0
)

// NativeLevel maps native severity to zap level.
func NativeLevel(severity int32) zapcore.Level {
	switch {
	case severity <= SeverityError:
		// not DPanic: development loggers would panic inside the native callback
		return zapcore.ErrorLevel
	case severity == SeverityWarning:
		return zapcore.WarnLevel
	case severity == SeverityInfo, severity == SeverityLog:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// SeverityName returns a short name of native severity, used as a metric label.
func SeverityName(severity int32) string {
	switch {
	case severity <= SeveritySevere:
		return "severe"
	case severity == SeverityError:
		return "error"
	case severity == SeverityWarning:
		return "warning"
	case severity == SeverityInfo:
		return "info"
	case severity == SeverityLog:
		return "log"
	default:
		return "debug" + strconv.Itoa(int(severity))
	}
}
