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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FerretDB/mongo-embedded/internal/util/logging"
)

// LogRecord is a log line emitted by the native library.
type LogRecord struct {
	Message   string
	Component string
	Context   string

	// Severity is -4 (severe) to -1 (info), 0 (log), and 1 to 5 for debug levels.
	Severity int32
}

// Level returns the zap level that corresponds to the record's severity.
func (r LogRecord) Level() zapcore.Level {
	return logging.NativeLevel(r.Severity)
}

// logHandler receives native log records for a single Library.
//
// It is safe for concurrent use; it must not call back into lifecycle operations.
type logHandler struct {
	l       *zap.Logger
	level   zapcore.Level
	onLog   func(LogRecord)
	metrics *Metrics
}

// handle implements [capi.LogFunc].
func (h *logHandler) handle(message, component, context string, severity int32) {
	h.metrics.LogRecords.WithLabelValues(logging.SeverityName(severity)).Inc()

	r := LogRecord{
		Message:   message,
		Component: component,
		Context:   context,
		Severity:  severity,
	}

	lvl := r.Level()
	if lvl < h.level {
		return
	}

	if h.onLog != nil {
		h.onLog(r)
	}

	if ce := h.l.Check(lvl, message); ce != nil {
		ce.Write(
			zap.String("component", component),
			zap.String("context", context),
			zap.Int32("severity", severity),
		)
	}
}
