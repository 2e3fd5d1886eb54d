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

// Package embedded runs a MongoDB-compatible database engine in-process
// through the mongo_embedded v1 native library.
//
// The native library is resolved at run time without cgo.
// A process may have at most one open [Library]; it may have [Instance]s,
// and each Instance may have [Client]s that exchange wire protocol messages with the engine.
// Handles must be closed in reverse order of creation.
package embedded

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/logging"
	"github.com/FerretDB/mongo-embedded/internal/util/resource"
)

// tracerName is the instrumentation name of spans started by this package.
const tracerName = "github.com/FerretDB/mongo-embedded/embedded"

// Native library names for [Options].LibraryName.
const (
	MongoEmbedded  = capi.MongoEmbedded
	MongerEmbedded = capi.MongerEmbedded
)

// Options represents Library options.
type Options struct {
	// Config is the engine configuration passed to the native library as is,
	// typically a YAML or JSON document.
	Config string

	// Directory containing the native library.
	// If empty, the system library search path is used.
	LibraryPath string

	// Name of the native library; it determines both the file name
	// (for example, libmongo_embedded.so) and the prefix of its entry points.
	// [MongoEmbedded] by default; use [MongerEmbedded] for monger builds.
	LibraryName string

	// Minimal level of native log records forwarded to Logger and OnLog.
	// Info by default.
	LogLevel zapcore.Level

	// If true, the native library also writes its log to the standard output.
	LogStdout bool

	// If true, native log records are not delivered to the process at all.
	DisableLogCallback bool

	// OnLog, if set, receives native log records at LogLevel and above.
	// It may be called from any goroutine and must not open or close handles.
	// Records may be delivered synchronously from inside a native call
	// while the Library's locks are held, so such a call from OnLog deadlocks.
	OnLog func(LogRecord)

	// Logger to use; the global logger is used if nil.
	Logger *zap.Logger

	// Metrics to update; unregistered metrics are used if nil.
	Metrics *Metrics

	// TracerProvider to use; the global provider is used if nil.
	TracerProvider trace.TracerProvider

	// gateway replaces the native library in tests.
	gateway capi.Gateway
}

// libraries holds the only open Library of the process.
var libraries struct {
	m      sync.Mutex
	active *Library
}

// Library represents the initialized native library.
//
// It is a process-wide singleton: only one Library may be open at a time.
type Library struct {
	gw      capi.Gateway
	l       *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
	handler *logHandler
	token   *resource.Token
	id      uuid.UUID

	// protects h; serializes lib_fini and instance_create
	m sync.Mutex
	h capi.Lib
}

// Open resolves and initializes the native library.
//
// It returns [*LoadError] if the native library can't be resolved,
// and [ErrAlreadyInitialized] if another Library is open.
// If initialization fails, no Library remains open and Open may be called again.
func Open(opts *Options) (*Library, error) {
	if opts == nil {
		opts = new(Options)
	}

	gw := opts.gateway
	if gw == nil {
		var err error
		if gw, err = capi.Load(opts.LibraryPath, opts.LibraryName); err != nil {
			return nil, err
		}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	id := uuid.New()
	l := logging.Logger(opts.Logger, "embedded").With(zap.Stringer("library", id))

	libraries.m.Lock()
	defer libraries.m.Unlock()

	if libraries.active != nil {
		return nil, ErrAlreadyInitialized
	}

	handler := &logHandler{
		l:       l.Named("native"),
		level:   opts.LogLevel,
		onLog:   opts.OnLog,
		metrics: metrics,
	}

	params := &capi.InitParams{
		YAMLConfig: opts.Config,
	}

	if opts.LogStdout {
		params.LogFlags |= capi.LogStdout
	}

	if !opts.DisableLogCallback {
		params.LogFlags |= capi.LogCallback
		params.LogHandler = handler.handle
	}

	var h capi.Lib
	err := call(context.Background(), gw, "lib_init", func(st capi.Status) bool {
		h = gw.LibInit(params, st)
		return h != 0
	})
	metrics.observeCall("lib_init", err)

	if err != nil {
		l.Warn("Failed to initialize native library", zap.Error(err))
		return nil, err
	}

	lib := &Library{
		gw:      gw,
		l:       l,
		metrics: metrics,
		tracer:  tp.Tracer(tracerName),
		handler: handler,
		token:   resource.NewToken(),
		id:      id,
		h:       h,
	}
	resource.Track(lib, lib.token)

	libraries.active = lib
	metrics.Handles.WithLabelValues("library").Inc()

	l.Debug("Native library initialized", zap.Stringer("log_flags", logFlags(params.LogFlags)))

	return lib, nil
}

// call runs a fallible native operation and records its result
// in metrics and as an event of the span in ctx.
func (lib *Library) call(ctx context.Context, op string, fn func(st capi.Status) bool) error {
	err := call(ctx, lib.gw, op, fn)
	lib.metrics.observeCall(op, err)

	trace.SpanFromContext(ctx).AddEvent(op, trace.WithAttributes(attribute.Bool("embedded.error", err != nil)))

	return err
}

// NewInstance creates a new database instance with the given configuration.
//
// The native library limits the number of open instances;
// exceeding the limit returns an error matching [ErrorDBMaxOpen].
func (lib *Library) NewInstance(config string) (*Instance, error) {
	if lib == nil {
		return nil, ErrInvalidState
	}

	lib.m.Lock()
	defer lib.m.Unlock()

	if lib.h == 0 {
		return nil, ErrInvalidState
	}

	var h capi.Instance
	err := lib.call(context.Background(), "instance_create", func(st capi.Status) bool {
		h = lib.gw.InstanceCreate(lib.h, config, st)
		return h != 0
	})

	if err != nil {
		lib.l.Warn("Failed to create instance", zap.Error(err))
		return nil, err
	}

	inst := &Instance{
		lib:   lib,
		token: resource.NewToken(),
		id:    uuid.New(),
		h:     h,
	}
	inst.l = lib.l.With(zap.Stringer("instance", inst.id))
	resource.Track(inst, inst.token)

	lib.metrics.Handles.WithLabelValues("instance").Inc()
	inst.l.Debug("Instance created")

	return inst, nil
}

// Close finalizes the native library.
//
// It fails, leaving the Library open, if any Instance is open;
// the error matches [ErrorHasDBHandlesOpen].
// Closing a closed Library returns [ErrInvalidState].
// After a successful Close, [Open] may be called again.
func (lib *Library) Close() error {
	if lib == nil {
		return ErrInvalidState
	}

	libraries.m.Lock()
	defer libraries.m.Unlock()

	lib.m.Lock()
	defer lib.m.Unlock()

	if lib.h == 0 {
		return ErrInvalidState
	}

	err := lib.call(context.Background(), "lib_fini", func(st capi.Status) bool {
		return lib.gw.LibFini(lib.h, st) == capi.Success
	})

	if err != nil {
		lib.l.Warn("Failed to finalize native library", zap.Error(err))
		return err
	}

	lib.h = 0

	if libraries.active == lib {
		libraries.active = nil
	}

	resource.Untrack(lib, lib.token)
	lib.metrics.Handles.WithLabelValues("library").Dec()

	lib.l.Debug("Native library finalized")

	return nil
}

// logFlags formats native log flags for logging.
type logFlags capi.LogFlags

// String implements fmt.Stringer.
func (f logFlags) String() string {
	switch capi.LogFlags(f) {
	case capi.LogNone:
		return "none"
	case capi.LogStdout:
		return "stdout"
	case capi.LogCallback:
		return "callback"
	case capi.LogStdout | capi.LogCallback:
		return "stdout,callback"
	default:
		return "unknown"
	}
}
