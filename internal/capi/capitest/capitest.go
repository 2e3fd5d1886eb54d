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

// Package capitest provides an in-memory fake of the native library for tests.
//
// The fake enforces the same lifecycle rules as the real engine
// (single library, instance limit, no destruction of parents with open children),
// and records how the binding uses it: status handles, output buffers, and concurrent invokes.
package capitest

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/cmem"
)

// Native error codes used by the fake.
const (
	errorENOMEM                    = 1
	errorException                 = 2
	errorLibraryAlreadyInitialized = 3
	errorInvalidLibHandle          = 5
	errorInvalidDBHandle           = 7
	errorHasDBHandlesOpen          = 8
	errorDBMaxOpen                 = 9
	errorDBClientsOpen             = 10
	errorInvalidClientHandle       = 11
)

// Operation names, used for failure injection and call counting.
const (
	OpLibInit         = "lib_init"
	OpLibFini         = "lib_fini"
	OpInstanceCreate  = "instance_create"
	OpInstanceDestroy = "instance_destroy"
	OpClientCreate    = "client_create"
	OpClientDestroy   = "client_destroy"
	OpClientInvoke    = "client_invoke"
)

// InvokeFunc handles a request and returns a response.
// An error is reported to the binding as a native exception.
type InvokeFunc func(input []byte) ([]byte, error)

// Echo is the default InvokeFunc; it returns a copy of the request.
func Echo(input []byte) ([]byte, error) {
	return append([]byte{}, input...), nil
}

// Failure is a native failure injected into the next call of an operation.
type Failure struct {
	Code        int32
	SubCode     int32
	Explanation string
}

// Stats is a snapshot of the fake's counters.
type Stats struct {
	Calls map[string]int

	StatusCreated         int
	StatusDestroyed       int
	StatusUseAfterDestroy int

	OutputsAllocated int
	OutputsFreed     int
	InvalidFrees     int

	// number of times two invokes ran concurrently on the same client
	ConcurrentInvokes int

	LiveLibs      int
	LiveInstances int
	LiveClients   int
}

type status struct {
	code        int32
	subCode     int32
	explanation string
	destroyed   bool
}

type lib struct {
	config    string
	logFlags  capi.LogFlags
	log       capi.LogFunc
	instances int
}

type instance struct {
	lib     capi.Lib
	config  string
	clients int
}

type client struct {
	instance capi.Instance
	inFlight int
}

// Gateway is a fake native library.
type Gateway struct {
	// MaxInstances is the number of instances a library may have open at once.
	MaxInstances int

	// Invoke handles client requests.
	Invoke InvokeFunc

	// AllocFailures is the number of next StatusCreate calls that return NULL.
	AllocFailures int

	m sync.Mutex

	nextHandle uintptr

	statuses  map[capi.Status]*status
	libs      map[capi.Lib]*lib
	instances map[capi.Instance]*instance
	clients   map[capi.Client]*client
	outputs   map[uintptr][]byte

	failures map[string]Failure
	panics   map[string]any

	stats Stats
}

// New creates a new fake native library.
func New() *Gateway {
	return &Gateway{
		MaxInstances: 1,
		Invoke:       Echo,
		nextHandle:   0x1000,
		statuses:     map[capi.Status]*status{},
		libs:         map[capi.Lib]*lib{},
		instances:    map[capi.Instance]*instance{},
		clients:      map[capi.Client]*client{},
		outputs:      map[uintptr][]byte{},
		failures:     map[string]Failure{},
		panics:       map[string]any{},
		stats: Stats{
			Calls: map[string]int{},
		},
	}
}

// FailNext makes the next call of op fail with the given status.
func (g *Gateway) FailNext(op string, f Failure) {
	g.m.Lock()
	defer g.m.Unlock()

	g.failures[op] = f
}

// PanicNext makes the next call of op panic with v before populating the status.
func (g *Gateway) PanicNext(op string, v any) {
	g.m.Lock()
	defer g.m.Unlock()

	g.panics[op] = v
}

// Stats returns a snapshot of counters.
func (g *Gateway) Stats() Stats {
	g.m.Lock()
	defer g.m.Unlock()

	res := g.stats
	res.Calls = make(map[string]int, len(g.stats.Calls))

	for k, v := range g.stats.Calls {
		res.Calls[k] = v
	}

	res.LiveLibs = len(g.libs)
	res.LiveInstances = len(g.instances)
	res.LiveClients = len(g.clients)

	return res
}

// Log emits a log record through the callback of every initialized library.
// It may be called from any goroutine.
func (g *Gateway) Log(message, component, context string, severity int32) {
	g.m.Lock()

	var fns []capi.LogFunc

	for _, l := range g.libs {
		if l.log != nil {
			fns = append(fns, l.log)
		}
	}

	g.m.Unlock()

	for _, fn := range fns {
		fn(message, component, context, severity)
	}
}

// newHandle returns a new unique handle value.
// It must be called with g.m held.
func (g *Gateway) newHandle() uintptr {
	g.nextHandle += 0x10
	return g.nextHandle
}

// maybePanic panics if a panic was injected into op.
// It must be called without g.m held.
func (g *Gateway) maybePanic(op string) {
	g.m.Lock()
	v, ok := g.panics[op]
	delete(g.panics, op)
	g.m.Unlock()

	if ok {
		panic(v)
	}
}

// begin counts the call of op and applies injected failures.
// It must be called with g.m held; it returns false if the call should fail.
func (g *Gateway) begin(op string, st capi.Status) bool {
	g.stats.Calls[op]++

	if f, ok := g.failures[op]; ok {
		delete(g.failures, op)
		g.fail(st, f.Code, f.SubCode, f.Explanation)

		return false
	}

	g.succeed(st)

	return true
}

// fail populates the status.
// It must be called with g.m held.
func (g *Gateway) fail(st capi.Status, code, subCode int32, explanation string) {
	s := g.statuses[st]
	if s == nil {
		return
	}

	if s.destroyed {
		g.stats.StatusUseAfterDestroy++
		return
	}

	s.code, s.subCode, s.explanation = code, subCode, explanation
}

// code returns the error code stored in the status.
// It must be called with g.m held.
func (g *Gateway) code(st capi.Status) int32 {
	if s := g.statuses[st]; s != nil {
		return s.code
	}

	return errorException
}

// succeed resets the status.
// It must be called with g.m held.
func (g *Gateway) succeed(st capi.Status) {
	g.fail(st, capi.Success, 0, "")
}

// StatusCreate implements capi.Gateway.
func (g *Gateway) StatusCreate() capi.Status {
	g.m.Lock()
	defer g.m.Unlock()

	if g.AllocFailures > 0 {
		g.AllocFailures--
		return 0
	}

	h := capi.Status(g.newHandle())
	g.statuses[h] = new(status)
	g.stats.StatusCreated++

	return h
}

// StatusDestroy implements capi.Gateway.
func (g *Gateway) StatusDestroy(st capi.Status) {
	g.m.Lock()
	defer g.m.Unlock()

	s := g.statuses[st]
	if s == nil || s.destroyed {
		g.stats.StatusUseAfterDestroy++
		return
	}

	s.destroyed = true
	g.stats.StatusDestroyed++
}

// read returns the live status or nil.
// It must be called with g.m held.
func (g *Gateway) read(st capi.Status) *status {
	s := g.statuses[st]
	if s == nil || s.destroyed {
		g.stats.StatusUseAfterDestroy++
		return nil
	}

	return s
}

// StatusGetError implements capi.Gateway.
func (g *Gateway) StatusGetError(st capi.Status) int32 {
	g.m.Lock()
	defer g.m.Unlock()

	if s := g.read(st); s != nil {
		return s.code
	}

	return -2
}

// StatusGetExplanation implements capi.Gateway.
func (g *Gateway) StatusGetExplanation(st capi.Status) string {
	g.m.Lock()
	defer g.m.Unlock()

	if s := g.read(st); s != nil {
		return s.explanation
	}

	return ""
}

// StatusGetCode implements capi.Gateway.
func (g *Gateway) StatusGetCode(st capi.Status) int32 {
	g.m.Lock()
	defer g.m.Unlock()

	if s := g.read(st); s != nil {
		return s.subCode
	}

	return 0
}

// LibInit implements capi.Gateway.
func (g *Gateway) LibInit(params *capi.InitParams, st capi.Status) capi.Lib {
	g.maybePanic(OpLibInit)

	g.m.Lock()

	if !g.begin(OpLibInit, st) {
		g.m.Unlock()
		return 0
	}

	if len(g.libs) > 0 {
		g.fail(st, errorLibraryAlreadyInitialized, 0, "The Embedded MongoDB library is already initialized")
		g.m.Unlock()

		return 0
	}

	l := new(lib)
	if params != nil {
		l.config = params.YAMLConfig
		l.logFlags = params.LogFlags

		if params.LogFlags&capi.LogCallback != 0 {
			l.log = params.LogHandler
		}
	}

	h := capi.Lib(g.newHandle())
	g.libs[h] = l
	g.m.Unlock()

	if l.log != nil {
		l.log("library initialized", "CONTROL", "embedded", -1)
	}

	return h
}

// LibFini implements capi.Gateway.
func (g *Gateway) LibFini(h capi.Lib, st capi.Status) int32 {
	g.maybePanic(OpLibFini)

	g.m.Lock()
	defer g.m.Unlock()

	if !g.begin(OpLibFini, st) {
		return g.code(st)
	}

	l := g.libs[h]
	if l == nil {
		g.fail(st, errorInvalidLibHandle, 0, "Library handle is invalid")
		return errorInvalidLibHandle
	}

	if l.instances > 0 {
		g.fail(st, errorHasDBHandlesOpen, 0, "Cannot close library with open instances")
		return errorHasDBHandlesOpen
	}

	delete(g.libs, h)

	return capi.Success
}

// InstanceCreate implements capi.Gateway.
func (g *Gateway) InstanceCreate(lh capi.Lib, yamlConfig string, st capi.Status) capi.Instance {
	g.maybePanic(OpInstanceCreate)

	g.m.Lock()

	if !g.begin(OpInstanceCreate, st) {
		g.m.Unlock()
		return 0
	}

	l := g.libs[lh]
	if l == nil {
		g.fail(st, errorInvalidLibHandle, 0, "Library handle is invalid")
		g.m.Unlock()

		return 0
	}

	if l.instances >= g.MaxInstances {
		g.fail(st, errorDBMaxOpen, 0, "The maximum number of instances is open")
		g.m.Unlock()

		return 0
	}

	l.instances++

	h := capi.Instance(g.newHandle())
	g.instances[h] = &instance{lib: lh, config: yamlConfig}
	log := l.log
	g.m.Unlock()

	if log != nil {
		log("instance created", "STORAGE", "embedded", 1)
	}

	return h
}

// InstanceDestroy implements capi.Gateway.
func (g *Gateway) InstanceDestroy(h capi.Instance, st capi.Status) int32 {
	g.maybePanic(OpInstanceDestroy)

	g.m.Lock()
	defer g.m.Unlock()

	if !g.begin(OpInstanceDestroy, st) {
		return g.code(st)
	}

	inst := g.instances[h]
	if inst == nil {
		g.fail(st, errorInvalidDBHandle, 0, "Database handle is invalid")
		return errorInvalidDBHandle
	}

	if inst.clients > 0 {
		g.fail(st, errorDBClientsOpen, 0, "Cannot close instance with open clients")
		return errorDBClientsOpen
	}

	g.libs[inst.lib].instances--
	delete(g.instances, h)

	return capi.Success
}

// ClientCreate implements capi.Gateway.
func (g *Gateway) ClientCreate(ih capi.Instance, st capi.Status) capi.Client {
	g.maybePanic(OpClientCreate)

	g.m.Lock()
	defer g.m.Unlock()

	if !g.begin(OpClientCreate, st) {
		return 0
	}

	inst := g.instances[ih]
	if inst == nil {
		g.fail(st, errorInvalidDBHandle, 0, "Database handle is invalid")
		return 0
	}

	inst.clients++

	h := capi.Client(g.newHandle())
	g.clients[h] = &client{instance: ih}

	return h
}

// ClientDestroy implements capi.Gateway.
func (g *Gateway) ClientDestroy(h capi.Client, st capi.Status) int32 {
	g.maybePanic(OpClientDestroy)

	g.m.Lock()
	defer g.m.Unlock()

	if !g.begin(OpClientDestroy, st) {
		return g.code(st)
	}

	c := g.clients[h]
	if c == nil {
		g.fail(st, errorInvalidClientHandle, 0, "Client handle is invalid")
		return errorInvalidClientHandle
	}

	g.instances[c.instance].clients--
	delete(g.clients, h)

	return capi.Success
}

// ClientInvoke implements capi.Gateway.
//
// The InvokeFunc runs without holding the fake's lock, so invokes on different clients run concurrently.
func (g *Gateway) ClientInvoke(h capi.Client, input []byte, st capi.Status) (capi.Output, int32) {
	g.maybePanic(OpClientInvoke)

	g.m.Lock()

	if !g.begin(OpClientInvoke, st) {
		code := g.code(st)
		g.m.Unlock()

		return capi.Output{}, code
	}

	c := g.clients[h]
	if c == nil {
		g.fail(st, errorInvalidClientHandle, 0, "Client handle is invalid")
		g.m.Unlock()

		return capi.Output{}, errorInvalidClientHandle
	}

	c.inFlight++
	if c.inFlight > 1 {
		g.stats.ConcurrentInvokes++
	}

	invoke := g.Invoke
	g.m.Unlock()

	// the native side must not keep the input
	in := append([]byte{}, input...)
	out, err := invoke(in)

	g.m.Lock()
	defer g.m.Unlock()

	c.inFlight--

	if err != nil {
		g.fail(st, errorException, 0, err.Error())
		return capi.Output{}, errorException
	}

	// empty outputs still have a valid pointer
	buf, err := cmem.Alloc(len(out))
	if err != nil {
		g.fail(st, errorENOMEM, 0, err.Error())
		return capi.Output{}, errorENOMEM
	}

	copy(buf, out)

	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	g.outputs[ptr] = buf
	g.stats.OutputsAllocated++

	return capi.Output{Ptr: ptr, Len: len(buf)}, capi.Success
}

// FreeOutput implements capi.Gateway.
func (g *Gateway) FreeOutput(h capi.Client, output capi.Output) {
	g.m.Lock()
	defer g.m.Unlock()

	buf, ok := g.outputs[output.Ptr]
	if !ok {
		g.stats.InvalidFrees++
		return
	}

	delete(g.outputs, output.Ptr)
	g.stats.OutputsFreed++

	// unmapped pages make use-after-free fault
	if err := cmem.Free(buf); err != nil {
		panic(err)
	}
}

// LibConfig returns the configuration passed to the only initialized library.
func (g *Gateway) LibConfig() (string, capi.LogFlags, error) {
	g.m.Lock()
	defer g.m.Unlock()

	for _, l := range g.libs {
		return l.config, l.logFlags, nil
	}

	return "", 0, errors.New("capitest: library is not initialized")
}

// InstanceConfigs returns configurations of open instances.
func (g *Gateway) InstanceConfigs() []string {
	g.m.Lock()
	defer g.m.Unlock()

	res := make([]string, 0, len(g.instances))
	for _, inst := range g.instances {
		res = append(res, inst.config)
	}

	return res
}

// String implements fmt.Stringer.
func (g *Gateway) String() string {
	s := g.Stats()
	return fmt.Sprintf(
		"capitest.Gateway{libs: %d, instances: %d, clients: %d, outputs: %d}",
		s.LiveLibs, s.LiveInstances, s.LiveClients, s.OutputsAllocated-s.OutputsFreed,
	)
}

// check interfaces
var (
	_ capi.Gateway = (*Gateway)(nil)
	_ fmt.Stringer = (*Gateway)(nil)
)
