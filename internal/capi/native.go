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
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// cInitParams is mongo_embedded_v1_init_params.
// Field order matches the C declaration.
type cInitParams struct {
	yamlConfig  uintptr // const char*
	logFlags    uint64  // uint64_t
	logCallback uintptr // mongo_embedded_v1_log_callback
	logUserData uintptr // void*
}

// native implements Gateway by calling the loaded shared library.
type native struct {
	path string

	statusCreate         func() uintptr
	statusDestroy        func(status uintptr)
	statusGetError       func(status uintptr) int32
	statusGetExplanation func(status uintptr) uintptr
	statusGetCode        func(status uintptr) int32

	libInit func(params unsafe.Pointer, status uintptr) uintptr
	libFini func(lib, status uintptr) int32

	instanceCreate  func(lib uintptr, yamlConfig string, status uintptr) uintptr
	instanceDestroy func(instance, status uintptr) int32

	clientCreate  func(instance, status uintptr) uintptr
	clientDestroy func(client, status uintptr) int32
	clientInvoke  func(
		client uintptr,
		input unsafe.Pointer, // const void*
		size uintptr, // size_t
		output unsafe.Pointer, // void**
		outputSize unsafe.Pointer, // size_t*
		status uintptr,
	) int32

	// nil if the library keeps output buffers owned by the client
	clientOutputFree func(client, output uintptr)

	// Lib -> log handler id
	logHandlers sync.Map
}

var (
	loadedM sync.Mutex
	loaded  = map[string]*native{}
)

// Load resolves and binds the native library once per process and path.
//
// The name selects both the file name and the prefix of entry points;
// if it is empty, MongoEmbedded is used.
// If dir is empty, the platform's library search path is used.
func Load(dir, name string) (Gateway, error) {
	if name == "" {
		name = MongoEmbedded
	}

	path := LibraryFileName(name)
	if dir != "" {
		path = filepath.Join(dir, path)
	}

	loadedM.Lock()
	defer loadedM.Unlock()

	if n := loaded[path]; n != nil {
		return n, nil
	}

	handle, err := open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	n := &native{path: path}

	for _, s := range []struct {
		fn       string
		fptr     any
		optional bool
	}{
		{"status_create", &n.statusCreate, false},
		{"status_destroy", &n.statusDestroy, false},
		{"status_get_error", &n.statusGetError, false},
		{"status_get_explanation", &n.statusGetExplanation, false},
		{"status_get_code", &n.statusGetCode, false},
		{"lib_init", &n.libInit, false},
		{"lib_fini", &n.libFini, false},
		{"instance_create", &n.instanceCreate, false},
		{"instance_destroy", &n.instanceDestroy, false},
		{"client_create", &n.clientCreate, false},
		{"client_destroy", &n.clientDestroy, false},
		{"client_invoke", &n.clientInvoke, false},
		{"client_output_free", &n.clientOutputFree, true},
	} {
		symbol := symbolName(name, s.fn)

		addr, err := sym(handle, symbol)
		if err != nil {
			if s.optional {
				continue
			}

			return nil, &LoadError{Path: path, Symbol: symbol, Err: err}
		}

		purego.RegisterFunc(s.fptr, addr)
	}

	loaded[path] = n

	return n, nil
}

// StatusCreate implements Gateway.
func (n *native) StatusCreate() Status {
	return Status(n.statusCreate())
}

// StatusDestroy implements Gateway.
func (n *native) StatusDestroy(status Status) {
	n.statusDestroy(uintptr(status))
}

// StatusGetError implements Gateway.
func (n *native) StatusGetError(status Status) int32 {
	return n.statusGetError(uintptr(status))
}

// StatusGetExplanation implements Gateway.
func (n *native) StatusGetExplanation(status Status) string {
	return goString(n.statusGetExplanation(uintptr(status)))
}

// StatusGetCode implements Gateway.
func (n *native) StatusGetCode(status Status) int32 {
	return n.statusGetCode(uintptr(status))
}

// LibInit implements Gateway.
func (n *native) LibInit(params *InitParams, status Status) Lib {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	var c cInitParams
	var handlerID uintptr

	if params != nil {
		if params.YAMLConfig != "" {
			config := cString(params.YAMLConfig)
			pinner.Pin(&config[0])
			c.yamlConfig = uintptr(unsafe.Pointer(&config[0]))
		}

		c.logFlags = uint64(params.LogFlags)

		if params.LogFlags&LogCallback != 0 {
			if params.LogHandler == nil {
				c.logFlags &^= uint64(LogCallback)
			} else {
				handlerID = registerLogHandler(params.LogHandler)
				c.logCallback = logCallback()
				c.logUserData = handlerID
			}
		}
	}

	lib := n.libInit(unsafe.Pointer(&c), uintptr(status))

	if handlerID != 0 {
		if lib == 0 {
			unregisterLogHandler(handlerID)
		} else {
			n.logHandlers.Store(Lib(lib), handlerID)
		}
	}

	return Lib(lib)
}

// LibFini implements Gateway.
func (n *native) LibFini(lib Lib, status Status) int32 {
	rc := n.libFini(uintptr(lib), uintptr(status))

	// the native side may call the handler until lib_fini succeeds
	if rc == Success {
		if id, ok := n.logHandlers.LoadAndDelete(lib); ok {
			unregisterLogHandler(id.(uintptr))
		}
	}

	return rc
}

// InstanceCreate implements Gateway.
func (n *native) InstanceCreate(lib Lib, yamlConfig string, status Status) Instance {
	return Instance(n.instanceCreate(uintptr(lib), yamlConfig, uintptr(status)))
}

// InstanceDestroy implements Gateway.
func (n *native) InstanceDestroy(instance Instance, status Status) int32 {
	return n.instanceDestroy(uintptr(instance), uintptr(status))
}

// ClientCreate implements Gateway.
func (n *native) ClientCreate(instance Instance, status Status) Client {
	return Client(n.clientCreate(uintptr(instance), uintptr(status)))
}

// ClientDestroy implements Gateway.
func (n *native) ClientDestroy(client Client, status Status) int32 {
	return n.clientDestroy(uintptr(client), uintptr(status))
}

// ClientInvoke implements Gateway.
func (n *native) ClientInvoke(client Client, input []byte, status Status) (Output, int32) {
	var in unsafe.Pointer
	if len(input) > 0 {
		in = unsafe.Pointer(&input[0])
	}

	var out, outSize uintptr

	rc := n.clientInvoke(
		uintptr(client),
		in,
		uintptr(len(input)),
		unsafe.Pointer(&out),
		unsafe.Pointer(&outSize),
		uintptr(status),
	)
	runtime.KeepAlive(input)

	if rc != Success {
		return Output{}, rc
	}

	return Output{Ptr: out, Len: int(outSize)}, rc
}

// FreeOutput implements Gateway.
func (n *native) FreeOutput(client Client, output Output) {
	if n.clientOutputFree == nil || output.Ptr == 0 {
		return
	}

	n.clientOutputFree(uintptr(client), output.Ptr)
}

// check interfaces
var (
	_ Gateway = (*native)(nil)
)
