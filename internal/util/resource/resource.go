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

// Package resource tracks lifetimes of objects that own native handles.
//
// Every tracked object is visible in a pprof profile named after its type
// until it is untracked. If a tracked object becomes unreachable
// without being untracked, the leak is reported to the global zap logger
// at DPanic level; development loggers panic there.
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/FerretDB/mongo-embedded/internal/util/debugbuild"
)

// Token is a field of a tracked object, holding the cleanup handle and the leak message.
type Token struct {
	h      atomic.Pointer[runtime.Cleanup]
	report func(string)
	msg    string
}

// reportLeak logs a leaked object.
func reportLeak(msg string) {
	zap.L().DPanic(msg)
}

// NewToken returns a new Token.
func NewToken() *Token {
	return &Token{
		report: reportLeak,
	}
}

// profilesM protects creation of profiles.
var profilesM sync.Mutex

// profileName returns pprof profile name for the given object.
func profileName(obj any) string {
	return "FerretDB/mongo-embedded/" + reflect.TypeOf(obj).Elem().String()
}

// profile returns the existing or new pprof profile for obj.
func profile(obj any) *pprof.Profile {
	name := profileName(obj)

	if p := pprof.Lookup(name); p != nil {
		return p
	}

	profilesM.Lock()
	defer profilesM.Unlock()

	// a concurrent call might have created a profile already
	if p := pprof.Lookup(name); p != nil {
		return p
	}

	return pprof.NewProfile(name)
}

// Track tracks the lifetime of an object until Untrack is called on it.
//
// Obj should be a pointer to a struct with a field "token" of type *Token.
func Track[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	// add token instead of obj itself,
	// otherwise the profile keeps obj reachable and cleanup never runs
	profile(obj).Add(token, 1)

	token.msg = fmt.Sprintf("%T has not been closed or released", obj)
	if stack := debugbuild.Stack(); stack != nil {
		token.msg += "\nObject created by " + string(stack)
	}

	h := runtime.AddCleanup(obj, func(t *Token) { t.report(t.msg) }, token)
	token.h.Store(&h)
}

// Untrack stops tracking the lifetime of an object.
//
// It is safe to call this function multiple times concurrently.
func Untrack[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	h := token.h.Swap(nil)
	if h == nil {
		return
	}

	h.Stop()

	p := pprof.Lookup(profileName(obj))
	if p == nil {
		panic("object is not tracked")
	}

	p.Remove(token)
}

// checkArgs checks Track and Untrack arguments.
func checkArgs(obj any, token *Token) {
	if obj == nil {
		panic("obj must not be nil")
	}

	if token == nil {
		panic("token must not be nil")
	}

	pv := reflect.ValueOf(obj)
	if pv.Kind() != reflect.Ptr || pv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("obj must be a pointer to struct, got %T", obj))
	}

	f := pv.Elem().FieldByName("token")
	if f.Kind() != reflect.Ptr || f.UnsafePointer() != unsafe.Pointer(token) {
		panic("token must be a pointer field of a struct")
	}
}
