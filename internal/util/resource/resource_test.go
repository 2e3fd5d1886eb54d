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

package resource

import (
	"runtime"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedHandle struct {
	token *Token
}

type otherHandle struct {
	token *Token
}

// runGC forces several GC cycles to give the runtime a chance to run cleanups.
func runGC() {
	for range 8 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func count(obj any) int {
	if p := pprof.Lookup(profileName(obj)); p != nil {
		return p.Count()
	}

	return 0
}

func TestTrack(t *testing.T) {
	t.Parallel()

	obj := &otherHandle{token: NewToken()}
	Track(obj, obj.token)

	assert.Equal(t, 1, count(obj))

	runGC()
	runtime.KeepAlive(obj)
	assert.Equal(t, 1, count(obj), "object is still reachable")

	Untrack(obj, obj.token)
	assert.Equal(t, 0, count(obj))

	assert.NotPanics(t, func() { Untrack(obj, obj.token) }, "second Untrack is a no-op")
}

func TestLeakReported(t *testing.T) {
	t.Parallel()

	reported := make(chan string, 1)

	token := NewToken()
	token.report = func(msg string) { reported <- msg }

	func() {
		obj := &trackedHandle{token: token}
		Track(obj, obj.token)
	}()

	var msg string

	require.Eventually(t, func() bool {
		runtime.GC()

		select {
		case msg = <-reported:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, msg, "*resource.trackedHandle has not been closed or released")
}

func TestCheckArgs(t *testing.T) {
	t.Parallel()

	type noToken struct {
		x int
	}

	assert.Panics(t, func() { Track(&noToken{}, NewToken()) })

	obj := &otherHandle{token: NewToken()}
	assert.Panics(t, func() { Track(obj, NewToken()) }, "token must be the object's field")
	assert.Panics(t, func() { Track(obj, nil) })
}
