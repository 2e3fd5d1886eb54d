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
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FerretDB/mongo-embedded/internal/capi"
	"github.com/FerretDB/mongo-embedded/internal/util/resource"
)

// Instance represents a database instance of the open Library.
type Instance struct {
	lib   *Library
	l     *zap.Logger
	token *resource.Token
	id    uuid.UUID

	// protects h; serializes instance_destroy and client_create
	m sync.Mutex
	h capi.Instance
}

// NewClient creates a new client of the instance.
func (inst *Instance) NewClient() (*Client, error) {
	if inst == nil {
		return nil, ErrInvalidState
	}

	inst.m.Lock()
	defer inst.m.Unlock()

	if inst.h == 0 {
		return nil, ErrInvalidState
	}

	lib := inst.lib

	var h capi.Client
	err := lib.call(context.Background(), "client_create", func(st capi.Status) bool {
		h = lib.gw.ClientCreate(inst.h, st)
		return h != 0
	})

	if err != nil {
		inst.l.Warn("Failed to create client", zap.Error(err))
		return nil, err
	}

	c := &Client{
		lib:   lib,
		token: resource.NewToken(),
		id:    uuid.New(),
		h:     h,
	}
	c.l = inst.l.With(zap.Stringer("client", c.id))
	resource.Track(c, c.token)

	lib.metrics.Handles.WithLabelValues("client").Inc()
	c.l.Debug("Client created")

	return c, nil
}

// Close destroys the instance.
//
// It fails, leaving the Instance open, if any Client is open;
// the error matches [ErrorDBClientsOpen].
// Closing a closed Instance returns [ErrInvalidState].
func (inst *Instance) Close() error {
	if inst == nil {
		return ErrInvalidState
	}

	inst.m.Lock()
	defer inst.m.Unlock()

	if inst.h == 0 {
		return ErrInvalidState
	}

	lib := inst.lib

	err := lib.call(context.Background(), "instance_destroy", func(st capi.Status) bool {
		return lib.gw.InstanceDestroy(inst.h, st) == capi.Success
	})

	if err != nil {
		inst.l.Warn("Failed to destroy instance", zap.Error(err))
		return err
	}

	inst.h = 0

	resource.Untrack(inst, inst.token)
	lib.metrics.Handles.WithLabelValues("instance").Dec()

	inst.l.Debug("Instance destroyed")

	return nil
}
