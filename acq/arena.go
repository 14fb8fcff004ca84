// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Arena owns the live controllers, keyed by opaque session handles.
// Callers of the service layer only ever see handles; each controller
// itself remains single threaded.
type Arena struct {
	mu   sync.RWMutex
	ctls map[uuid.UUID]*Controller
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{ctls: make(map[uuid.UUID]*Controller)}
}

// Add registers a controller and returns its handle.
func (a *Arena) Add(ctl *Controller) uuid.UUID {
	id := uuid.New()
	a.mu.Lock()
	a.ctls[id] = ctl
	a.mu.Unlock()
	return id
}

// Get resolves a handle.
func (a *Arena) Get(id uuid.UUID) (*Controller, bool) {
	a.mu.RLock()
	ctl, ok := a.ctls[id]
	a.mu.RUnlock()
	return ctl, ok
}

// Remove drops a handle. The controller is not closed.
func (a *Arena) Remove(id uuid.UUID) {
	a.mu.Lock()
	delete(a.ctls, id)
	a.mu.Unlock()
}

// IDs returns the registered handles in stable order.
func (a *Arena) IDs() []uuid.UUID {
	a.mu.RLock()
	ids := make([]uuid.UUID, 0, len(a.ctls))
	for id := range a.ctls {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}
