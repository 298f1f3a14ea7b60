/*
Copyright The Volcano Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tracker is the authoritative record of which cluster resources
// belong to which session. It is consulted on delete instead of
// re-scanning the cluster.
package tracker

import (
	"context"
	"sync"

	"github.com/agentcube/agentcube/pkg/common/types"
)

// Tracker maps a sessionId to the set of cluster resources created on its
// behalf. Track, GetResources and Release together form the full contract.
type Tracker interface {
	// Track records that a resource of the given kind/name/namespace
	// belongs to sessionID. Tracking the same kind twice for a session
	// overwrites the prior name.
	Track(ctx context.Context, sessionID string, resource types.SandboxResource) error
	// GetResources returns a copy of the resources tracked for sessionID.
	// Callers must not be able to mutate tracker state through the
	// returned slice.
	GetResources(ctx context.Context, sessionID string) ([]types.SandboxResource, error)
	// Release removes sessionID from the tracker and returns the
	// resources it had, so the caller can clean them up. A session with
	// no tracked resources returns an empty slice, not an error.
	Release(ctx context.Context, sessionID string) ([]types.SandboxResource, error)
	// Close releases any resources held by the tracker (connections,
	// background goroutines).
	Close() error
}

// memTracker is the in-memory tracker: a single mutex guards a
// sessionID -> (kind -> resource) map.
type memTracker struct {
	mu    sync.Mutex
	bySID map[string]map[types.SandboxResourceKind]types.SandboxResource
}

// NewInMemory builds the default, single-process Tracker.
func NewInMemory() Tracker {
	return &memTracker{
		bySID: make(map[string]map[types.SandboxResourceKind]types.SandboxResource),
	}
}

func (m *memTracker) Track(_ context.Context, sessionID string, resource types.SandboxResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind, ok := m.bySID[sessionID]
	if !ok {
		byKind = make(map[types.SandboxResourceKind]types.SandboxResource)
		m.bySID[sessionID] = byKind
	}
	byKind[resource.Kind] = resource
	return nil
}

func (m *memTracker) GetResources(_ context.Context, sessionID string) ([]types.SandboxResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return copyResources(m.bySID[sessionID]), nil
}

func (m *memTracker) Release(_ context.Context, sessionID string) ([]types.SandboxResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := m.bySID[sessionID]
	delete(m.bySID, sessionID)
	return copyResources(byKind), nil
}

func (m *memTracker) Close() error { return nil }

func copyResources(byKind map[types.SandboxResourceKind]types.SandboxResource) []types.SandboxResource {
	if len(byKind) == 0 {
		return []types.SandboxResource{}
	}
	out := make([]types.SandboxResource, 0, len(byKind))
	for _, r := range byKind {
		out = append(out, r)
	}
	return out
}
