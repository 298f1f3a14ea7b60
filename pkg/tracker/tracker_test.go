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

package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/common/types"
)

func TestMemTracker_TrackAndGet(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()

	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourceConfigMap, Name: "cm-1", Namespace: "ns"}))

	got, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemTracker_GetResources_NoAliasing(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))

	got, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	got[0].Name = "mutated"

	again, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "pod-1", again[0].Name, "mutating a returned copy must not affect tracker state")
}

func TestMemTracker_TrackOverwritesSameKind(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1-recreated", Namespace: "ns"}))

	got, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pod-1-recreated", got[0].Name)
}

func TestMemTracker_Release(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourceService, Name: "svc-1", Namespace: "ns"}))

	released, err := tr.Release(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, released, 2)

	remaining, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestMemTracker_ReleaseUnknownSession(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()

	released, err := tr.Release(ctx, "never-tracked")
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestMemTracker_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	tr := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := "sess-concurrent"
			_ = tr.Track(ctx, sid, types.SandboxResource{Kind: types.ResourcePod, Name: "pod", Namespace: "ns"})
			_, _ = tr.GetResources(ctx, sid)
		}(i)
	}
	wg.Wait()
}
