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
	"testing"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/common/types"
)

func newTestRedisTracker(t *testing.T) *RedisTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedis(redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()}))
}

func TestRedisTracker_TrackAndGet(t *testing.T) {
	ctx := context.Background()
	tr := newTestRedisTracker(t)

	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourceService, Name: "svc-1", Namespace: "ns"}))

	got, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRedisTracker_GetResources_Empty(t *testing.T) {
	ctx := context.Background()
	tr := newTestRedisTracker(t)

	got, err := tr.GetResources(ctx, "never-tracked")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisTracker_Release(t *testing.T) {
	ctx := context.Background()
	tr := newTestRedisTracker(t)

	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))

	released, err := tr.Release(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, released, 1)

	remaining, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRedisTracker_TrackOverwritesSameKind(t *testing.T) {
	ctx := context.Background()
	tr := newTestRedisTracker(t)

	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1", Namespace: "ns"}))
	require.NoError(t, tr.Track(ctx, "sess-1", types.SandboxResource{Kind: types.ResourcePod, Name: "pod-1-recreated", Namespace: "ns"}))

	got, err := tr.GetResources(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pod-1-recreated", got[0].Name)
}
