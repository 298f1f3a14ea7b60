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

package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/common/types"
)

func TestMemoryEndpointCache_SetThenGet(t *testing.T) {
	cache := newMemoryEndpointCache()
	ctx := context.Background()
	sess := &types.Session{SessionID: "sess-1", Endpoint: "10.0.0.1:8080"}

	cache.set(ctx, "sess-1", sess, time.Minute)

	got, ok := cache.get(ctx, "sess-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:8080", got.Endpoint)
}

func TestMemoryEndpointCache_MissReturnsFalse(t *testing.T) {
	cache := newMemoryEndpointCache()
	_, ok := cache.get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestMemoryEndpointCache_ExpiresAfterTTL(t *testing.T) {
	cache := newMemoryEndpointCache()
	ctx := context.Background()
	sess := &types.Session{SessionID: "sess-1", Endpoint: "10.0.0.1:8080"}

	cache.set(ctx, "sess-1", sess, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := cache.get(ctx, "sess-1")
	assert.False(t, ok)
}

func TestMemoryEndpointCache_GetReturnsCopyNotSharedPointer(t *testing.T) {
	cache := newMemoryEndpointCache()
	ctx := context.Background()
	sess := &types.Session{SessionID: "sess-1", Endpoint: "10.0.0.1:8080"}
	cache.set(ctx, "sess-1", sess, time.Minute)

	got, _ := cache.get(ctx, "sess-1")
	got.Endpoint = "mutated"

	again, _ := cache.get(ctx, "sess-1")
	assert.Equal(t, "10.0.0.1:8080", again.Endpoint)
}

func TestMemoryEndpointCache_Invalidate(t *testing.T) {
	cache := newMemoryEndpointCache()
	ctx := context.Background()
	cache.set(ctx, "sess-1", &types.Session{SessionID: "sess-1"}, time.Minute)

	cache.invalidate(ctx, "sess-1")

	_, ok := cache.get(ctx, "sess-1")
	assert.False(t, ok)
}

func TestCacheKey_IsNamespaced(t *testing.T) {
	assert.Equal(t, "agentcube:router:session:sess-1", cacheKey("sess-1"))
}
