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
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentcube/agentcube/pkg/common/types"
)

// endpointCache resolves a sessionId to a cached *types.Session, bounded
// by a TTL. Implementations must be safe for concurrent use.
type endpointCache interface {
	get(ctx context.Context, sessionID string) (*types.Session, bool)
	set(ctx context.Context, sessionID string, sess *types.Session, ttl time.Duration)
	invalidate(ctx context.Context, sessionID string)
}

// memoryEndpointCache is the default backend: an in-process map guarded
// by a mutex, with lazy expiry on read.
type memoryEndpointCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	session   *types.Session
	expiresAt time.Time
}

func newMemoryEndpointCache() *memoryEndpointCache {
	return &memoryEndpointCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *memoryEndpointCache) get(_ context.Context, sessionID string) (*types.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, sessionID)
		return nil, false
	}
	sessCopy := *entry.session
	return &sessCopy, true
}

func (c *memoryEndpointCache) set(_ context.Context, sessionID string, sess *types.Session, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessCopy := *sess
	c.entries[sessionID] = memoryCacheEntry{session: &sessCopy, expiresAt: time.Now().Add(ttl)}
}

func (c *memoryEndpointCache) invalidate(_ context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// redisEndpointCache stores resolved sessions in Redis with a native
// key TTL, so the cache survives Router restarts and is shared across
// Router replicas.
type redisEndpointCache struct {
	client *redis.Client
}

func newRedisEndpointCache(addr string) *redisEndpointCache {
	return &redisEndpointCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func cacheKey(sessionID string) string {
	return "agentcube:router:session:" + sessionID
}

func (c *redisEndpointCache) get(ctx context.Context, sessionID string) (*types.Session, bool) {
	raw, err := c.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}
	var sess types.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false
	}
	return &sess, true
}

func (c *redisEndpointCache) set(ctx context.Context, sessionID string, sess *types.Session, ttl time.Duration) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(sessionID), raw, ttl)
}

func (c *redisEndpointCache) invalidate(ctx context.Context, sessionID string) {
	c.client.Del(ctx, cacheKey(sessionID))
}
