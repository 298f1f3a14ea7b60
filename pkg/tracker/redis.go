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
	"encoding/json"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/agentcube/agentcube/pkg/common/types"
)

// RedisTracker persists the sessionId -> resource map in Redis so a
// Control-Plane restart does not lose track of live resources. Each
// session is one Redis Hash keyed by resource kind, with the resource
// namespace+name JSON-encoded as the hash field's value.
type RedisTracker struct {
	cli    *redisv9.Client
	prefix string
}

// NewRedis builds a RedisTracker over an already-constructed client, so
// callers can share a connection pool with other components.
func NewRedis(cli *redisv9.Client) *RedisTracker {
	return &RedisTracker{cli: cli, prefix: "tracker:"}
}

func (r *RedisTracker) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisTracker) Track(ctx context.Context, sessionID string, resource types.SandboxResource) error {
	b, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("tracker: marshal resource: %w", err)
	}
	if err := r.cli.HSet(ctx, r.key(sessionID), string(resource.Kind), b).Err(); err != nil {
		return fmt.Errorf("tracker: redis HSET failed: %w", err)
	}
	return nil
}

func (r *RedisTracker) GetResources(ctx context.Context, sessionID string) ([]types.SandboxResource, error) {
	fields, err := r.cli.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker: redis HGETALL failed: %w", err)
	}
	return decodeResources(fields)
}

func (r *RedisTracker) Release(ctx context.Context, sessionID string) ([]types.SandboxResource, error) {
	key := r.key(sessionID)

	fields, err := r.cli.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker: redis HGETALL failed: %w", err)
	}
	resources, err := decodeResources(fields)
	if err != nil {
		return nil, err
	}

	if err := r.cli.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("tracker: redis DEL failed: %w", err)
	}
	return resources, nil
}

func (r *RedisTracker) Close() error {
	return r.cli.Close()
}

func decodeResources(fields map[string]string) ([]types.SandboxResource, error) {
	if len(fields) == 0 {
		return []types.SandboxResource{}, nil
	}
	out := make([]types.SandboxResource, 0, len(fields))
	for _, raw := range fields {
		var res types.SandboxResource
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("tracker: unmarshal resource: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}
