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

	"github.com/valkey-io/valkey-go"

	"github.com/agentcube/agentcube/pkg/common/types"
)

// ValkeyTracker is the Valkey-backed alternative to RedisTracker, for
// deployments that standardize on a Valkey cluster instead of Redis.
type ValkeyTracker struct {
	cli    valkey.Client
	prefix string
}

// NewValkey builds a ValkeyTracker over an already-constructed client.
func NewValkey(cli valkey.Client) *ValkeyTracker {
	return &ValkeyTracker{cli: cli, prefix: "tracker:"}
}

func (v *ValkeyTracker) key(sessionID string) string {
	return v.prefix + sessionID
}

func (v *ValkeyTracker) Track(ctx context.Context, sessionID string, resource types.SandboxResource) error {
	b, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("tracker: marshal resource: %w", err)
	}
	cmd := v.cli.B().Hset().Key(v.key(sessionID)).FieldValue().FieldValue(string(resource.Kind), string(b)).Build()
	if err := v.cli.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("tracker: valkey HSET failed: %w", err)
	}
	return nil
}

func (v *ValkeyTracker) GetResources(ctx context.Context, sessionID string) ([]types.SandboxResource, error) {
	fields, err := v.cli.Do(ctx, v.cli.B().Hgetall().Key(v.key(sessionID)).Build()).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("tracker: valkey HGETALL failed: %w", err)
	}
	return decodeResources(fields)
}

func (v *ValkeyTracker) Release(ctx context.Context, sessionID string) ([]types.SandboxResource, error) {
	key := v.key(sessionID)

	fields, err := v.cli.Do(ctx, v.cli.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("tracker: valkey HGETALL failed: %w", err)
	}
	resources, err := decodeResources(fields)
	if err != nil {
		return nil, err
	}

	if err := v.cli.Do(ctx, v.cli.B().Del().Key(key).Build()).Error(); err != nil {
		return nil, fmt.Errorf("tracker: valkey DEL failed: %w", err)
	}
	return resources, nil
}

func (v *ValkeyTracker) Close() error {
	v.cli.Close()
	return nil
}
