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

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionCreateRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		req       SessionCreateRequest
		wantError bool
		errorMsg  string
	}{
		{
			name: "valid code interpreter request",
			req: SessionCreateRequest{
				Kind:       CodeInterpreterKind,
				Namespace:  "default",
				TTLSeconds: 900,
			},
		},
		{
			name: "valid agent runtime request",
			req: SessionCreateRequest{
				Kind:       AgentRuntimeKind,
				Namespace:  "default",
				TTLSeconds: 60,
			},
		},
		{
			name:      "invalid kind",
			req:       SessionCreateRequest{Kind: "Bogus", Namespace: "default", TTLSeconds: 60},
			wantError: true,
			errorMsg:  "invalid kind",
		},
		{
			name:      "missing namespace",
			req:       SessionCreateRequest{Kind: CodeInterpreterKind, TTLSeconds: 60},
			wantError: true,
			errorMsg:  "namespace is required",
		},
		{
			name:      "negative ttl",
			req:       SessionCreateRequest{Kind: CodeInterpreterKind, Namespace: "default", TTLSeconds: -1},
			wantError: true,
			errorMsg:  "ttl must not be negative",
		},
		{
			name: "port out of range",
			req: SessionCreateRequest{
				Kind: CodeInterpreterKind, Namespace: "default", TTLSeconds: 60,
				Template: &PodTemplateSpec{ContainerPort: 70000},
			},
			wantError: true,
			errorMsg:  "containerPort out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitEntrypoint(t *testing.T) {
	tests := []struct {
		name       string
		entrypoint string
		wantCmd    string
		wantArgs   []string
	}{
		{name: "empty", entrypoint: "", wantCmd: "", wantArgs: nil},
		{name: "single token", entrypoint: "bash", wantCmd: "bash", wantArgs: nil},
		{name: "command and args", entrypoint: "python3 -u main.py --flag", wantCmd: "python3", wantArgs: []string{"-u", "main.py", "--flag"}},
		{name: "extra whitespace collapses", entrypoint: "  bash   -c  ", wantCmd: "bash", wantArgs: []string{"-c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := SplitEntrypoint(tt.entrypoint)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, s.Expired(now))

	s2 := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s2.Expired(now))

	s3 := &Session{}
	assert.False(t, s3.Expired(now))
}
