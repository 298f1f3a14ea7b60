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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

// sessionResolver resolves a sessionId to the Session record describing
// where the sandbox lives, and creates a fresh session when an agent
// invocation arrives with none.
type sessionResolver interface {
	resolve(ctx context.Context, sessionID string) (*types.Session, error)
	createAgentSession(ctx context.Context, namespace, name string) (*types.Session, error)
}

// controlPlaneResolver implements sessionResolver by calling the
// Control-Plane's HTTP API, with a TTL cache in front so a hot session
// doesn't hit the Control-Plane on every proxied request.
type controlPlaneResolver struct {
	baseURL    string
	httpClient *http.Client
	cache      endpointCache
	cacheTTL   time.Duration
}

func newControlPlaneResolver(baseURL string, cache endpointCache, cacheTTL time.Duration) *controlPlaneResolver {
	return &controlPlaneResolver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (r *controlPlaneResolver) resolve(ctx context.Context, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, "session id is required")
	}

	if sess, ok := r.cache.get(ctx, sessionID); ok {
		return sess, nil
	}

	url := fmt.Sprintf("%s/v1/code-interpreter/sessions/%s", r.baseURL, sessionID)
	sess, err := r.getSession(ctx, url)
	if err != nil {
		return nil, err
	}

	r.cache.set(ctx, sessionID, sess, r.cacheTTL)
	return sess, nil
}

func (r *controlPlaneResolver) getSession(ctx context.Context, url string) (*types.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("router: build control-plane request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "control-plane unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("router: read control-plane response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var sess types.Session
		if err := json.Unmarshal(body, &sess); err != nil {
			return nil, fmt.Errorf("router: decode control-plane response: %w", err)
		}
		return &sess, nil
	case http.StatusNotFound:
		return nil, agentcubeapi.New(agentcubeapi.KindNotFound, "unknown session")
	default:
		return nil, agentcubeapi.New(agentcubeapi.KindProvider, fmt.Sprintf("control-plane returned status %d", resp.StatusCode))
	}
}

// createAgentSession calls the Control-Plane's createAgentRuntime
// operation to mint a brand-new session for the first call in an
// agent-invocation flow: a call without a session header returns a
// fresh session id.
func (r *controlPlaneResolver) createAgentSession(ctx context.Context, namespace, name string) (*types.Session, error) {
	reqBody, err := json.Marshal(map[string]any{
		"name":      name,
		"namespace": namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("router: marshal create-session body: %w", err)
	}

	url := r.baseURL + "/v1/agent-runtime"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("router: build create-session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "control-plane unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("router: read create-session response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, agentcubeapi.New(agentcubeapi.KindProvider, fmt.Sprintf("control-plane returned status %d creating session", resp.StatusCode))
	}

	var created struct {
		SessionID string `json:"sessionId"`
		Endpoint  string `json:"endpoint"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("router: decode create-session response: %w", err)
	}
	if created.SessionID == "" {
		return nil, agentcubeapi.New(agentcubeapi.KindProvider, "control-plane returned empty session id")
	}

	sess := &types.Session{
		SessionID: created.SessionID,
		Kind:      types.AgentRuntimeKind,
		Namespace: namespace,
		Endpoint:  created.Endpoint,
		Status:    created.Status,
	}
	r.cache.set(ctx, sess.SessionID, sess, r.cacheTTL)
	return sess, nil
}
