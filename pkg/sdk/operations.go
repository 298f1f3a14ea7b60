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

package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

// ExecuteRequest mirrors the Daemon's POST /api/execute wire shape.
type ExecuteRequest struct {
	Command    []string          `json:"command"`
	Timeout    string            `json:"timeout,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// ExecuteResult mirrors the Daemon's execute response.
type ExecuteResult struct {
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	ExitCode int     `json:"exit_code"`
	Duration float64 `json:"duration"`
}

// Execute runs a command inside the sandbox and waits for it to finish.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	var result ExecuteResult
	if err := c.dataPlaneCall(ctx, http.MethodPost, "/api/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunCode wraps a code string into the platform's interpreter invocation
// for the given language and forwards it to Execute.
func (c *Client) RunCode(ctx context.Context, language, code string) (*ExecuteResult, error) {
	var command []string
	switch language {
	case "python", "python3":
		command = []string{"python3", "-c", code}
	case "bash", "sh":
		command = []string{"bash", "-c", code}
	default:
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, fmt.Sprintf("unsupported language %q", language))
	}
	return c.Execute(ctx, ExecuteRequest{Command: command})
}

// JupyterExecuteResult mirrors the Daemon's stateful-interpreter
// response shape.
type JupyterExecuteResult struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// RunCodeStateful runs code in the session's persistent interpreter
// process, so variables defined in one call are visible in the next.
func (c *Client) RunCodeStateful(ctx context.Context, code string) (*JupyterExecuteResult, error) {
	var result JupyterExecuteResult
	if err := c.dataPlaneCall(ctx, http.MethodPost, "/api/jupyter/execute", map[string]string{"code": code}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FileInfo mirrors the Daemon's upload/stat response shape.
type FileInfo struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Mode     string `json:"mode"`
	Modified string `json:"modified"`
}

// UploadFile writes content to path inside the sandbox workspace.
func (c *Client) UploadFile(ctx context.Context, path string, content []byte) (*FileInfo, error) {
	var info FileInfo
	body := map[string]string{"path": path, "content": encodeFileContent(content)}
	if err := c.dataPlaneCall(ctx, http.MethodPost, "/api/files", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadFile reads the raw bytes of a file inside the sandbox
// workspace.
func (c *Client) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newSignedRequest(ctx, http.MethodGet, "/api/files/"+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "sandbox unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdk: read download response: %w", err)
	}
	if resp.StatusCode >= 300 {
		dpErr := classifyDataPlaneStatus(resp.StatusCode)
		c.markFailedOnUnauthorized(dpErr)
		return nil, dpErr
	}
	return body, nil
}

// FileEntry mirrors a single member of a directory listing.
type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListFiles lists the contents of a directory inside the sandbox
// workspace.
func (c *Client) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	var result struct {
		Files []FileEntry `json:"files"`
	}
	if err := c.dataPlaneCall(ctx, http.MethodGet, "/api/files?path="+path, nil, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Invoke sends a raw payload to an Agent Runtime sandbox's HTTP surface
// and returns its raw response body.
func (c *Client) Invoke(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := c.newSignedRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "sandbox unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdk: read invoke response: %w", err)
	}
	if resp.StatusCode >= 300 {
		dpErr := classifyDataPlaneStatus(resp.StatusCode)
		c.markFailedOnUnauthorized(dpErr)
		return nil, dpErr
	}
	return body, nil
}

// dataPlaneCall issues a signed JSON request through the Router and
// decodes the JSON response into out.
func (c *Client) dataPlaneCall(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sdk: encode request body: %w", err)
		}
	}

	req, err := c.newSignedRequest(ctx, method, path, encoded)
	if err != nil {
		return err
	}
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "sandbox unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sdk: read sandbox response: %w", err)
	}
	if resp.StatusCode >= 300 {
		dpErr := classifyDataPlaneStatus(resp.StatusCode)
		c.markFailedOnUnauthorized(dpErr)
		return dpErr
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// invocationPrefix builds the Router's invocation route prefix for a
// session: CodeInterpreter sessions are reached through
// /v1/code-namespaces/{ns}/code-interpreters/{id} and AgentRuntime
// sessions through /v1/namespaces/{ns}/agent-runtimes/{id}. The route's
// :name segment is always the session id, since the Control-Plane
// normalizes a create request's Name (or a generated id) into the
// session id itself.
func invocationPrefix(sess *types.Session) (string, error) {
	switch sess.Kind {
	case types.CodeInterpreterKind:
		return fmt.Sprintf("/v1/code-namespaces/%s/code-interpreters/%s/invocations", sess.Namespace, sess.SessionID), nil
	case types.AgentRuntimeKind:
		return fmt.Sprintf("/v1/namespaces/%s/agent-runtimes/%s/invocations", sess.Namespace, sess.SessionID), nil
	default:
		return "", agentcubeapi.New(agentcubeapi.KindConfiguration, fmt.Sprintf("unknown session kind %q", sess.Kind))
	}
}

// newSignedRequest builds an HTTP request carrying a freshly-signed
// bearer JWT: each call signs a fresh token. path is the data-plane path
// the Daemon itself will see (e.g. "/api/execute" or
// "/api/files?path=foo"), not the Router's invocation-prefixed route;
// the Router rewrites the proxied request back down to this same path
// before forwarding to the Daemon, so the digest must bind to it rather
// than to the prefixed URL actually dialed. A 401 transitions the client
// to Failed without retrying, per the state machine's explicit "do not
// retry" rule.
func (c *Client) newSignedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	c.mu.Lock()
	state := c.state
	sess := c.session
	signer := c.signer
	c.mu.Unlock()

	if state != StateLive {
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, fmt.Sprintf("client is not Live (state=%s)", state))
	}
	if sess == nil {
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, "client has no bound session")
	}

	prefix, err := invocationPrefix(sess)
	if err != nil {
		return nil, err
	}

	digestPath, digestQuery, _ := strings.Cut(path, "?")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.RouterURL+prefix+path, reader)
	if err != nil {
		return nil, fmt.Errorf("sdk: build request: %w", err)
	}
	req.Header.Set("x-agentcube-session-id", sess.SessionID)

	token, err := signer.SignRequest(method, digestPath, digestQuery, req.Header, body, c.config.RequestTTL)
	if err != nil {
		return nil, fmt.Errorf("sdk: sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func classifyDataPlaneStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return agentcubeapi.New(agentcubeapi.KindUnauthorized, "unauthorized")
	case http.StatusNotFound:
		return agentcubeapi.New(agentcubeapi.KindNotFound, "not found")
	case http.StatusBadGateway:
		return agentcubeapi.New(agentcubeapi.KindProvider, "sandbox unreachable")
	case http.StatusServiceUnavailable:
		return agentcubeapi.New(agentcubeapi.KindProvider, "sandbox not ready")
	case http.StatusTooManyRequests:
		return agentcubeapi.New(agentcubeapi.KindRateLimit, "rate limited")
	default:
		return agentcubeapi.New(agentcubeapi.KindResource, fmt.Sprintf("sandbox returned status %d", status))
	}
}

// markFailedOnUnauthorized transitions the client to Failed when the
// sandbox rejects a signed request: server-401 means Failed, do not
// retry.
func (c *Client) markFailedOnUnauthorized(err error) {
	if agentcubeapi.KindOf(err) != agentcubeapi.KindUnauthorized {
		return
	}
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
}
