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

// Package sdk is the client composition over the Signed-Request Signer
// and the Control-Plane API: it owns per-session key generation,
// negotiates a session, and exposes execute/run-code/files/invoke as
// plain Go calls.
package sdk

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
	"github.com/agentcube/agentcube/pkg/signing"
)

// State is the client's lifecycle position in its state machine.
type State string

const (
	StateFresh         State = "Fresh"
	StateBootstrapping State = "Bootstrapping"
	StateLive          State = "Live"
	StateFailed        State = "Failed"
	StateClosed        State = "Closed"
)

const defaultRSAKeyBits = 2048

// Config configures a Client.
type Config struct {
	// ControlPlaneURL is the base URL of the Control-Plane API.
	ControlPlaneURL string
	// RouterURL is the base URL through which data-plane calls are sent.
	RouterURL string
	// HTTPClient is used for every outbound call; defaults to a 30s
	// timeout client when nil.
	HTTPClient *http.Client
	// RequestTTL bounds how long a signed request's JWT is valid.
	RequestTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = signing.MaxTTL
	}
}

// Client is a single sandbox session's handle, safe for concurrent use
// by multiple goroutines issuing calls against the same session.
type Client struct {
	config Config

	mu        sync.Mutex
	state     State
	session   *types.Session
	signer    *signing.Signer
	issuer    string // SDK is the issuer when it holds the private key itself
	ownedKey  bool   // true when this client generated the session key pair
}

// CreateCodeInterpreter creates a new Code Interpreter session, runs the
// bootstrap handshake via the Control-Plane, and returns a Live client.
// On bootstrap failure the server-side session is deleted before the
// error is returned.
func CreateCodeInterpreter(ctx context.Context, config Config, req types.SessionCreateRequest) (*Client, error) {
	return create(ctx, config, types.CodeInterpreterKind, req)
}

// CreateAgentRuntime creates a new Agent Runtime session.
func CreateAgentRuntime(ctx context.Context, config Config, req types.SessionCreateRequest) (*Client, error) {
	return create(ctx, config, types.AgentRuntimeKind, req)
}

func create(ctx context.Context, config Config, kind types.SessionKind, req types.SessionCreateRequest) (*Client, error) {
	config.setDefaults()
	req.Kind = kind

	c := &Client{config: config, state: StateBootstrapping}

	privateKey, err := rsa.GenerateKey(rand.Reader, defaultRSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("sdk: generate session key pair: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("sdk: marshal public key: %w", err)
	}
	req.PublicKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	endpoint := "/v1/code-interpreter"
	if kind == types.AgentRuntimeKind {
		endpoint = "/v1/agent-runtime"
	}

	var created struct {
		SessionID     string `json:"sessionId"`
		Endpoint      string `json:"endpoint"`
		Status        string `json:"status"`
		PrivateKeyPEM string `json:"sessionPrivateKey"`
	}
	if err := c.controlPlaneCall(ctx, http.MethodPost, endpoint, req, &created); err != nil {
		c.state = StateFailed
		return nil, err
	}

	c.session = &types.Session{SessionID: created.SessionID, Kind: kind, Namespace: req.Namespace, Endpoint: created.Endpoint, Status: created.Status}
	c.signer = signing.NewSigner(privateKey, created.SessionID)
	c.issuer = created.SessionID
	c.ownedKey = true

	// The Control-Plane already ran the bootstrap handshake as part of
	// CreateSession, installing this client's public key into the Daemon,
	// so reaching this point with no error means the session is already
	// Live. A failure anywhere above must still tear down the server-side
	// session it created.
	if err := c.verifySessionReachable(ctx); err != nil {
		c.state = StateFailed
		_ = c.deleteSession(context.Background())
		return nil, err
	}

	c.state = StateLive
	return c, nil
}

// Attach builds a client for an existing sessionId without creating a
// new session, entering Live directly. The caller must supply the
// session's private key PEM; Attach never re-derives or requests one.
func Attach(ctx context.Context, config Config, sessionID string, privateKeyPEM string) (*Client, error) {
	config.setDefaults()

	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, "invalid session private key PEM")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "parse session private key", err)
	}

	c := &Client{
		config: config,
		state:  StateBootstrapping,
		signer: signing.NewSigner(privateKey, sessionID),
		issuer: sessionID,
	}

	var sess types.Session
	if err := c.controlPlaneCall(ctx, http.MethodGet, "/v1/code-interpreter/sessions/"+sessionID, nil, &sess); err != nil {
		c.state = StateFailed
		return nil, err
	}
	c.session = &sess
	c.state = StateLive
	return c, nil
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the bound session's id.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.SessionID
}

// Close transitions the client to Closed. It does not delete the
// server-side session; the session outlives a single client handle
// until its TTL elapses or the caller explicitly deletes it via Delete.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// Delete deletes the server-side session and closes the client.
func (c *Client) Delete(ctx context.Context) error {
	if err := c.deleteSession(ctx); err != nil {
		return err
	}
	c.Close()
	return nil
}

func (c *Client) deleteSession(ctx context.Context) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil
	}
	return c.controlPlaneCall(ctx, http.MethodDelete, "/v1/code-interpreter/sessions/"+sessionID, nil, nil)
}

func (c *Client) verifySessionReachable(ctx context.Context) error {
	var sess types.Session
	return c.controlPlaneCall(ctx, http.MethodGet, "/v1/code-interpreter/sessions/"+c.SessionID(), nil, &sess)
}

// controlPlaneCall is an unsigned call against the Control-Plane
// management API (session CRUD); only data-plane calls through the
// Router are signed.
func (c *Client) controlPlaneCall(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sdk: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.ControlPlaneURL+path, reader)
	if err != nil {
		return fmt.Errorf("sdk: build control-plane request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "control-plane unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sdk: read control-plane response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("sdk: decode control-plane response: %w", err)
	}
	return nil
}

func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusNotFound:
		return agentcubeapi.New(agentcubeapi.KindNotFound, "session not found")
	case http.StatusUnauthorized:
		return agentcubeapi.New(agentcubeapi.KindUnauthorized, "unauthorized")
	case http.StatusConflict:
		return agentcubeapi.New(agentcubeapi.KindConflict, "conflict")
	case http.StatusTooManyRequests:
		return agentcubeapi.New(agentcubeapi.KindRateLimit, "rate limited")
	case http.StatusBadRequest:
		return agentcubeapi.New(agentcubeapi.KindConfiguration, body)
	default:
		return agentcubeapi.New(agentcubeapi.KindProvider, fmt.Sprintf("control-plane returned status %d", status))
	}
}

// encodeFileContent is a small helper shared by file upload calls.
func encodeFileContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
