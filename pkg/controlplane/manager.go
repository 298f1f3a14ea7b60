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

// Package controlplane is the control-plane manager: the public
// contract for creating, inspecting, listing, and deleting sessions,
// plus the TTL/garbage-collection loop that reclaims them.
package controlplane

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
	"github.com/agentcube/agentcube/pkg/k8sadapter"
	"github.com/agentcube/agentcube/pkg/signing"
	"github.com/agentcube/agentcube/pkg/tracker"
)

// Clock is overridable so tests can control time.Now() without sleeping.
type Clock func() time.Time

// Manager implements the createSession/getSession/listSessions/deleteSession
// contract.
type Manager struct {
	adapter *k8sadapter.Adapter
	tracker tracker.Tracker
	issuer  string

	// bootstrapKey is the private half of the long-lived bootstrap key
	// pair; every Daemon image is shipped with the matching public half.
	// The Control-Plane is the provisioner, so it mints and sends the
	// init token.
	bootstrapKey *rsa.PrivateKey
	signer       *signing.Signer
	httpClient   *http.Client

	// defaultTTL is used when a SessionCreateRequest omits ttl; maxTTL
	// bounds the sliding-extension policy.
	defaultTTL time.Duration
	maxTTL     time.Duration

	// bootstrapTimeout bounds the /init HTTP round trip.
	bootstrapTimeout time.Duration
	// readinessTimeout and endpointTimeout override the k8sadapter
	// defaults when non-zero, mainly for tests.
	readinessTimeout time.Duration
	endpointTimeout  time.Duration

	now Clock

	mu       chan struct{} // binary semaphore guarding sessions map mutation ordering
	sessions map[string]*types.Session
}

// Config collects the tunables a deployment sets at startup.
type Config struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Issuer     string

	// BootstrapKey is the Control-Plane's half of the bootstrap trust
	// anchor; required to mint /init tokens for Code Interpreter sessions.
	BootstrapKey *rsa.PrivateKey

	BootstrapTimeout time.Duration
	ReadinessTimeout time.Duration
	EndpointTimeout  time.Duration

	HTTPClient *http.Client
}

// NewManager wires an Adapter and Tracker into a Manager. Sessions are
// kept in an in-process index in addition to the Tracker's resource map,
// since the Tracker only records cluster objects, not session metadata
// (state, endpoint, expiry).
func NewManager(adapter *k8sadapter.Adapter, trk tracker.Tracker, cfg Config) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "agentcube-control-plane"
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.BootstrapTimeout}
	}

	var signer *signing.Signer
	if cfg.BootstrapKey != nil {
		signer = signing.NewSigner(cfg.BootstrapKey, cfg.Issuer)
	}

	return &Manager{
		adapter:          adapter,
		tracker:          trk,
		issuer:           cfg.Issuer,
		bootstrapKey:     cfg.BootstrapKey,
		signer:           signer,
		httpClient:       cfg.HTTPClient,
		defaultTTL:       cfg.DefaultTTL,
		maxTTL:           cfg.MaxTTL,
		bootstrapTimeout: cfg.BootstrapTimeout,
		readinessTimeout: cfg.ReadinessTimeout,
		endpointTimeout:  cfg.EndpointTimeout,
		now:              time.Now,
		mu:               make(chan struct{}, 1),
		sessions:         make(map[string]*types.Session),
	}
}

func (m *Manager) lock()   { m.mu <- struct{}{} }
func (m *Manager) unlock() { <-m.mu }

// generateSessionID returns a random hex session identifier. Normalized
// separately via k8sadapter.NormalizeName when used as a resource name.
func generateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("controlplane: generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateSessionResult wraps the created Session together with the
// session private key PEM, when one was minted (Code Interpreter only).
// The private key is disclosed exactly once, in the create response; it
// is never persisted in the session index.
type CreateSessionResult struct {
	Session              *types.Session
	SessionPrivateKeyPEM string
}

// CreateSession dispatches on Kind to the Code Interpreter or Agent
// Runtime creation algorithm.
func (m *Manager) CreateSession(ctx context.Context, req types.SessionCreateRequest) (*CreateSessionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid session create request", err)
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	switch req.Kind {
	case types.CodeInterpreterKind:
		return m.createCodeInterpreter(ctx, req, ttl)
	case types.AgentRuntimeKind:
		return m.createAgentRuntime(ctx, req, ttl)
	default:
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, "unsupported session kind").WithContext("kind", req.Kind)
	}
}

// GetSession returns the current session record, or a NotFound error.
func (m *Manager) GetSession(_ context.Context, sessionID string) (*types.Session, error) {
	m.lock()
	defer m.unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, agentcubeapi.New(agentcubeapi.KindNotFound, "session not found").WithContext("sessionId", sessionID)
	}
	cp := *sess
	return &cp, nil
}

// ListSessions returns a stable-ordered page of sessions, sorted by
// session id.
func (m *Manager) ListSessions(_ context.Context, req types.ListSessionsRequest) ([]*types.Session, error) {
	m.lock()
	all := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		all = append(all, &cp)
	}
	m.unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].SessionID < all[j].SessionID })

	limit := req.Limit
	if limit <= 0 {
		limit = len(all)
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*types.Session{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// DeleteSession synchronously deletes every tracked resource for
// sessionID and removes it from the session index. Deleting an unknown
// session is treated as success by well-behaved clients, so the caller
// reports NotFound but this is not itself an operational failure.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.unlock()

	if !ok {
		return agentcubeapi.New(agentcubeapi.KindNotFound, "session not found").WithContext("sessionId", sessionID)
	}

	resources, err := m.tracker.Release(ctx, sessionID)
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "release tracked resources", err)
	}

	return m.deleteResources(ctx, sess.Namespace, resources)
}

func (m *Manager) deleteResources(ctx context.Context, namespace string, resources []types.SandboxResource) error {
	var firstErr error
	for _, res := range resources {
		var err error
		switch res.Kind {
		case types.ResourcePod:
			_, err = m.adapter.DeletePod(ctx, namespace, res.Name)
		case types.ResourceConfigMap:
			err = m.adapter.DeleteConfigMap(ctx, namespace, res.Name)
		case types.ResourceAgentRuntimeCR:
			err = m.adapter.DeleteAgentRuntimeCR(ctx, namespace, res.Name)
		}
		if err != nil {
			klog.Errorf("controlplane: delete %s %s/%s: %v", res.Kind, namespace, res.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// rollback is called when session creation fails partway through; it
// deletes whatever the tracker recorded before the failure on a
// best-effort basis.
func (m *Manager) rollback(ctx context.Context, sessionID, namespace string) {
	resources, err := m.tracker.Release(ctx, sessionID)
	if err != nil {
		klog.Errorf("controlplane: rollback release for %s: %v", sessionID, err)
		return
	}
	if err := m.deleteResources(ctx, namespace, resources); err != nil {
		klog.Errorf("controlplane: rollback cleanup for %s: %v", sessionID, err)
	}
}

func (m *Manager) putSession(sess *types.Session) {
	m.lock()
	defer m.unlock()
	m.sessions[sess.SessionID] = sess
}

// ExtendTTL slides a session's expiresAt to now+ttl, capped at
// createdAt+maxTTL, and never shortens it. No data-plane path calls it:
// requests proxied by the Router do not extend a session.
func (m *Manager) ExtendTTL(_ context.Context, sessionID string, ttl time.Duration) error {
	m.lock()
	defer m.unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return agentcubeapi.New(agentcubeapi.KindNotFound, "session not found").WithContext("sessionId", sessionID)
	}

	now := m.now()
	candidate := now.Add(ttl)
	capped := sess.CreatedAt.Add(m.maxTTL)
	if candidate.After(capped) {
		candidate = capped
	}
	if candidate.After(sess.ExpiresAt) {
		sess.ExpiresAt = candidate
	}
	sess.LastActivityAt = now
	return nil
}

// podMatchesTemplate reports whether an existing Pod can be treated as
// the idempotent result of a repeated create call: same name, already
// Running.
func podMatchesTemplate(pod *corev1.Pod) bool {
	return pod.Status.Phase == corev1.PodRunning
}
