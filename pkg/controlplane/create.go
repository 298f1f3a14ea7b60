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

package controlplane

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	runtimev1alpha1 "github.com/agentcube/agentcube/pkg/apis/runtime/v1alpha1"
	"github.com/agentcube/agentcube/pkg/bootstrap"
	"github.com/agentcube/agentcube/pkg/common/types"
	"github.com/agentcube/agentcube/pkg/k8sadapter"
)

// createCodeInterpreter implements the 8-step Code Interpreter create
// algorithm:
//  1. generate+normalize sessionId
//  2. idempotent existing-pod check
//  3. materialize configmaps
//  4. create the pod
//  5. wait for readiness
//  6. run bootstrap
//  7. track all created resources
//  8. return the session record
//
// Any failure after step 4 triggers best-effort rollback.
func (m *Manager) createCodeInterpreter(ctx context.Context, req types.SessionCreateRequest, ttl time.Duration) (*CreateSessionResult, error) {
	if req.Template == nil {
		return nil, agentcubeapi.New(agentcubeapi.KindConfiguration, "template is required for CodeInterpreter sessions")
	}

	sessionID := req.Name
	if sessionID == "" {
		generated, err := generateSessionID()
		if err != nil {
			return nil, agentcubeapi.Wrap(agentcubeapi.KindResource, "generate session id", err)
		}
		sessionID = generated
	}
	sessionID = k8sadapter.NormalizeName(sessionID)
	podName := sessionID

	now := m.now()

	// Step 2: idempotent existing-pod check.
	existing, err := m.adapter.ReadPod(ctx, req.Namespace, podName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if podMatchesTemplate(existing) {
			if sess, ok := m.lookupByID(sessionID); ok {
				return &CreateSessionResult{Session: sess}, nil
			}
		} else if existing.Status.Phase == "Failed" || existing.Status.Phase == "Unknown" {
			return nil, agentcubeapi.New(agentcubeapi.KindResource, "existing pod is in a non-recoverable phase").
				WithContext("namespace", req.Namespace, "name", podName, "phase", string(existing.Status.Phase))
		}
	}

	var created []types.SandboxResource
	rollbackOnErr := func(err error) error {
		if err != nil {
			m.trackAll(ctx, sessionID, created)
			m.rollback(ctx, sessionID, req.Namespace)
		}
		return err
	}

	// Step 3: materialize any required configmaps (one per mount that
	// carries an inline Value; mounts that reference a pre-existing
	// configmap by name are left untouched).
	for _, mount := range req.Template.ConfigMapMounts {
		if mount.Value == "" {
			continue
		}
		if _, err := m.adapter.CreateConfigMap(ctx, req.Namespace, mount.Name, mount.Key, mount.Value, map[string]string{
			"runtime.agentcube.io/session-id": sessionID,
		}); err != nil {
			return nil, rollbackOnErr(err)
		}
		created = append(created, types.SandboxResource{Kind: types.ResourceConfigMap, Name: mount.Name, Namespace: req.Namespace})
	}

	// When the caller supplies a publicKey, bootstrap installs that key
	// and C5 never learns the matching private half. Otherwise C5
	// generates the pair itself and discloses the private half once, in
	// the create response. Either way bootstrap is what installs the key
	// into the Daemon, per Open Question Decision #1.
	var sessionKey *rsa.PrivateKey
	sessionPubPEM := req.PublicKeyPEM
	if sessionPubPEM == "" {
		var genErr error
		sessionKey, genErr = bootstrap.GenerateSessionKeyPair()
		if genErr != nil {
			return nil, rollbackOnErr(agentcubeapi.Wrap(agentcubeapi.KindResource, "generate session key", genErr))
		}
		sessionPubPEM, genErr = bootstrap.EncodePublicKeyPEM(&sessionKey.PublicKey)
		if genErr != nil {
			return nil, rollbackOnErr(agentcubeapi.Wrap(agentcubeapi.KindResource, "encode session public key", genErr))
		}
	}

	// Step 4: create the pod.
	pod, err := m.adapter.CreatePod(ctx, sessionID, req.Namespace, req.Template)
	if err != nil && !errors.Is(err, agentcubeapi.ErrAlreadyExists) {
		return nil, rollbackOnErr(err)
	}
	if pod == nil {
		pod, err = m.adapter.ReadPod(ctx, req.Namespace, podName)
		if err != nil {
			return nil, rollbackOnErr(err)
		}
	}
	created = append(created, types.SandboxResource{Kind: types.ResourcePod, Name: podName, Namespace: req.Namespace})

	// Step 5: wait for readiness.
	readyPod, err := m.adapter.WaitForPodReady(ctx, req.Namespace, podName, m.readinessTimeout)
	if err != nil {
		return nil, rollbackOnErr(err)
	}

	// Step 6: run bootstrap.
	if err := m.runBootstrap(ctx, readyPod, req.Template.ContainerPort, sessionPubPEM); err != nil {
		return nil, rollbackOnErr(err)
	}

	// Step 7: track all created resources.
	m.trackAll(ctx, sessionID, created)

	expiresAt := now.Add(ttl)
	if capped := now.Add(m.maxTTL); expiresAt.After(capped) {
		expiresAt = capped
	}

	var sessionPrivPEM string
	if sessionKey != nil {
		sessionPrivPEM = bootstrap.EncodePrivateKeyPEM(sessionKey)
	}
	sess := &types.Session{
		SessionID:           sessionID,
		Kind:                types.CodeInterpreterKind,
		Namespace:           req.Namespace,
		State:               types.SessionRunning,
		CreatedAt:           now,
		ExpiresAt:           expiresAt,
		LastActivityAt:      now,
		SessionPublicKeyPEM: sessionPubPEM,
		Endpoint:            fmt.Sprintf("%s:%d", readyPod.Status.PodIP, req.Template.ContainerPort),
		Metadata:            req.Metadata,
	}
	m.putSession(sess)

	cp := *sess
	return &CreateSessionResult{Session: &cp, SessionPrivateKeyPEM: sessionPrivPEM}, nil
}

// createAgentRuntime implements the Agent Runtime create algorithm:
// upsert the CR, poll for an endpoint, write status back. No bootstrap
// handshake is performed.
func (m *Manager) createAgentRuntime(ctx context.Context, req types.SessionCreateRequest, ttl time.Duration) (*CreateSessionResult, error) {
	sessionID := req.Name
	if sessionID == "" {
		generated, err := generateSessionID()
		if err != nil {
			return nil, agentcubeapi.Wrap(agentcubeapi.KindResource, "generate session id", err)
		}
		sessionID = generated
	}
	sessionID = k8sadapter.NormalizeName(sessionID)
	now := m.now()

	spec := runtimev1alpha1.AgentRuntimeSpec{}
	if req.Template != nil {
		spec.Ports = []runtimev1alpha1.TargetPort{{Name: "agent", Port: req.Template.ContainerPort}}
	}

	if _, err := m.adapter.UpsertAgentRuntimeCR(ctx, req.Namespace, sessionID, spec); err != nil {
		return nil, err
	}

	m.trackAll(ctx, sessionID, []types.SandboxResource{
		{Kind: types.ResourceAgentRuntimeCR, Name: sessionID, Namespace: req.Namespace},
	})

	result, err := m.adapter.WaitForAgentRuntimeEndpoint(ctx, req.Namespace, sessionID, m.endpointTimeout)
	if err != nil {
		m.rollback(ctx, sessionID, req.Namespace)
		return nil, err
	}

	expiresAt := now.Add(ttl)
	if capped := now.Add(m.maxTTL); expiresAt.After(capped) {
		expiresAt = capped
	}

	state := types.SessionRunning
	if result.TimedOut {
		state = types.SessionPending
	}

	sess := &types.Session{
		SessionID:      sessionID,
		Kind:           types.AgentRuntimeKind,
		Namespace:      req.Namespace,
		State:          state,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		LastActivityAt: now,
		Endpoint:       result.Endpoint,
		Status:         result.Status,
		Metadata:       req.Metadata,
	}
	m.putSession(sess)

	cp := *sess
	return &CreateSessionResult{Session: &cp}, nil
}

// runBootstrap mints a bootstrap JWT carrying sessionPubPEM and POSTs it
// to the pod's /init endpoint.
func (m *Manager) runBootstrap(ctx context.Context, pod *corev1.Pod, containerPort int32, sessionPubPEM string) error {
	if m.signer == nil {
		return agentcubeapi.New(agentcubeapi.KindConfiguration, "control-plane has no bootstrap key configured")
	}

	token, err := bootstrap.MintInitToken(m.signer, sessionPubPEM, bootstrap.MaxTTL)
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindResource, "mint init token", err)
	}

	url := fmt.Sprintf("http://%s:%d/init", pod.Status.PodIP, containerPort)
	body, _ := json.Marshal(map[string]string{})

	ctx, cancel := context.WithTimeout(ctx, m.bootstrapTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindResource, "build init request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "init request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return agentcubeapi.New(agentcubeapi.KindProvider, "bootstrap rejected by daemon").
			WithContext("status", resp.StatusCode)
	}
	return nil
}

func (m *Manager) trackAll(ctx context.Context, sessionID string, resources []types.SandboxResource) {
	for _, res := range resources {
		if err := m.tracker.Track(ctx, sessionID, res); err != nil {
			klog.Errorf("controlplane: track resource %s/%s for session %s: %v", res.Kind, res.Name, sessionID, err)
		}
	}
}

func (m *Manager) lookupByID(sessionID string) (*types.Session, bool) {
	m.lock()
	defer m.unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}
