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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeResolver is a test double for sessionResolver so handler tests
// don't need a real Control-Plane.
type fakeResolver struct {
	sessions map[string]*types.Session
	created  *types.Session
	err      error
}

func (f *fakeResolver) resolve(_ context.Context, sessionID string) (*types.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, agentcubeapi.New(agentcubeapi.KindNotFound, "unknown session")
	}
	return sess, nil
}

func (f *fakeResolver) createAgentSession(_ context.Context, namespace, name string) (*types.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

func newTestServer(t *testing.T, resolver sessionResolver) *Server {
	t.Helper()
	signer, err := newDelegatedSigner()
	require.NoError(t, err)

	s := &Server{
		config:        Config{MaxConcurrentRequests: 100, ConnectTimeout: 0},
		resolver:      resolver,
		signer:        signer,
		httpTransport: &http.Transport{},
	}
	s.config.setDefaults()
	s.setupRoutes()
	return s
}

func TestHandleCodeInterpreterInvoke_MissingSessionHeaderIsBadRequest(t *testing.T) {
	s := newTestServer(t, &fakeResolver{})

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCodeInterpreterInvoke_UnknownSessionIsNotFound(t *testing.T) {
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	req.Header.Set(sessionHeader, "missing")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCodeInterpreterInvoke_ForwardsToSandboxPreservingAuthorization(t *testing.T) {
	var gotAuth string
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	sess := &types.Session{SessionID: "sess-1", Endpoint: strings.TrimPrefix(backend.URL, "http://")}
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{"sess-1": sess}})

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	req.Header.Set(sessionHeader, "sess-1")
	req.Header.Set("Authorization", "Bearer client-signed-token")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer client-signed-token", gotAuth)
	assert.Equal(t, "/run", gotPath)
	assert.Equal(t, "sess-1", rec.Header().Get(sessionHeader))
}

func TestHandleCodeInterpreterInvoke_SignsOnBehalfOfUnsignedClient(t *testing.T) {
	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	sess := &types.Session{SessionID: "sess-1", Endpoint: strings.TrimPrefix(backend.URL, "http://")}
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{"sess-1": sess}})

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))
}

func TestHandleCodeInterpreterInvoke_UnassignedEndpointIsBadGateway(t *testing.T) {
	sess := &types.Session{SessionID: "sess-1", State: types.SessionPending}
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{"sess-1": sess}})

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleAgentInvoke_NoSessionHeaderCreatesSession(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	created := &types.Session{SessionID: "sess-new", Kind: types.AgentRuntimeKind, Endpoint: strings.TrimPrefix(backend.URL, "http://")}
	s := newTestServer(t, &fakeResolver{created: created})

	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/ns1/agent-runtimes/agent1/invocations/chat", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-new", rec.Header().Get(sessionHeader))
}

func TestHandleAgentInvoke_ExistingSessionHeaderResolves(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	sess := &types.Session{SessionID: "sess-1", Endpoint: strings.TrimPrefix(backend.URL, "http://")}
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{"sess-1": sess}})

	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/ns1/agent-runtimes/agent1/invocations/chat", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthLiveAndReady(t *testing.T) {
	s := newTestServer(t, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec = httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConcurrencyLimitMiddleware_ShedsLoadOverLimit(t *testing.T) {
	s := newTestServer(t, &fakeResolver{sessions: map[string]*types.Session{}})
	s.config.MaxConcurrentRequests = 0 // semaphore of size 0 never admits a request
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/v1/code-namespaces/ns1/code-interpreters/ci1/invocations/run", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
