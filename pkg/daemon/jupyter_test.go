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

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jupyter-server is not installed in this test environment, so these
// tests exercise the handler's lazy-init and error-propagation paths
// rather than a real kernel round trip.

func TestNewInterpreterManager_GeneratesUniqueTokenAndURL(t *testing.T) {
	jm1 := newInterpreterManager(t.TempDir())
	jm2 := newInterpreterManager(t.TempDir())

	assert.NotEmpty(t, jm1.token)
	assert.NotEqual(t, jm1.token, jm2.token, "each interpreter gets its own kernel token")
	assert.Equal(t, "http://127.0.0.1:8888", jm1.serverURL)
	assert.Nil(t, jm1.wsConn)
}

func TestEnsureStarted_IsIdempotentOnceConnected(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	jm := newInterpreterManager(t.TempDir())
	jm.wsConn = conn

	err = jm.ensureStarted(context.Background())
	assert.NoError(t, err, "an already-connected manager must not attempt to start a server again")
}

func TestHandleJupyterExecute_MissingCodeIsBadRequest(t *testing.T) {
	h := newTestHarness(t)
	sessionKey := h.runInit(t)

	body, _ := json.Marshal(map[string]string{})
	req := signedRequest(t, sessionKey, http.MethodPost, "/api/jupyter/execute", body)
	rec := h.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJupyterExecute_StartFailurePropagatesAsResourceError(t *testing.T) {
	h := newTestHarness(t)
	sessionKey := h.runInit(t)

	body, _ := json.Marshal(jupyterExecuteRequest{Code: "1 + 1"})
	req := signedRequest(t, sessionKey, http.MethodPost, "/api/jupyter/execute", body)
	rec := h.do(req)

	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Resource", resp["kind"])
}

func TestHandleJupyterExecute_ReusesSameManagerAcrossCalls(t *testing.T) {
	h := newTestHarness(t)
	sessionKey := h.runInit(t)

	// each call fails to start jupyter-server here, but the handler has
	// already installed its lazily-created manager by then.
	body, _ := json.Marshal(jupyterExecuteRequest{Code: "1 + 1"})
	h.do(signedRequest(t, sessionKey, http.MethodPost, "/api/jupyter/execute", body))
	h.server.jupyterMu.Lock()
	first := h.server.jupyter
	h.server.jupyterMu.Unlock()

	h.do(signedRequest(t, sessionKey, http.MethodPost, "/api/jupyter/execute", body))
	h.server.jupyterMu.Lock()
	second := h.server.jupyter
	h.server.jupyterMu.Unlock()

	require.NotNil(t, first)
	assert.Same(t, first, second, "a session must reuse one kernel manager across execute calls")
}
