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
	"net/http"

	"github.com/gin-gonic/gin"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

// createSessionRequest is the wire shape for POST /v1/code-interpreter
// and POST /v1/agent-runtime.
type createSessionRequest struct {
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	TTL       int64                  `json:"ttl"`
	PublicKey string                 `json:"publicKey,omitempty"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Template  *types.PodTemplateSpec `json:"template,omitempty"`
}

// createSessionResponse carries the session id and, for Code Interpreter
// sessions, the one-time session private key.
type createSessionResponse struct {
	SessionID     string `json:"sessionId"`
	Endpoint      string `json:"endpoint,omitempty"`
	Status        string `json:"status,omitempty"`
	PrivateKeyPEM string `json:"sessionPrivateKey,omitempty"`
}

func (s *Server) handleCreateCodeInterpreter(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}

	req := types.SessionCreateRequest{
		Kind:         types.CodeInterpreterKind,
		Name:         body.Name,
		Namespace:    body.Namespace,
		TTLSeconds:   body.TTL,
		PublicKeyPEM: body.PublicKey,
		Metadata:     body.Metadata,
		Template:     body.Template,
	}

	result, err := s.manager.CreateSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createSessionResponse{
		SessionID:     result.Session.SessionID,
		Endpoint:      result.Session.Endpoint,
		PrivateKeyPEM: result.SessionPrivateKeyPEM,
	})
}

func (s *Server) handleCreateAgentRuntime(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}

	req := types.SessionCreateRequest{
		Kind:       types.AgentRuntimeKind,
		Name:       body.Name,
		Namespace:  body.Namespace,
		TTLSeconds: body.TTL,
		Metadata:   body.Metadata,
		Template:   body.Template,
	}

	result, err := s.manager.CreateSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createSessionResponse{
		SessionID: result.Session.SessionID,
		Endpoint:  result.Session.Endpoint,
		Status:    result.Session.Status,
	})
}

// legacySandboxRequest is the pre-split wire shape for the legacy
// compatibility route: one endpoint dispatching on kind.
type legacySandboxRequest struct {
	Kind      types.SessionKind      `json:"kind"`
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	TTL       int64                  `json:"ttl"`
	PublicKey string                 `json:"publicKey,omitempty"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Template  *types.PodTemplateSpec `json:"template,omitempty"`
}

func (s *Server) handleCreateSandboxLegacy(c *gin.Context) {
	var body legacySandboxRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "invalid request body", err))
		return
	}

	req := types.SessionCreateRequest{
		Kind:         body.Kind,
		Name:         body.Name,
		Namespace:    body.Namespace,
		TTLSeconds:   body.TTL,
		PublicKeyPEM: body.PublicKey,
		Metadata:     body.Metadata,
		Template:     body.Template,
	}

	result, err := s.manager.CreateSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createSessionResponse{SessionID: result.Session.SessionID})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.manager.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.manager.ListSessions(c.Request.Context(), types.ListSessionsRequest{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	err := s.manager.DeleteSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if agentcubeapi.KindOf(err) == agentcubeapi.KindNotFound {
			// Unknown session on delete is treated as success by
			// well-behaved clients.
			c.Status(http.StatusNoContent)
			return
		}
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps an *agentcubeapi.Error onto its HTTP status. Errors
// that were never classified surface as 500 rather than leaking an
// unclassified shape to the client.
func writeError(c *gin.Context, err error) {
	apiErr, ok := agentcubeapi.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(apiErr.Status(), gin.H{"error": apiErr.Message, "kind": apiErr.Kind})
}
