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
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

const sessionHeader = "x-agentcube-session-id"

func (s *Server) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleHealthReady(c *gin.Context) {
	if s.resolver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "resolver not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleCodeInterpreterInvoke proxies a Code Interpreter data-plane
// request. The client is expected to already hold a sessionId (minted by
// the Control-Plane's createSession call) and to carry it in the
// sessionHeader.
func (s *Server) handleCodeInterpreterInvoke(c *gin.Context) {
	sessionID := c.GetHeader(sessionHeader)
	if sessionID == "" {
		writeError(c, agentcubeapi.New(agentcubeapi.KindConfiguration, "missing "+sessionHeader+" header"))
		return
	}

	sess, err := s.resolver.resolve(c.Request.Context(), sessionID)
	if err != nil {
		klog.Errorf("router: resolve session %s: %v", sessionID, err)
		writeError(c, err)
		return
	}

	s.forward(c, sess, c.Param("path"))
}

// handleAgentInvoke proxies an AgentRuntime invocation. The first call
// for a given agent may arrive without a session header, in which case
// the Router creates a fresh session via the Control-Plane and echoes
// the new sessionId back in the response header.
func (s *Server) handleAgentInvoke(c *gin.Context) {
	sessionID := c.GetHeader(sessionHeader)

	var sess *types.Session
	var err error
	if sessionID == "" {
		sess, err = s.resolver.createAgentSession(c.Request.Context(), c.Param("namespace"), c.Param("name"))
	} else {
		sess, err = s.resolver.resolve(c.Request.Context(), sessionID)
	}
	if err != nil {
		klog.Errorf("router: resolve/create agent session: %v", err)
		writeError(c, err)
		return
	}

	c.Header(sessionHeader, sess.SessionID)
	s.forward(c, sess, c.Param("path"))
}

// forward proxies the request to the sandbox addressed by sess.Endpoint.
// If the client already signed the request (an Authorization header is
// present) that header is preserved unchanged. Otherwise the Router
// signs on the client's behalf as the delegated issuer.
func (s *Server) forward(c *gin.Context, sess *types.Session, path string) {
	if sess.Endpoint == "" {
		writeError(c, agentcubeapi.New(agentcubeapi.KindProvider, "sandbox endpoint not yet assigned"))
		return
	}

	targetURL, err := url.Parse(prependScheme(sess.Endpoint))
	if err != nil {
		klog.Errorf("router: invalid sandbox endpoint %q: %v", sess.Endpoint, err)
		writeError(c, agentcubeapi.New(agentcubeapi.KindProvider, "invalid sandbox endpoint"))
		return
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "read request body", err))
			return
		}
		c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	proxy.Transport = s.httpTransport

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)

		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		req.URL.Path = path
		req.URL.RawPath = ""
		req.Host = targetURL.Host

		req.Header.Set("X-Forwarded-Host", c.Request.Host)
		proto := "http"
		if c.Request.TLS != nil {
			proto = "https"
		}
		req.Header.Set("X-Forwarded-Proto", proto)

		clientIP := c.ClientIP()
		if prior, ok := req.Header["X-Forwarded-For"]; ok {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)

		if req.Header.Get("Authorization") == "" && s.signer != nil {
			token, err := s.signer.sign(req.Method, path, req.Header, body)
			if err != nil {
				klog.Errorf("router: delegated signing failed for session %s: %v", sess.SessionID, err)
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		klog.Infof("router: forwarding %s %s to %s (session %s)", req.Method, path, targetURL.String(), sess.SessionID)
	}

	proxy.ErrorHandler = func(_ http.ResponseWriter, _ *http.Request, err error) {
		klog.Errorf("router: proxy error (session %s): %v", sess.SessionID, err)
		writeError(c, agentcubeapi.Wrap(agentcubeapi.KindProvider, "sandbox unreachable", err))
		c.Abort()
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Set(sessionHeader, sess.SessionID)
		return nil
	}

	proxy.ServeHTTP(c.Writer, c.Request)
}

func prependScheme(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "http://" + endpoint
}
