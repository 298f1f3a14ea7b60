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
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/bootstrap"
	"github.com/agentcube/agentcube/pkg/signing"
)

// maxBodySize bounds request bodies read into memory for signing.
const maxBodySize = 32 << 20 // 32 MiB

// bootstrapKeyFuncFor wraps the fixed bootstrap public key as a
// signing.KeyFunc, rejecting anything that isn't RS256.
func bootstrapKeyFuncFor(pub *rsa.PublicKey) signing.KeyFunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return pub, nil
	}
}

// handleInit is the one-shot bootstrap endpoint: a successful call
// installs the session public key carried by the bootstrap token as the
// verification key for all subsequent /api/* traffic.
func (s *Server) handleInit(c *gin.Context) {
	token, err := signing.FromRequest(c.Request)
	if err != nil {
		writeError(c, err)
		return
	}

	sessionPubPEM, err := bootstrap.VerifyInitToken(s.verifier, token, s.bootstrapKeyFunc)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.installer.Install(sessionPubPEM); err != nil {
		writeError(c, err)
		return
	}

	s.touchActivity()
	c.JSON(http.StatusOK, gin.H{"status": "installed"})
}

// authMiddleware verifies every /api/* request's signature: resolve the
// session key installed by /init, recompute the canonical digest from
// the actual request bytes, and reject any mismatch, even before /init
// has ever succeeded.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := signing.FromRequest(c.Request)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		sessionPubPEM, installed := s.installer.SessionPublicKeyPEM()
		if !installed {
			writeError(c, agentcubeapi.New(agentcubeapi.KindUnauthorized, "session not yet bootstrapped"))
			c.Abort()
			return
		}
		sessionPub, err := bootstrap.DecodePublicKeyPEM(sessionPubPEM)
		if err != nil {
			writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "installed session key is invalid", err))
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, agentcubeapi.Wrap(agentcubeapi.KindConfiguration, "read request body", err))
			c.Abort()
			return
		}

		_, err = s.verifier.Verify(token, func(*jwt.Token) (any, error) {
			return sessionPub, nil
		}, signing.CanonicalRequest{
			Method:   c.Request.Method,
			URI:      c.Request.URL.Path,
			RawQuery: c.Request.URL.RawQuery,
			Headers:  c.Request.Header,
			Body:     body,
		})
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		restoreBody(c, body)
		s.touchActivity()
		c.Next()
	}
}

// restoreBody makes the already-consumed-for-signing request body
// readable again for the downstream handler (ShouldBindJSON etc).
func restoreBody(c *gin.Context, body []byte) {
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
}

func writeError(c *gin.Context, err error) {
	apiErr, ok := agentcubeapi.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(apiErr.Status(), gin.H{"error": apiErr.Message, "kind": apiErr.Kind})
}
