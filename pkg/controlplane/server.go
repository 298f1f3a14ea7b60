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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"k8s.io/klog/v2"
)

// ServerConfig bundles the HTTP-layer tunables for the control-plane API.
type ServerConfig struct {
	Port string
	// GCInterval is how often the garbage collector sweeps for expired
	// sessions.
	GCInterval time.Duration
}

// Server exposes Manager over the HTTP API.
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	manager    *Manager
	gc         *garbageCollector
}

// NewServer builds a Server around an already-constructed Manager.
func NewServer(manager *Manager, config ServerConfig) *Server {
	if config.Port == "" {
		config.Port = "8443"
	}
	s := &Server{
		config:  config,
		manager: manager,
		gc:      newGarbageCollector(manager, config.GCInterval),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.Use(s.loggingMiddleware)

	v1.POST("/code-interpreter", s.handleCreateCodeInterpreter)
	v1.DELETE("/code-interpreter/sessions/:sessionId", s.handleDeleteSession)
	v1.GET("/code-interpreter/sessions/:sessionId", s.handleGetSession)
	v1.GET("/code-interpreter/sessions", s.handleListSessions)

	v1.POST("/agent-runtime", s.handleCreateAgentRuntime)
	v1.DELETE("/agent-runtime/sessions/:sessionId", s.handleDeleteSession)

	// Legacy compatibility route.
	v1.POST("/sandboxes", s.handleCreateSandboxLegacy)
}

// Start runs the HTTP/2-cleartext server and the background garbage
// collector until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := ":" + s.config.Port

	h2s := &http2.Server{}
	h2cHandler := h2c.NewHandler(s.router, h2s)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     h2cHandler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		klog.Info("controlplane: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("controlplane: server shutdown error: %v", err)
		}
	}()

	go s.gc.run(ctx.Done())

	klog.Infof("controlplane: server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("controlplane: server error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) loggingMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	klog.Infof("%s %s %d %v", c.Request.Method, c.Request.RequestURI, c.Writer.Status(), time.Since(start))
}
