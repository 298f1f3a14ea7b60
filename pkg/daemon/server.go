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

// Package daemon is the in-pod sandbox daemon: an HTTP server that
// verifies signed requests, executes commands, serves file I/O, and
// enforces its own session TTL independently of the Control-Plane.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/agentcube/agentcube/pkg/bootstrap"
	"github.com/agentcube/agentcube/pkg/signing"
)

// DefaultTTL is the Daemon's self-enforced idle timeout absent an
// explicit override. TTL is configured at startup (default 900s).
const DefaultTTL = 900 * time.Second

// Config defines the Daemon's startup configuration.
type Config struct {
	Port      int
	Workspace string

	// BootstrapPublicKeyPEM is the long-lived trust anchor that
	// authorizes exactly one /init call.
	BootstrapPublicKeyPEM string

	// TTL bounds how long the Daemon tolerates no authenticated
	// activity before self-terminating.
	TTL time.Duration
}

// Server is the Daemon's HTTP entrypoint.
type Server struct {
	engine    *gin.Engine
	config    Config
	startTime time.Time

	workspaceDir       string
	originalWorkingDir string

	installer         *bootstrap.Installer
	verifier          *signing.Verifier
	bootstrapKeyFunc  signing.KeyFunc

	mu             sync.Mutex
	lastActivityAt time.Time

	jupyterMu sync.Mutex
	jupyter   *interpreterManager

	// onIdleTimeout is invoked by the TTL sweeper when the Daemon has
	// gone TTL seconds without an authenticated request; overridable in
	// tests so they don't actually exit the test binary.
	onIdleTimeout func()
}

// NewServer builds a Daemon Server. The bootstrap public key must be
// available at startup (env var or mounted file, resolved by the
// caller); without it no /init call can ever be authorized.
func NewServer(config Config) (*Server, error) {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	bootstrapPub, err := bootstrap.DecodePublicKeyPEM(config.BootstrapPublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("daemon: invalid bootstrap public key: %w", err)
	}

	s := &Server{
		config:         config,
		startTime:      time.Now(),
		installer:      bootstrap.NewInstaller(),
		verifier:       signing.NewVerifier(),
		lastActivityAt: time.Now(),
		onIdleTimeout:  func() { klog.Fatal("daemon: session TTL elapsed with no activity, exiting") },
	}

	if config.Workspace != "" {
		s.setWorkspace(config.Workspace)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("daemon: get working directory: %w", err)
		}
		s.setWorkspace(cwd)
	}

	s.bootstrapKeyFunc = bootstrapKeyFuncFor(bootstrapPub)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)
	engine.POST("/init", s.handleInit)

	api := engine.Group("/api")
	api.Use(s.authMiddleware())
	{
		api.POST("/execute", s.handleExecute)
		api.GET("/execute/stream", s.handleExecuteStream)
		api.POST("/jupyter/execute", s.handleJupyterExecute)
		api.POST("/files", s.handleUploadFile)
		api.GET("/files", s.handleListFiles)
		api.GET("/files/*path", s.handleDownloadFile)
	}

	s.engine = engine
	return s, nil
}

// Run starts the HTTP server and the TTL sweeper; blocks until the
// listener returns.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.runTTLSweeper(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	klog.Infof("daemon: listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("daemon: server error: %w", err)
	}
	return nil
}

// runTTLSweeper terminates the process once lastActivityAt is older
// than the configured TTL.
func (s *Server) runTTLSweeper(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.idleFor() > s.config.TTL {
				s.onIdleTimeout()
				return
			}
		}
	}
}

func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivityAt)
}

func (s *Server) touchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = time.Now()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "agentcube-daemon",
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) setWorkspace(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		klog.Warningf("daemon: resolve workspace %q: %v", dir, err)
		s.workspaceDir = dir
		return
	}
	s.workspaceDir = abs
}
