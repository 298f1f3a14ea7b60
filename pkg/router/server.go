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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"k8s.io/klog/v2"
)

// Server is the Router: the data-plane front door that resolves a
// sessionId to a sandbox endpoint and proxies or tunnels to it.
type Server struct {
	config        Config
	engine        *gin.Engine
	httpServer    *http.Server
	resolver      sessionResolver
	signer        *delegatedSigner
	httpTransport *http.Transport
}

// NewServer builds a Router, wiring the cache backend chosen by
// config.CacheBackend and persisting/loading the Router's delegated
// signing identity.
func NewServer(config Config) (*Server, error) {
	config.setDefaults()

	var cache endpointCache
	switch config.CacheBackend {
	case CacheBackendRedis:
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("router: redis cache backend requires RedisAddr")
		}
		cache = newRedisEndpointCache(config.RedisAddr)
	default:
		cache = newMemoryEndpointCache()
	}

	if config.ControlPlaneURL == "" {
		return nil, fmt.Errorf("router: ControlPlaneURL is required")
	}
	resolver := newControlPlaneResolver(config.ControlPlaneURL, cache, config.CacheTTL)

	signer, err := newDelegatedSigner()
	if err != nil {
		return nil, fmt.Errorf("router: create delegated signer: %w", err)
	}
	if err := signer.persistOrLoad(context.Background(), config.IdentityNamespace); err != nil {
		return nil, fmt.Errorf("router: persist/load delegated signer identity: %w", err)
	}
	klog.Info("router: delegated signer identity ready")

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:   config,
		resolver: resolver,
		signer:   signer,
		httpTransport: &http.Transport{
			IdleConnTimeout:    0,
			DisableCompression: false,
		},
	}
	server.setupRoutes()
	return server, nil
}

// concurrencyLimitMiddleware bounds how many proxied requests the
// Router serves at once, shedding load with 503 once the limit is hit
// rather than queueing requests behind an already-saturated backend.
func (s *Server) concurrencyLimitMiddleware() gin.HandlerFunc {
	semaphore := make(chan struct{}, s.config.MaxConcurrentRequests)
	return func(c *gin.Context) {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			c.Next()
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "router overloaded, please try again later",
				"code":  "SERVER_OVERLOADED",
			})
			c.Abort()
		}
	}
}

func (s *Server) setupRoutes() {
	s.engine = gin.New()

	s.engine.GET("/health/live", s.handleHealthLive)
	s.engine.GET("/health/ready", s.handleHealthReady)

	v1 := s.engine.Group("/v1")
	v1.Use(gin.Logger())
	v1.Use(gin.Recovery())
	v1.Use(s.concurrencyLimitMiddleware())

	v1.POST("/namespaces/:namespace/agent-runtimes/:name/invocations/*path", s.handleAgentInvoke)
	v1.POST("/code-namespaces/:namespace/code-interpreters/:name/invocations/*path", s.handleCodeInterpreterInvoke)

	// CONNECT is registered explicitly since it is not among gin's
	// conventional REST verbs.
	v1.Handle(http.MethodConnect, "/sandboxes/:sessionId", s.handleConnect)
}

// Start serves the Router, upgrading to h2c so a client can multiplex
// proxied calls over a single cleartext HTTP/2 connection without
// requiring TLS termination at the Router itself.
func (s *Server) Start(ctx context.Context) error {
	addr := ":" + s.config.Port

	h2s := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.engine, h2s),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		klog.Info("router: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("router: shutdown error: %v", err)
		}
	}()

	klog.Infof("router: listening on %s", addr)

	if s.config.EnableTLS {
		if s.config.TLSCert == "" || s.config.TLSKey == "" {
			return fmt.Errorf("router: TLS enabled but cert/key not provided")
		}
		return s.httpServer.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
	}

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
