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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/agentcube/agentcube/pkg/router"
)

func main() {
	var (
		port                  = flag.String("port", "8080", "Router API server port")
		controlPlaneURL       = flag.String("control-plane-url", "http://localhost:8443", "Control-Plane base URL")
		cacheBackend          = flag.String("cache-backend", "memory", "Endpoint cache backend: memory or redis")
		redisAddr             = flag.String("redis-addr", "", "Redis address, required when cache-backend=redis")
		cacheTTL              = flag.Duration("cache-ttl", 5*time.Second, "Resolved-endpoint cache TTL")
		enableTLS             = flag.Bool("enable-tls", false, "Enable TLS (HTTPS)")
		tlsCert               = flag.String("tls-cert", "", "Path to TLS certificate file")
		tlsKey                = flag.String("tls-key", "", "Path to TLS key file")
		debug                 = flag.Bool("debug", false, "Enable debug mode")
		maxConcurrentRequests = flag.Int("max-concurrent-requests", 1000, "Maximum number of concurrent requests")
		connectTimeout        = flag.Duration("connect-timeout", 10*time.Second, "CONNECT tunnel dial timeout")
		identityNamespace     = flag.String("identity-namespace", "default", "Namespace for the Router's delegated-signing identity secret")
	)

	klog.InitFlags(nil)
	flag.Parse()

	config := router.Config{
		Port:                  *port,
		ControlPlaneURL:       *controlPlaneURL,
		CacheBackend:          router.CacheBackend(*cacheBackend),
		RedisAddr:             *redisAddr,
		CacheTTL:              *cacheTTL,
		Debug:                 *debug,
		EnableTLS:             *enableTLS,
		TLSCert:               *tlsCert,
		TLSKey:                *tlsKey,
		MaxConcurrentRequests: *maxConcurrentRequests,
		ConnectTimeout:        *connectTimeout,
		IdentityNamespace:     *identityNamespace,
	}

	server, err := router.NewServer(config)
	if err != nil {
		klog.Fatalf("Failed to create Router server: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Starting agentcube Router server on port %s", *port)
		errCh <- server.Start(ctx)
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		klog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			klog.Fatalf("Server error: %v", err)
		}
	}

	klog.Info("Router server stopped")
}
