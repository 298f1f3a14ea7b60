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
	"crypto/rsa"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/valkey-io/valkey-go"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/agentcube/agentcube/pkg/bootstrap"
	"github.com/agentcube/agentcube/pkg/controlplane"
	"github.com/agentcube/agentcube/pkg/k8sadapter"
	"github.com/agentcube/agentcube/pkg/tracker"
)

func main() {
	var (
		port             = flag.String("port", "8443", "Control-Plane API server port")
		gcInterval       = flag.Duration("gc-interval", 15*time.Second, "Interval between expired-session sweeps")
		defaultTTL       = flag.Duration("default-ttl", 15*time.Minute, "TTL applied to a session when the create request omits one")
		maxTTL           = flag.Duration("max-ttl", 24*time.Hour, "Upper bound on a session's TTL extension")
		issuer           = flag.String("issuer", "agentcube-control-plane", "JWT issuer claim for minted init tokens")
		bootstrapKeyFile = flag.String("bootstrap-key-file", "", "Path to a PEM-encoded RSA private key for the bootstrap trust anchor; a fresh key is generated for the process lifetime, with a warning logged, if empty")
		bootstrapTimeout = flag.Duration("bootstrap-timeout", 10*time.Second, "Timeout for the /init handshake against a new Daemon")
		trackerBackend   = flag.String("tracker-backend", "memory", "Resource tracker backend: memory, redis, or valkey")
		trackerAddr      = flag.String("tracker-addr", "", "Address of the tracker backend, required when tracker-backend is redis or valkey")
		enableReconciler = flag.Bool("enable-agentruntime-reconciler", true, "Run the AgentRuntime controller alongside the API server")
	)

	klog.InitFlags(nil)
	flag.Parse()

	adapter, err := k8sadapter.New()
	if err != nil {
		klog.Fatalf("Failed to build Kubernetes adapter: %v", err)
	}

	var mgr ctrl.Manager
	if *enableReconciler {
		mgr, err = ctrl.NewManager(adapter.RestConfig, ctrl.Options{
			Scheme: adapter.ControllerCli.Scheme(),
			Metrics: metricsserver.Options{
				BindAddress: "0",
			},
			HealthProbeBindAddress: "0",
		})
		if err != nil {
			klog.Fatalf("Failed to start AgentRuntime controller manager: %v", err)
		}
		reconciler := &k8sadapter.AgentRuntimeReconciler{Client: mgr.GetClient(), Scheme: mgr.GetScheme()}
		if err := reconciler.SetupWithManager(mgr); err != nil {
			klog.Fatalf("Failed to set up AgentRuntime reconciler: %v", err)
		}
	}

	trk, err := newTracker(*trackerBackend, *trackerAddr)
	if err != nil {
		klog.Fatalf("Failed to build resource tracker: %v", err)
	}

	bootstrapKey, err := loadOrGenerateBootstrapKey(*bootstrapKeyFile)
	if err != nil {
		klog.Fatalf("Failed to load bootstrap key: %v", err)
	}

	manager := controlplane.NewManager(adapter, trk, controlplane.Config{
		DefaultTTL:       *defaultTTL,
		MaxTTL:           *maxTTL,
		Issuer:           *issuer,
		BootstrapKey:     bootstrapKey,
		BootstrapTimeout: *bootstrapTimeout,
	})

	server := controlplane.NewServer(manager, controlplane.ServerConfig{
		Port:       *port,
		GCInterval: *gcInterval,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Starting agentcube Control-Plane server on port %s", *port)
		errCh <- server.Start(ctx)
		close(errCh)
	}()

	if mgr != nil {
		go func() {
			klog.Info("Starting AgentRuntime controller manager")
			if err := mgr.Start(ctx); err != nil {
				klog.Errorf("AgentRuntime controller manager error: %v", err)
			}
		}()
	}

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

	klog.Info("Control-Plane server stopped")
}

func newTracker(backend, addr string) (tracker.Tracker, error) {
	switch backend {
	case "", "memory":
		return tracker.NewInMemory(), nil
	case "redis":
		return tracker.NewRedis(redisv9.NewClient(&redisv9.Options{Addr: addr})), nil
	case "valkey":
		cli, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
		if err != nil {
			return nil, err
		}
		return tracker.NewValkey(cli), nil
	default:
		klog.Fatalf("Unknown tracker backend %q", backend)
		return nil, nil
	}
}

// loadOrGenerateBootstrapKey reads the bootstrap trust anchor from disk if
// a path was given. Without one, a fresh key is minted for the process
// lifetime; every Daemon this Control-Plane bootstraps must be reachable
// with the matching public half, so a generated key only makes sense for
// a single-replica or development deployment.
func loadOrGenerateBootstrapKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		klog.Warning("No bootstrap-key-file given, generating an ephemeral bootstrap key for this process")
		return bootstrap.GenerateSessionKeyPair()
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bootstrap.DecodePrivateKeyPEM(string(pemBytes))
}
