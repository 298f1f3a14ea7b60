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

	"k8s.io/klog/v2"

	"github.com/agentcube/agentcube/pkg/daemon"
)

func main() {
	var (
		port                   = flag.Int("port", 8000, "Daemon HTTP server port")
		workspace              = flag.String("workspace", "/workspace", "Directory the Daemon treats as the sandbox filesystem root")
		bootstrapPublicKeyPEM  = flag.String("bootstrap-public-key", "", "PEM-encoded RSA public key authorizing the one-shot /init call")
		bootstrapPublicKeyFile = flag.String("bootstrap-public-key-file", "", "Path to a file holding the PEM-encoded bootstrap public key, used instead of -bootstrap-public-key")
		ttl                    = flag.Duration("ttl", daemon.DefaultTTL, "Idle time before the Daemon self-terminates")
	)

	klog.InitFlags(nil)
	flag.Parse()

	pubKeyPEM := *bootstrapPublicKeyPEM
	if *bootstrapPublicKeyFile != "" {
		data, err := os.ReadFile(*bootstrapPublicKeyFile)
		if err != nil {
			klog.Fatalf("Failed to read bootstrap public key file: %v", err)
		}
		pubKeyPEM = string(data)
	}
	if pubKeyPEM == "" {
		klog.Fatal("A bootstrap public key is required: set -bootstrap-public-key or -bootstrap-public-key-file")
	}

	server, err := daemon.NewServer(daemon.Config{
		Port:                  *port,
		Workspace:             *workspace,
		BootstrapPublicKeyPEM: pubKeyPEM,
		TTL:                   *ttl,
	})
	if err != nil {
		klog.Fatalf("Failed to create Daemon server: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Starting agentcube Daemon on port %d", *port)
		errCh <- server.Run(ctx)
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

	klog.Info("Daemon stopped")
}
