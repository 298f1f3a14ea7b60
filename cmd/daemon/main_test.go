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
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/bootstrap"
	"github.com/agentcube/agentcube/pkg/daemon"
)

func TestDaemonFlagParsing(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	port := fs.Int("port", 8000, "")
	workspace := fs.String("workspace", "/workspace", "")

	require.NoError(t, fs.Parse([]string{"-port", "9000", "-workspace", "/tmp/sandbox"}))

	assert.Equal(t, 9000, *port)
	assert.Equal(t, "/tmp/sandbox", *workspace)
}

func TestDaemonNewServer(t *testing.T) {
	key, err := bootstrap.GenerateSessionKeyPair()
	require.NoError(t, err)
	pubPEM, err := bootstrap.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	server, err := daemon.NewServer(daemon.Config{
		Port:                  8000,
		Workspace:             t.TempDir(),
		BootstrapPublicKeyPEM: pubPEM,
		TTL:                   time.Minute,
	})
	require.NoError(t, err)
	assert.NotNil(t, server)
}
