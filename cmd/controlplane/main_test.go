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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcube/agentcube/pkg/bootstrap"
)

func TestControlPlaneFlagParsing(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	port := fs.String("port", "8443", "")
	backend := fs.String("tracker-backend", "memory", "")

	require.NoError(t, fs.Parse([]string{"-port", "9443", "-tracker-backend", "redis"}))

	assert.Equal(t, "9443", *port)
	assert.Equal(t, "redis", *backend)
}

func TestNewTracker_Memory(t *testing.T) {
	trk, err := newTracker("memory", "")
	require.NoError(t, err)
	assert.NotNil(t, trk)
}

func TestNewTracker_Default(t *testing.T) {
	trk, err := newTracker("", "")
	require.NoError(t, err)
	assert.NotNil(t, trk)
}

func TestLoadOrGenerateBootstrapKey_Generates(t *testing.T) {
	key, err := loadOrGenerateBootstrapKey("")
	require.NoError(t, err)
	assert.NotNil(t, key)
}

func TestLoadOrGenerateBootstrapKey_LoadsFromFile(t *testing.T) {
	key, err := loadOrGenerateBootstrapKey("")
	require.NoError(t, err)

	path := t.TempDir() + "/bootstrap.pem"
	pemStr := bootstrap.EncodePrivateKeyPEM(key)
	require.NoError(t, os.WriteFile(path, []byte(pemStr), 0o600))

	loaded, err := loadOrGenerateBootstrapKey(path)
	require.NoError(t, err)
	assert.Equal(t, key.N, loaded.N)
}
