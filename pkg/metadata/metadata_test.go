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

package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_CanonicalName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agent_metadata.yaml", `
agent_name: my-agent
language: python
entrypoint: "python3 main.py"
port: 8080
agent_endpoint: "http://10.0.0.1:8080"
`)

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "my-agent", m.AgentName)
	assert.Equal(t, "python", m.Language)
	assert.Equal(t, 8080, m.Port)
	assert.Equal(t, "http://10.0.0.1:8080", m.AgentEndpoint)
}

func TestLoad_FallsBackToAlternateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agent.yaml", "agent_name: fallback-agent\n")

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "fallback-agent", m.AgentName)
}

func TestLoad_NoFileFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agent_metadata.yaml", "agent_name: [unterminated\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_ImageBlock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agent_metadata.yaml", `
agent_name: with-image
image:
  registry: registry.example.com
  repository: agents/with-image
  tag: v2
`)

	m, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, m.Image)
	assert.Equal(t, "registry.example.com", m.Image.Registry)
	assert.Equal(t, "agents/with-image", m.Image.Repository)
	assert.Equal(t, "v2", m.Image.Tag)
}
