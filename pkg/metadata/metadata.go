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

// Package metadata is a read-only loader for a workspace's
// agent_metadata.yaml: the file an agent's build tooling writes
// alongside its source so the Control-Plane can surface fields like
// agent_endpoint and image back to a caller that already has a session,
// without this repo ever writing the file itself.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// fileNames are tried in order against a workspace directory; the
// canonical name wins, the rest exist for workspaces authored by hand.
var fileNames = []string{"agent_metadata.yaml", "agent.yaml", "metadata.yaml"}

// ImageInfo is the subset of build-time image fields a loader cares
// about; the file may carry more, which Unmarshal silently ignores.
type ImageInfo struct {
	Registry   string `json:"registry,omitempty"`
	Repository string `json:"repository,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// Metadata mirrors the fields an agent workspace's metadata file
// declares. Fields unset in the file come back as their zero value;
// this loader performs no validation beyond "is this valid YAML", since
// validating and writing the file is the build tooling's job, not this
// repo's.
type Metadata struct {
	AgentName        string         `json:"agent_name,omitempty"`
	Description      string         `json:"description,omitempty"`
	Language         string         `json:"language,omitempty"`
	Entrypoint       string         `json:"entrypoint,omitempty"`
	Port             int            `json:"port,omitempty"`
	BuildMode        string         `json:"build_mode,omitempty"`
	Region           string         `json:"region,omitempty"`
	Version          string         `json:"version,omitempty"`
	Image            *ImageInfo     `json:"image,omitempty"`
	Auth             map[string]any `json:"auth,omitempty"`
	RequirementsFile string         `json:"requirements_file,omitempty"`
	AgentID          string         `json:"agent_id,omitempty"`
	AgentEndpoint    string         `json:"agent_endpoint,omitempty"`
}

// Load reads and parses the metadata file out of workspaceDir, trying
// each name in fileNames until one exists. It returns an error if none
// of them are present or the one found is not valid YAML.
func Load(workspaceDir string) (*Metadata, error) {
	var (
		data    []byte
		foundAt string
		readErr error
	)
	for _, name := range fileNames {
		path := filepath.Join(workspaceDir, name)
		data, readErr = os.ReadFile(path)
		if readErr == nil {
			foundAt = path
			break
		}
		if !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("metadata: read %s: %w", path, readErr)
		}
	}
	if foundAt == "" {
		return nil, fmt.Errorf("metadata: no metadata file found in %s, expected one of %v", workspaceDir, fileNames)
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("metadata: parse %s: %w", foundAt, err)
	}
	return &m, nil
}
