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

package sdk

import (
	"context"
	"fmt"

	"github.com/agentcube/agentcube/pkg/common/types"
	"github.com/agentcube/agentcube/pkg/metadata"
)

// CreateCodeInterpreterFromWorkspace loads agent_metadata.yaml out of
// workspaceDir and uses its entrypoint, port, and image fields to fill in
// a SessionCreateRequest, so a caller that already has a built workspace
// does not have to restate what its own metadata file already declares.
// Fields set on req.Template take precedence over the workspace file.
func CreateCodeInterpreterFromWorkspace(ctx context.Context, config Config, workspaceDir string, req types.SessionCreateRequest) (*Client, *metadata.Metadata, error) {
	m, err := metadata.Load(workspaceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("sdk: load workspace metadata: %w", err)
	}

	if req.Template == nil {
		req.Template = &types.PodTemplateSpec{}
	}
	if req.Template.Entrypoint == "" {
		req.Template.Entrypoint = m.Entrypoint
	}
	if req.Template.ContainerPort == 0 && m.Port != 0 {
		req.Template.ContainerPort = int32(m.Port)
	}
	if req.Template.Image == "" && m.Image != nil {
		req.Template.Image = imageReference(m.Image)
	}
	if req.Name == "" {
		req.Name = m.AgentName
	}

	client, err := CreateCodeInterpreter(ctx, config, req)
	return client, m, err
}

func imageReference(img *metadata.ImageInfo) string {
	if img.Digest != "" {
		return fmt.Sprintf("%s/%s@%s", img.Registry, img.Repository, img.Digest)
	}
	tag := img.Tag
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s/%s:%s", img.Registry, img.Repository, tag)
}
