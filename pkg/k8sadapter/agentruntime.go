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

package k8sadapter

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	runtimev1alpha1 "github.com/agentcube/agentcube/pkg/apis/runtime/v1alpha1"
	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// UpsertAgentRuntimeCR creates the AgentRuntime CR if it is absent, or
// patches its spec if it already exists.
func (a *Adapter) UpsertAgentRuntimeCR(ctx context.Context, namespace, name string, spec runtimev1alpha1.AgentRuntimeSpec) (*runtimev1alpha1.AgentRuntime, error) {
	existing := &runtimev1alpha1.AgentRuntime{}
	err := a.ControllerCli.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, existing)
	if err == nil {
		existing.Spec = spec
		if err := a.ControllerCli.Update(ctx, existing); err != nil {
			return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "update agentruntime", err)
		}
		return existing, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "get agentruntime", err)
	}

	ar := &runtimev1alpha1.AgentRuntime{
		Spec: spec,
	}
	ar.Name = name
	ar.Namespace = namespace
	if err := a.ControllerCli.Create(ctx, ar); err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "create agentruntime", err)
	}
	return ar, nil
}

// GetAgentRuntimeCR returns the object, or (nil, nil) if it does not exist.
func (a *Adapter) GetAgentRuntimeCR(ctx context.Context, namespace, name string) (*runtimev1alpha1.AgentRuntime, error) {
	ar := &runtimev1alpha1.AgentRuntime{}
	err := a.ControllerCli.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, ar)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "get agentruntime", err)
	}
	return ar, nil
}

// DeleteAgentRuntimeCR deletes the named CR. Absence is not an error.
func (a *Adapter) DeleteAgentRuntimeCR(ctx context.Context, namespace, name string) error {
	ar := &runtimev1alpha1.AgentRuntime{}
	ar.Name = name
	ar.Namespace = namespace
	err := a.ControllerCli.Delete(ctx, ar)
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "delete agentruntime", err)
	}
	return nil
}
