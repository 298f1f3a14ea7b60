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
	"time"

	corev1 "k8s.io/api/core/v1"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

const (
	// DefaultReadinessTimeout bounds pod readiness polling.
	DefaultReadinessTimeout = 120 * time.Second
	// DefaultEndpointTimeout bounds AgentRuntime endpoint polling.
	DefaultEndpointTimeout = 300 * time.Second
)

// readinessPollInterval and endpointPollInterval are vars, not consts, so
// tests can shrink them instead of waiting out the real cadence.
var (
	// readinessPollInterval is the fixed poll interval for pod readiness.
	readinessPollInterval = 3 * time.Second
	// endpointPollInterval is the poll interval for AgentRuntime
	// status.agentEndpoint.
	endpointPollInterval = 5 * time.Second
)

// WaitForPodReady polls ReadPod until the pod's single container reports
// Ready, the pod enters Failed, or timeout elapses.
func (a *Adapter) WaitForPodReady(ctx context.Context, namespace, name string, timeout time.Duration) (*corev1.Pod, error) {
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	var lastPhase corev1.PodPhase
	for {
		pod, err := a.ReadPod(ctx, namespace, name)
		if err != nil {
			return nil, err
		}
		if pod != nil {
			lastPhase = pod.Status.Phase
			if pod.Status.Phase == corev1.PodFailed {
				return nil, PodPhaseError(pod)
			}
			if podReady(pod) {
				return pod, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, agentcubeapi.New(agentcubeapi.KindTimeout, "timed out waiting for pod readiness").
				WithContext("namespace", namespace, "name", name, "lastPhase", string(lastPhase))
		case <-ticker.C:
		}
	}
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// AgentRuntimeEndpointResult is returned by WaitForAgentRuntimeEndpoint.
type AgentRuntimeEndpointResult struct {
	Endpoint string
	Status   string
	// TimedOut is true when the 300s poll window elapsed with no endpoint
	// ever appearing; callers record status=endpoint_timeout and return.
	// This is not itself an error.
	TimedOut bool
}

// WaitForAgentRuntimeEndpoint polls status.agentEndpoint for an
// AgentRuntime CR every endpointPollInterval, up to timeout
// (DefaultEndpointTimeout when timeout is not positive).
func (a *Adapter) WaitForAgentRuntimeEndpoint(ctx context.Context, namespace, name string, timeout time.Duration) (AgentRuntimeEndpointResult, error) {
	if timeout <= 0 {
		timeout = DefaultEndpointTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(endpointPollInterval)
	defer ticker.Stop()

	for {
		ar, err := a.GetAgentRuntimeCR(ctx, namespace, name)
		if err != nil {
			return AgentRuntimeEndpointResult{}, err
		}
		if ar != nil && ar.Status.AgentEndpoint != "" {
			return AgentRuntimeEndpointResult{Endpoint: ar.Status.AgentEndpoint, Status: ar.Status.Status}, nil
		}

		select {
		case <-ctx.Done():
			return AgentRuntimeEndpointResult{TimedOut: true, Status: "endpoint_timeout"}, nil
		case <-ticker.C:
		}
	}
}
