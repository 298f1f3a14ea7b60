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

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// TargetPort is one exposed port of an AgentRuntime, routed by pathPrefix.
type TargetPort struct {
	Name       string `json:"name"`
	Port       int32  `json:"port"`
	Protocol   string `json:"protocol,omitempty"`
	PathPrefix string `json:"pathPrefix,omitempty"`
}

// AgentRuntimeSpec is the desired state of an AgentRuntime sandbox.
type AgentRuntimeSpec struct {
	Ports []TargetPort `json:"ports"`

	// Template is an OCI-style container spec for the agent's host
	// process, reused as-is from corev1 so the control-plane's K8s
	// Adapter can hand it straight to the Pod it creates.
	Template corev1.PodTemplateSpec `json:"template"`

	RestartPolicy corev1.RestartPolicy `json:"restartPolicy,omitempty"`

	// SessionTimeout is the duration of inactivity after which a session
	// is terminated (duration string, e.g. "15m").
	SessionTimeout string `json:"sessionTimeout,omitempty"`

	// MaxSessionDuration bounds total session lifetime regardless of
	// activity (duration string, e.g. "8h").
	MaxSessionDuration string `json:"maxSessionDuration,omitempty"`
}

// AgentRuntimeStatus is the observed state of an AgentRuntime, exposed via
// the status subresource. The control-plane reads only AgentEndpoint and
// Status.
type AgentRuntimeStatus struct {
	AgentEndpoint string `json:"agentEndpoint,omitempty"`
	Status        string `json:"status,omitempty"`
}

// AgentRuntime is the cluster-level custom resource representing a
// long-running HTTP agent sandbox.
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=art
type AgentRuntime struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AgentRuntimeSpec   `json:"spec"`
	Status AgentRuntimeStatus `json:"status,omitempty"`
}

// AgentRuntimeList is a list of AgentRuntime.
// +kubebuilder:object:root=true
type AgentRuntimeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []AgentRuntime `json:"items"`
}

// DeepCopyObject implements runtime.Object.
func (in *AgentRuntime) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(AgentRuntime)
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	if in.Spec.Ports != nil {
		out.Spec.Ports = append([]TargetPort(nil), in.Spec.Ports...)
	}
	in.Spec.Template.DeepCopyInto(&out.Spec.Template)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *AgentRuntimeList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(AgentRuntimeList)
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]AgentRuntime, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
	return out
}

// DeepCopyInto copies the receiver into out, for use by DeepCopyObject and
// by controller-runtime client caches that clone cached objects on read.
func (in *AgentRuntime) DeepCopyInto(out *AgentRuntime) {
	clone, _ := in.DeepCopyObject().(*AgentRuntime)
	*out = *clone
}
