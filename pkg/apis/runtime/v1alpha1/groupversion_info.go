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

// Package v1alpha1 contains the runtime.agentcube.io/v1alpha1 API group:
// the AgentRuntime custom resource consumed by the control-plane's K8s
// Adapter.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	GroupName = "runtime.agentcube.io"
	Version   = "v1alpha1"
)

var (
	// GroupVersion is the API group and version used for every type in
	// this package.
	GroupVersion = schema.GroupVersion{Group: GroupName, Version: Version}

	// SchemeBuilder is used to add go types to the GroupVersionKind scheme.
	SchemeBuilder = &schemeBuilder{}

	// AddToScheme adds all registered types to a scheme.
	AddToScheme = SchemeBuilder.addToScheme
)

// schemeBuilder mirrors the minimal subset of
// k8s.io/apimachinery/pkg/runtime.SchemeBuilder needed here, without
// pulling in controller-gen generated marker dependencies.
type schemeBuilder struct{}

func (b *schemeBuilder) addToScheme(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion,
		&AgentRuntime{},
		&AgentRuntimeList{},
	)
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}

// Resource takes an unqualified resource and returns a GroupVersionResource
// qualified with this package's group and version.
func Resource(resource string) schema.GroupVersionResource {
	return GroupVersion.WithResource(resource)
}
