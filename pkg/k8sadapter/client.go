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

// Package k8sadapter wraps the Kubernetes client: it creates, reads, and
// deletes Pods, Services, ConfigMaps, and the AgentRuntime custom
// resource, and owns pod template construction and readiness polling.
package k8sadapter

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	runtimev1alpha1 "github.com/agentcube/agentcube/pkg/apis/runtime/v1alpha1"
)

// Adapter wraps every Kubernetes client surface the control-plane needs.
type Adapter struct {
	Clientset     kubernetes.Interface
	Dynamic       dynamic.Interface
	ControllerCli client.Client
	RestConfig    *rest.Config
}

// New builds an Adapter, trying in-cluster configuration first and
// falling back to the user's local kubeconfig. This decision is made
// once, at construction.
func New() (*Adapter, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		overrides := &clientcmd.ConfigOverrides{}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
		config, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("k8sadapter: failed to load kubeconfig: %w", err)
		}
	}
	return NewFromConfig(config)
}

// NewFromConfig builds an Adapter from an already-resolved rest.Config,
// primarily so tests can point it at an envtest/fake API server.
func NewFromConfig(config *rest.Config) (*Adapter, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("k8sadapter: failed to create clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("k8sadapter: failed to create dynamic client: %w", err)
	}

	scheme, err := newScheme()
	if err != nil {
		return nil, err
	}

	ctrlCli, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("k8sadapter: failed to create controller-runtime client: %w", err)
	}

	return &Adapter{
		Clientset:     clientset,
		Dynamic:       dynamicClient,
		ControllerCli: ctrlCli,
		RestConfig:    config,
	}, nil
}

func newScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("k8sadapter: failed to register core scheme: %w", err)
	}
	if err := runtimev1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("k8sadapter: failed to register AgentRuntime scheme: %w", err)
	}
	return scheme, nil
}
