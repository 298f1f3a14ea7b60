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

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// ReadConfigMap returns the configmap, or a NotFound error if it does not
// exist.
func (a *Adapter) ReadConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	cm, err := a.Clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, agentcubeapi.New(agentcubeapi.KindNotFound, "configmap not found").
			WithContext("namespace", namespace, "name", name)
	}
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "read configmap", err)
	}
	return cm, nil
}

// CreateConfigMap is idempotent: it creates the configmap with key/value
// if absent, or updates the value if the map already exists with that key.
func (a *Adapter) CreateConfigMap(ctx context.Context, namespace, name, key, value string, labels map[string]string) (*corev1.ConfigMap, error) {
	cms := a.Clientset.CoreV1().ConfigMaps(namespace)

	existing, err := cms.Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		if existing.Data == nil {
			existing.Data = map[string]string{}
		}
		existing.Data[key] = value
		updated, err := cms.Update(ctx, existing, metav1.UpdateOptions{})
		if err != nil {
			return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "update configmap", err)
		}
		return updated, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "get configmap", err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Data: map[string]string{key: value},
	}
	created, err := cms.Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// Lost a create race; fall back to update semantics.
		return a.CreateConfigMap(ctx, namespace, name, key, value, labels)
	}
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "create configmap", err)
	}
	return created, nil
}

// DeleteConfigMap deletes the named configmap. Absence is not an error.
func (a *Adapter) DeleteConfigMap(ctx context.Context, namespace, name string) error {
	err := a.Clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return agentcubeapi.Wrap(agentcubeapi.KindProvider, "delete configmap", err)
	}
	return nil
}
