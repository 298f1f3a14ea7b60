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
	"k8s.io/apimachinery/pkg/util/intstr"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
)

// ServiceSpec is the input to UpsertService.
type ServiceSpec struct {
	Port       int32
	TargetPort int32
	// NodePort, if zero, lets the API server auto-assign one.
	NodePort int32
	Selector map[string]string
}

// UpsertService creates or updates a NodePort service fronting a sandbox
// pod and returns the actual node port assigned.
func (a *Adapter) UpsertService(ctx context.Context, namespace, name string, spec ServiceSpec) (int32, error) {
	services := a.Clientset.CoreV1().Services(namespace)

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Selector: spec.Selector,
			Ports: []corev1.ServicePort{
				{
					Port:       spec.Port,
					TargetPort: intstr.FromInt32(spec.TargetPort),
					NodePort:   spec.NodePort,
				},
			},
		},
	}

	existing, err := services.Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		svc.ResourceVersion = existing.ResourceVersion
		svc.Spec.ClusterIP = existing.Spec.ClusterIP
		if spec.NodePort == 0 && len(existing.Spec.Ports) > 0 {
			svc.Spec.Ports[0].NodePort = existing.Spec.Ports[0].NodePort
		}
		updated, err := services.Update(ctx, svc, metav1.UpdateOptions{})
		if err != nil {
			return 0, agentcubeapi.Wrap(agentcubeapi.KindProvider, "update service", err)
		}
		return updated.Spec.Ports[0].NodePort, nil
	}
	if !apierrors.IsNotFound(err) {
		return 0, agentcubeapi.Wrap(agentcubeapi.KindProvider, "get service", err)
	}

	created, err := services.Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		return 0, agentcubeapi.Wrap(agentcubeapi.KindProvider, "create service", err)
	}
	return created.Spec.Ports[0].NodePort, nil
}
