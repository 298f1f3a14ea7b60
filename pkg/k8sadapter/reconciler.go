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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	runtimev1alpha1 "github.com/agentcube/agentcube/pkg/apis/runtime/v1alpha1"
)

// selectorLabelKey is set on every agentruntime-owned Pod and matched by
// its Service's selector.
const selectorLabelKey = "agentruntime.agentcube.io/name"

// AgentRuntimeReconciler gives the AgentRuntime CR a real control loop: it
// creates and keeps in sync the child Pod and Service an AgentRuntime
// needs, and writes status.agentEndpoint/status once the Pod is ready.
// Without it, an AgentRuntime CR would only ever be read, never acted on.
type AgentRuntimeReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// SetupWithManager registers the reconciler to watch AgentRuntime CRs.
func (r *AgentRuntimeReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&runtimev1alpha1.AgentRuntime{}).
		Owns(&corev1.Pod{}).
		Owns(&corev1.Service{}).
		Complete(r)
}

//+kubebuilder:rbac:groups=runtime.agentcube.io,resources=agentruntimes,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=runtime.agentcube.io,resources=agentruntimes/status,verbs=get;update;patch
//+kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete

// Reconcile moves an AgentRuntime's observed state closer to its desired
// state: create the child Pod and Service if missing, then publish
// status.agentEndpoint once the Pod reports Ready.
func (r *AgentRuntimeReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	ar := &runtimev1alpha1.AgentRuntime{}
	if err := r.Get(ctx, req.NamespacedName, ar); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	pod, err := r.reconcilePod(ctx, ar)
	if err != nil {
		return ctrl.Result{}, err
	}

	if err := r.reconcileService(ctx, ar); err != nil {
		return ctrl.Result{}, err
	}

	return ctrl.Result{}, r.reconcileStatus(ctx, ar, pod)
}

func (r *AgentRuntimeReconciler) reconcilePod(ctx context.Context, ar *runtimev1alpha1.AgentRuntime) (*corev1.Pod, error) {
	pod := &corev1.Pod{}
	pod.Name = ar.Name
	pod.Namespace = ar.Namespace

	err := r.Get(ctx, client.ObjectKey{Namespace: ar.Namespace, Name: ar.Name}, pod)
	if err == nil {
		return pod, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("k8sadapter: get agentruntime pod: %w", err)
	}

	pod = &corev1.Pod{
		ObjectMeta: ar.Spec.Template.ObjectMeta,
		Spec:       ar.Spec.Template.Spec,
	}
	pod.Name = ar.Name
	pod.Namespace = ar.Namespace
	if pod.Labels == nil {
		pod.Labels = map[string]string{}
	}
	pod.Labels[selectorLabelKey] = ar.Name
	if pod.Spec.RestartPolicy == "" {
		pod.Spec.RestartPolicy = ar.Spec.RestartPolicy
	}
	if pod.Spec.RestartPolicy == "" {
		pod.Spec.RestartPolicy = corev1.RestartPolicyNever
	}

	if err := controllerutil.SetControllerReference(ar, pod, r.Scheme); err != nil {
		return nil, fmt.Errorf("k8sadapter: set owner reference on agentruntime pod: %w", err)
	}
	if err := r.Create(ctx, pod); err != nil {
		return nil, fmt.Errorf("k8sadapter: create agentruntime pod: %w", err)
	}
	return pod, nil
}

func (r *AgentRuntimeReconciler) reconcileService(ctx context.Context, ar *runtimev1alpha1.AgentRuntime) error {
	svc := &corev1.Service{}
	err := r.Get(ctx, client.ObjectKey{Namespace: ar.Namespace, Name: ar.Name}, svc)
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("k8sadapter: get agentruntime service: %w", err)
	}

	ports := make([]corev1.ServicePort, 0, len(ar.Spec.Ports))
	for _, p := range ar.Spec.Ports {
		proto := corev1.ProtocolTCP
		if p.Protocol != "" {
			proto = corev1.Protocol(p.Protocol)
		}
		ports = append(ports, corev1.ServicePort{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: intstr.FromInt32(p.Port),
			Protocol:   proto,
		})
	}

	svc = &corev1.Service{}
	svc.Name = ar.Name
	svc.Namespace = ar.Namespace
	svc.Spec = corev1.ServiceSpec{
		Selector: map[string]string{selectorLabelKey: ar.Name},
		Ports:    ports,
	}

	if err := controllerutil.SetControllerReference(ar, svc, r.Scheme); err != nil {
		return fmt.Errorf("k8sadapter: set owner reference on agentruntime service: %w", err)
	}
	return r.Create(ctx, svc)
}

func (r *AgentRuntimeReconciler) reconcileStatus(ctx context.Context, ar *runtimev1alpha1.AgentRuntime, pod *corev1.Pod) error {
	if pod == nil || !podReady(pod) || len(ar.Spec.Ports) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("%s.%s.svc.cluster.local:%d", ar.Name, ar.Namespace, ar.Spec.Ports[0].Port)
	if ar.Status.AgentEndpoint == endpoint && ar.Status.Status == "ready" {
		return nil
	}

	ar.Status.AgentEndpoint = endpoint
	ar.Status.Status = "ready"
	if err := r.Status().Update(ctx, ar); err != nil {
		return fmt.Errorf("k8sadapter: update agentruntime status: %w", err)
	}
	return nil
}
