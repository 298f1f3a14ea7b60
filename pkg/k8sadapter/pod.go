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
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
)

const (
	// AuthorizedKeysMountPath is the conventional path where the
	// session's public verification material is mounted in every
	// sandbox container.
	AuthorizedKeysMountPath = "/var/run/agentcube/authorized_keys"

	sessionIDLabel = "runtime.agentcube.io/session-id"
)

// ReadPod returns the pod, or (nil, nil) if it does not exist.
func (a *Adapter) ReadPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	pod, err := a.Clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "read pod", err).
			WithContext("namespace", namespace, "name", name)
	}
	return pod, nil
}

// CreatePod renders spec into a Pod and creates it. An AlreadyExists error
// from the API is surfaced as agentcubeapi.ErrAlreadyExists so the caller
// may treat it as an idempotent re-attach.
func (a *Adapter) CreatePod(ctx context.Context, sessionID, namespace string, spec *types.PodTemplateSpec) (*corev1.Pod, error) {
	for _, m := range spec.ConfigMapMounts {
		if _, err := a.ReadConfigMap(ctx, namespace, m.Name); err != nil {
			return nil, err
		}
	}

	pod := buildPod(sessionID, namespace, spec)
	created, err := a.Clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindConflict, "pod already exists", agentcubeapi.ErrAlreadyExists).
			WithContext("namespace", namespace, "name", pod.Name)
	}
	if err != nil {
		return nil, agentcubeapi.Wrap(agentcubeapi.KindProvider, "create pod", err).
			WithContext("namespace", namespace, "name", pod.Name)
	}
	return created, nil
}

// DeletePod deletes the named pod. Returns (true, nil) if it was deleted,
// (false, nil) if it was already absent.
func (a *Adapter) DeletePod(ctx context.Context, namespace, name string) (bool, error) {
	err := a.Clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, agentcubeapi.Wrap(agentcubeapi.KindProvider, "delete pod", err).
			WithContext("namespace", namespace, "name", name)
	}
	return true, nil
}

// buildPod renders a PodTemplateSpec plus the conventional
// authorized-keys mount into a concrete corev1.Pod.
func buildPod(sessionID, namespace string, spec *types.PodTemplateSpec) *corev1.Pod {
	name := NormalizeName(sessionID)

	container := corev1.Container{
		Name:            "sandbox",
		Image:           spec.Image,
		ImagePullPolicy: pullPolicy(spec.ImagePullPolicy),
		Ports: []corev1.ContainerPort{
			{ContainerPort: spec.ContainerPort},
		},
		Resources: buildResources(spec),
	}

	if spec.Entrypoint != "" {
		cmd, args := types.SplitEntrypoint(spec.Entrypoint)
		container.Command = []string{cmd}
		container.Args = args
	}

	for k, v := range spec.Env {
		container.Env = append(container.Env, corev1.EnvVar{Name: k, Value: v})
	}

	var volumes []corev1.Volume
	for _, m := range spec.ConfigMapMounts {
		volName := "cm-" + NormalizeName(m.Name)
		volumes = append(volumes, corev1.Volume{
			Name: volName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: m.Name},
				},
			},
		})
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      volName,
			MountPath: m.MountPath,
			SubPath:   m.SubPath,
			ReadOnly:  true,
		})
	}

	// Standard authorized-keys mount: the session's public verification
	// material, sourced from a per-session ConfigMap named after it.
	authKeysVol := "authorized-keys"
	volumes = append(volumes, corev1.Volume{
		Name: authKeysVol,
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: name + "-authorized-keys"},
				Optional:             boolPtr(true),
			},
		},
	})
	container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
		Name:      authKeysVol,
		MountPath: AuthorizedKeysMountPath,
		ReadOnly:  true,
	})

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				sessionIDLabel: sessionID,
			},
		},
		Spec: corev1.PodSpec{
			Containers:    []corev1.Container{container},
			Volumes:       volumes,
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}
}

func pullPolicy(p string) corev1.PullPolicy {
	switch corev1.PullPolicy(p) {
	case corev1.PullAlways, corev1.PullIfNotPresent, corev1.PullNever:
		return corev1.PullPolicy(p)
	default:
		return corev1.PullIfNotPresent
	}
}

func buildResources(spec *types.PodTemplateSpec) corev1.ResourceRequirements {
	req := corev1.ResourceList{}
	lim := corev1.ResourceList{}
	setQuantity(req, corev1.ResourceCPU, spec.CPURequest)
	setQuantity(req, corev1.ResourceMemory, spec.MemoryRequest)
	setQuantity(lim, corev1.ResourceCPU, spec.CPULimit)
	setQuantity(lim, corev1.ResourceMemory, spec.MemoryLimit)

	r := corev1.ResourceRequirements{}
	if len(req) > 0 {
		r.Requests = req
	}
	if len(lim) > 0 {
		r.Limits = lim
	}
	return r
}

func setQuantity(rl corev1.ResourceList, name corev1.ResourceName, value string) {
	if value == "" {
		return
	}
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return
	}
	rl[name] = q
}

func boolPtr(b bool) *bool { return &b }

// PodPhaseError converts a terminated container's state into a Provider
// error carrying exitCode/reason/message.
func PodPhaseError(pod *corev1.Pod) error {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Terminated != nil {
			t := cs.State.Terminated
			return agentcubeapi.New(agentcubeapi.KindProvider, fmt.Sprintf("pod %s failed", pod.Name)).
				WithContext("exitCode", t.ExitCode, "reason", t.Reason, "message", t.Message)
		}
	}
	return agentcubeapi.New(agentcubeapi.KindProvider, fmt.Sprintf("pod %s in phase %s", pod.Name, pod.Status.Phase))
}
