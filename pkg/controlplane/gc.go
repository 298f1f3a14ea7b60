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

package controlplane

import (
	"context"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

const gcOnceTimeout = 2 * time.Minute

// garbageCollector periodically reclaims sessions whose TTL has elapsed,
// deleting their tracked cluster resources and removing them from the
// session index.
type garbageCollector struct {
	manager  *Manager
	interval time.Duration
}

func newGarbageCollector(manager *Manager, interval time.Duration) *garbageCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &garbageCollector{manager: manager, interval: interval}
}

func (gc *garbageCollector) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			klog.Info("controlplane: garbage collector stopped")
			return
		case <-ticker.C:
			gc.once()
		}
	}
}

func (gc *garbageCollector) once() {
	ctx, cancel := context.WithTimeout(context.Background(), gcOnceTimeout)
	defer cancel()

	expired := gc.manager.listExpired(gc.manager.now())
	if len(expired) == 0 {
		return
	}
	klog.Infof("controlplane: garbage collector found %d expired sessions", len(expired))

	var errs []error
	for _, sessionID := range expired {
		if err := gc.manager.DeleteSession(ctx, sessionID); err != nil {
			errs = append(errs, err)
			continue
		}
		klog.Infof("controlplane: garbage collector deleted session %s", sessionID)
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		klog.Errorf("controlplane: garbage collector run failed: %v", err)
	}
}

// listExpired returns the IDs of every session whose TTL has elapsed as
// of now.
func (m *Manager) listExpired(now time.Time) []string {
	m.lock()
	defer m.unlock()

	var ids []string
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}
