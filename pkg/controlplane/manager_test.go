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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	fakeclientset "k8s.io/client-go/kubernetes/fake"

	agentcubeapi "github.com/agentcube/agentcube/pkg/api"
	"github.com/agentcube/agentcube/pkg/common/types"
	"github.com/agentcube/agentcube/pkg/k8sadapter"
	"github.com/agentcube/agentcube/pkg/tracker"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(&k8sadapter.Adapter{}, tracker.NewInMemory(), Config{
		DefaultTTL: time.Minute,
		MaxTTL:     time.Hour,
	})
}

func TestGetSession_NotFound(t *testing.T) {
	m := testManager(t)
	_, err := m.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, agentcubeapi.KindNotFound, agentcubeapi.KindOf(err))
}

func TestGetSession_ReturnsCopyNotAlias(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	m.putSession(&types.Session{SessionID: "s1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	got, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	got.Endpoint = "mutated"

	got2, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, got2.Endpoint, "mutating a returned session must not affect manager state")
}

func TestListSessions_Pagination(t *testing.T) {
	m := testManager(t)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		m.putSession(&types.Session{SessionID: id})
	}

	all, err := m.ListSessions(context.Background(), types.ListSessionsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := m.ListSessions(context.Background(), types.ListSessionsRequest{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	empty, err := m.ListSessions(context.Background(), types.ListSessionsRequest{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteSession_UnknownReturnsNotFound(t *testing.T) {
	m := testManager(t)
	err := m.DeleteSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, agentcubeapi.KindNotFound, agentcubeapi.KindOf(err))
}

func TestDeleteSession_ReleasesTrackedResources(t *testing.T) {
	m := NewManager(&k8sadapter.Adapter{Clientset: fakeclientset.NewSimpleClientset()}, tracker.NewInMemory(), Config{
		DefaultTTL: time.Minute,
		MaxTTL:     time.Hour,
	})
	m.putSession(&types.Session{SessionID: "s1", Namespace: "ns"})
	require.NoError(t, m.tracker.Track(context.Background(), "s1", types.SandboxResource{
		Kind: types.ResourceConfigMap, Name: "cm1", Namespace: "ns",
	}))

	require.NoError(t, m.DeleteSession(context.Background(), "s1"))

	resources, err := m.tracker.GetResources(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, resources)

	_, err = m.GetSession(context.Background(), "s1")
	require.Error(t, err)
}

func TestExtendTTL_CappedAtMaxSessionDuration(t *testing.T) {
	m := testManager(t)
	created := time.Now().Add(-50 * time.Minute)
	m.putSession(&types.Session{
		SessionID: "s1",
		CreatedAt: created,
		ExpiresAt: created.Add(time.Minute),
	})

	// maxTTL is 1h, session was created 50m ago, so only 10m of extension
	// headroom remains regardless of the requested ttl.
	require.NoError(t, m.ExtendTTL(context.Background(), "s1", 30*time.Minute))

	sess, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Before(created.Add(time.Hour).Add(time.Second)))
	assert.True(t, sess.ExpiresAt.After(created.Add(59*time.Minute)))
}

func TestExtendTTL_NeverShrinksExpiry(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	farFuture := now.Add(55 * time.Minute)
	m.putSession(&types.Session{
		SessionID: "s1",
		CreatedAt: now,
		ExpiresAt: farFuture,
	})

	require.NoError(t, m.ExtendTTL(context.Background(), "s1", time.Second))

	sess, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, farFuture, sess.ExpiresAt)
}

func TestExtendTTL_UnknownSession(t *testing.T) {
	m := testManager(t)
	err := m.ExtendTTL(context.Background(), "missing", time.Minute)
	require.Error(t, err)
	assert.Equal(t, agentcubeapi.KindNotFound, agentcubeapi.KindOf(err))
}
