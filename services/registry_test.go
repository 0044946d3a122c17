package services

import (
	"testing"
	"time"

	"clinic-queue/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAssignsUniqueIDs(t *testing.T) {
	registry := NewRegistry(4)

	a, err := registry.Register()
	require.NoError(t, err)
	b, err := registry.Register()
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, registry.Count())

	_, _, authenticated := a.Identity()
	assert.False(t, authenticated)
}

func TestRegistry_AuthenticateValidatesRole(t *testing.T) {
	registry := NewRegistry(4)

	client, err := registry.Register()
	require.NoError(t, err)

	assert.Error(t, registry.Authenticate(client.ID, "", models.RoleDoctor))
	assert.Error(t, registry.Authenticate(client.ID, "u-1", ""))
	assert.Error(t, registry.Authenticate(client.ID, "u-1", "superuser"))
	assert.Error(t, registry.Authenticate("no-such-client", "u-1", models.RoleDoctor))

	require.NoError(t, registry.Authenticate(client.ID, "u-1", models.RoleAdmin))
	userID, role, authenticated := client.Identity()
	assert.Equal(t, "u-1", userID)
	assert.Equal(t, models.RoleAdmin, role)
	assert.True(t, authenticated)

	// Re-authenticating just refreshes the identity.
	require.NoError(t, registry.Authenticate(client.ID, "u-2", models.RolePatient))
	userID, role, _ = client.Identity()
	assert.Equal(t, "u-2", userID)
	assert.Equal(t, models.RolePatient, role)
}

func TestRegistry_StaleReportsIdleClients(t *testing.T) {
	registry := NewRegistry(4)

	idle, err := registry.Register()
	require.NoError(t, err)
	active, err := registry.Register()
	require.NoError(t, err)

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	stale := registry.Stale(time.Minute)
	assert.Equal(t, []string{idle.ID}, stale)
	assert.NotContains(t, stale, active.ID)

	registry.Touch(idle.ID)
	assert.Empty(t, registry.Stale(time.Minute))
}

func TestRegistry_FailedSendMarksClientStale(t *testing.T) {
	registry := NewRegistry(1)

	client, err := registry.Register()
	require.NoError(t, err)

	assert.True(t, client.TrySend([]byte("one")))
	assert.False(t, client.TrySend([]byte("two")), "full buffer must not block")

	assert.Equal(t, []string{client.ID}, registry.Stale(time.Hour))
}

func TestRegistry_RemoveClosesOutboundAndIsIdempotent(t *testing.T) {
	registry := NewRegistry(4)

	client, err := registry.Register()
	require.NoError(t, err)
	require.NoError(t, registry.Authenticate(client.ID, "u-1", models.RoleDoctor))
	client.addSubscription("doc-1")

	subs, existed := registry.Remove(client.ID)
	require.True(t, existed)
	assert.Equal(t, []string{"doc-1"}, subs)
	assert.Zero(t, registry.Count())

	_, ok := <-client.Outbound()
	assert.False(t, ok, "outbound channel should be closed")

	assert.False(t, client.TrySend([]byte("late")), "send after close must not panic")

	_, existed = registry.Remove(client.ID)
	assert.False(t, existed)
}
