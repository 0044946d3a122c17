package services

import (
	"context"
	"testing"

	"clinic-queue/internal/status"
	"clinic-queue/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueStore_AddRegularThenEmergency(t *testing.T) {
	store, _ := newTestQueueStore(t)

	resultA, err := store.AddPatient("doc-1", "patient-a", "consultation", models.PriorityRegular)
	require.NoError(t, err)
	assert.Equal(t, 1, resultA.Position)
	assert.Equal(t, int64(0), resultA.EstimatedWaitTime)

	resultB, err := store.AddPatient("doc-1", "patient-b", "consultation", models.PriorityEmergency)
	require.NoError(t, err)
	assert.Equal(t, 1, resultB.Position)

	posA, ok := store.PositionOf("doc-1", "patient-a")
	require.True(t, ok)
	assert.Equal(t, 2, posA)

	posB, ok := store.PositionOf("doc-1", "patient-b")
	require.True(t, ok)
	assert.Equal(t, 1, posB)

	require.True(t, store.RemovePatient("doc-1", "patient-a", "called"))

	posB, ok = store.PositionOf("doc-1", "patient-b")
	require.True(t, ok)
	assert.Equal(t, 1, posB)

	snapshot, ok := store.Snapshot("doc-1")
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.Len())
}

func TestQueueStore_EmergencyAdmissionGoesToHead(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "em-1", "consultation", models.PriorityEmergency)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "em-2", "consultation", models.PriorityEmergency)
	require.NoError(t, err)

	// Newest emergency displaces older ones; older emergencies keep
	// their relative order.
	snapshot, _ := store.Snapshot("doc-1")
	require.Len(t, snapshot.Priority, 2)
	assert.Equal(t, "em-2", snapshot.Priority[0].PatientID)
	assert.Equal(t, "em-1", snapshot.Priority[1].PatientID)
}

func TestQueueStore_PositionsConsistentNoGaps(t *testing.T) {
	store, _ := newTestQueueStore(t)

	patients := []struct{ id, priority string }{
		{"p-1", models.PriorityRegular},
		{"p-2", models.PriorityEmergency},
		{"p-3", models.PriorityRegular},
		{"p-4", models.PriorityEmergency},
		{"p-5", models.PriorityRegular},
	}
	for _, p := range patients {
		_, err := store.AddPatient("doc-1", p.id, "consultation", p.priority)
		require.NoError(t, err)
	}

	snapshot, _ := store.Snapshot("doc-1")
	combined := snapshot.Combined()
	require.Len(t, combined, 5)

	seen := make(map[int]string)
	for _, entry := range combined {
		pos, ok := store.PositionOf("doc-1", entry.PatientID)
		require.True(t, ok)
		_, dup := seen[pos]
		assert.False(t, dup, "duplicate position %d", pos)
		seen[pos] = entry.PatientID
	}
	for i := 1; i <= 5; i++ {
		assert.Contains(t, seen, i, "missing position %d", i)
	}
}

func TestQueueStore_DuplicateEntryRejected(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "patient-a", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	_, err = store.AddPatient("doc-1", "patient-a", "checkup", models.PriorityEmergency)
	assert.ErrorIs(t, err, status.ErrDuplicateEntry)

	// Same patient may wait for a different doctor.
	_, err = store.AddPatient("doc-2", "patient-a", "consultation", models.PriorityRegular)
	assert.NoError(t, err)
}

func TestQueueStore_CapacityExceededLeavesQueueUnchanged(t *testing.T) {
	store, _ := newTestQueueStore(t)
	store.cfg.MaxQueuesPerDoctor = 2

	_, err := store.AddPatient("doc-1", "p-1", "consultation", models.PriorityRegular)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "p-2", "consultation", models.PriorityEmergency)
	require.NoError(t, err)

	before, _ := store.Snapshot("doc-1")

	_, err = store.AddPatient("doc-1", "p-3", "consultation", models.PriorityRegular)
	assert.ErrorIs(t, err, status.ErrCapacityExceeded)

	after, _ := store.Snapshot("doc-1")
	assert.Equal(t, before.Combined(), after.Combined())
	assert.Equal(t, 2, after.Len())
}

func TestQueueStore_RemoveAbsentPatient(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "patient-a", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	updatesBefore := store.TotalUpdates()
	assert.False(t, store.RemovePatient("doc-1", "ghost", "called"))
	assert.False(t, store.RemovePatient("doc-2", "patient-a", "called"))

	// No mutation happened.
	assert.Equal(t, updatesBefore, store.TotalUpdates())
	snapshot, _ := store.Snapshot("doc-1")
	assert.Equal(t, 1, snapshot.Len())
}

func TestQueueStore_UpdatePriorityEscalation(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "em-1", "consultation", models.PriorityEmergency)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "reg-1", "consultation", models.PriorityRegular)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "reg-2", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	require.NoError(t, store.UpdatePriority("doc-1", "reg-2", models.PriorityEmergency))

	snapshot, _ := store.Snapshot("doc-1")
	require.Len(t, snapshot.Priority, 2)
	require.Len(t, snapshot.Regular, 1)

	// Escalated entry re-inserts at the head of the priority sequence,
	// ahead of every regular entry; remaining regulars keep FIFO order.
	assert.Equal(t, "reg-2", snapshot.Priority[0].PatientID)
	assert.Equal(t, "em-1", snapshot.Priority[1].PatientID)
	assert.Equal(t, "reg-1", snapshot.Regular[0].PatientID)
	assert.Equal(t, models.PriorityEmergency, snapshot.Priority[0].Priority)

	pos, ok := store.PositionOf("doc-1", "reg-2")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestQueueStore_UpdatePriorityDemotion(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "em-1", "consultation", models.PriorityEmergency)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "reg-1", "consultation", models.PriorityRegular)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "em-2", "consultation", models.PriorityEmergency)
	require.NoError(t, err)

	require.NoError(t, store.UpdatePriority("doc-1", "em-2", models.PriorityRegular))

	// Demotion appends at the regular tail: old relative order is not
	// preserved across the boundary.
	snapshot, _ := store.Snapshot("doc-1")
	require.Len(t, snapshot.Priority, 1)
	require.Len(t, snapshot.Regular, 2)
	assert.Equal(t, "em-1", snapshot.Priority[0].PatientID)
	assert.Equal(t, "reg-1", snapshot.Regular[0].PatientID)
	assert.Equal(t, "em-2", snapshot.Regular[1].PatientID)
	assert.Equal(t, models.PriorityRegular, snapshot.Regular[1].Priority)
}

func TestQueueStore_UpdatePriorityNotFound(t *testing.T) {
	store, _ := newTestQueueStore(t)

	err := store.UpdatePriority("doc-1", "ghost", models.PriorityEmergency)
	assert.ErrorIs(t, err, status.ErrPatientNotFound)

	_, err = store.AddPatient("doc-1", "patient-a", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	err = store.UpdatePriority("doc-1", "ghost", models.PriorityEmergency)
	assert.ErrorIs(t, err, status.ErrPatientNotFound)
}

func TestQueueStore_SnapshotIsDeepCopy(t *testing.T) {
	store, _ := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "patient-a", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	snapshot, ok := store.Snapshot("doc-1")
	require.True(t, ok)

	snapshot.Regular[0].PatientID = "mutated"

	fresh, _ := store.Snapshot("doc-1")
	assert.Equal(t, "patient-a", fresh.Regular[0].PatientID)
}

func TestQueueStore_PersistenceRoundTrip(t *testing.T) {
	store, backend := newTestQueueStore(t)

	_, err := store.AddPatient("doc-1", "em-1", "consultation", models.PriorityEmergency)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-1", "reg-1", "checkup", models.PriorityRegular)
	require.NoError(t, err)
	_, err = store.AddPatient("doc-2", "reg-2", "consultation", models.PriorityRegular)
	require.NoError(t, err)

	require.NoError(t, store.Flush(context.Background()))

	// Simulated restart: a fresh store rebuilt from the same backend.
	restarted := NewQueueStore(testConfig(), backend, testMonitor)
	require.NoError(t, restarted.Load(context.Background()))

	for _, doctorID := range []string{"doc-1", "doc-2"} {
		want, ok := store.Snapshot(doctorID)
		require.True(t, ok)
		got, ok := restarted.Snapshot(doctorID)
		require.True(t, ok)

		require.Equal(t, len(want.Combined()), len(got.Combined()))
		for i, entry := range want.Combined() {
			restored := got.Combined()[i]
			assert.Equal(t, entry.PatientID, restored.PatientID)
			assert.Equal(t, entry.Priority, restored.Priority)
			assert.Equal(t, entry.AppointmentType, restored.AppointmentType)
			assert.WithinDuration(t, entry.JoinedAt, restored.JoinedAt, 0)
		}
	}
}
