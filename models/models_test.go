package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	raw, err := NewEnvelope(MsgAuthSuccess, AuthSuccess{
		UserID:     "doc-1",
		UserRole:   RoleDoctor,
		ServerTime: 1700000000000,
	})
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, MsgAuthSuccess, envelope.Type)

	var payload AuthSuccess
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "doc-1", payload.UserID)
	assert.Equal(t, RoleDoctor, payload.UserRole)
}

func TestDoctorQueue_CombinedOrdersPriorityFirst(t *testing.T) {
	queue := DoctorQueue{
		Priority: []QueueEntry{
			{PatientID: "em-2", Priority: PriorityEmergency},
			{PatientID: "em-1", Priority: PriorityEmergency},
		},
		Regular: []QueueEntry{
			{PatientID: "reg-1", Priority: PriorityRegular},
			{PatientID: "reg-2", Priority: PriorityRegular},
		},
	}

	combined := queue.Combined()
	require.Len(t, combined, 4)
	assert.Equal(t, 4, queue.Len())

	ids := make([]string, len(combined))
	for i, entry := range combined {
		ids[i] = entry.PatientID
	}
	assert.Equal(t, []string{"em-2", "em-1", "reg-1", "reg-2"}, ids)
}

func TestDoctorQueue_CloneIsIndependent(t *testing.T) {
	queue := DoctorQueue{
		Regular: []QueueEntry{{PatientID: "patient-a", Status: StatusWaiting}},
		Metadata: QueueMetadata{
			DoctorID: "doc-1",
			Created:  time.Now(),
		},
	}

	clone := queue.Clone()
	clone.Regular[0].Status = StatusRemoved
	clone.Regular = append(clone.Regular, QueueEntry{PatientID: "patient-b"})

	assert.Equal(t, StatusWaiting, queue.Regular[0].Status)
	assert.Len(t, queue.Regular, 1)
	assert.Equal(t, "doc-1", clone.Metadata.DoctorID)
}

func TestDoctorQueue_JSONRoundTrip(t *testing.T) {
	queue := DoctorQueue{
		Priority: []QueueEntry{{
			PatientID:       "patient-x",
			DoctorID:        "doc-1",
			AppointmentType: "triage",
			Priority:        PriorityEmergency,
			JoinedAt:        time.UnixMilli(1700000000000).UTC(),
			Status:          StatusWaiting,
		}},
		Regular: []QueueEntry{},
		Metadata: QueueMetadata{
			DoctorID:    "doc-1",
			Created:     time.UnixMilli(1700000000000).UTC(),
			LastUpdated: time.UnixMilli(1700000005000).UTC(),
		},
	}

	data, err := json.Marshal(queue)
	require.NoError(t, err)

	var decoded DoctorQueue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, queue, decoded)
}
