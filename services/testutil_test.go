package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"clinic-queue/config"
	"clinic-queue/models"
	"clinic-queue/monitoring"

	"github.com/stretchr/testify/require"
)

// memStore is an in-memory persistence gateway for tests.
type memStore struct {
	mu     sync.Mutex
	queues map[string]models.DoctorQueue
	audit  []models.AuditEvent
}

func newMemStore() *memStore {
	return &memStore{queues: make(map[string]models.DoctorQueue)}
}

func (s *memStore) SaveQueue(ctx context.Context, doctorID string, queue models.DoctorQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[doctorID] = queue.Clone()
	return nil
}

func (s *memStore) LoadAllQueues(ctx context.Context) (map[string]models.DoctorQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queues := make(map[string]models.DoctorQueue, len(s.queues))
	for doctorID, q := range s.queues {
		queues[doctorID] = q.Clone()
	}
	return queues, nil
}

func (s *memStore) SaveAuditEntry(ctx context.Context, event models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, event)
	return nil
}

func (s *memStore) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		MaxQueuesPerDoctor:  500,
		QueueUpdateInterval: 5 * time.Second,
		AvgConsultationTime: 15 * time.Minute,
		AvgTriageTime:       5 * time.Minute,
		ConnIdleTimeout:     60 * time.Second,
		WriteTimeout:        10 * time.Second,
		SendBufferSize:      64,
	}
}

var testMonitor = monitoring.NewMonitor()

func newTestQueueStore(t *testing.T) (*QueueStore, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewQueueStore(testConfig(), store, testMonitor), store
}

// authedClient registers and authenticates a connection in one step.
func authedClient(t *testing.T, registry *Registry, userID, role string) *Client {
	t.Helper()

	client, err := registry.Register()
	require.NoError(t, err)
	require.NoError(t, registry.Authenticate(client.ID, userID, role))
	return client
}

// receive pops the next outbound envelope from a client, failing the
// test if nothing arrives promptly.
func receive(t *testing.T, client *Client) models.Envelope {
	t.Helper()

	select {
	case raw, ok := <-client.Outbound():
		require.True(t, ok, "outbound channel closed")
		var envelope models.Envelope
		require.NoError(t, json.Unmarshal(raw, &envelope))
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return models.Envelope{}
	}
}

// tryReceive returns the next outbound envelope if one is buffered.
func tryReceive(t *testing.T, client *Client) (models.Envelope, bool) {
	t.Helper()

	select {
	case raw, ok := <-client.Outbound():
		if !ok {
			return models.Envelope{}, false
		}
		var envelope models.Envelope
		require.NoError(t, json.Unmarshal(raw, &envelope))
		return envelope, true
	default:
		return models.Envelope{}, false
	}
}

// remarshal converts an any-typed payload back into a concrete type.
func remarshal[T any](value any) (T, error) {
	var out T
	data, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func decodeData[T any](t *testing.T, envelope models.Envelope) T {
	t.Helper()

	var payload T
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	return payload
}
