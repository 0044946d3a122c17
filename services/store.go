package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clinic-queue/config"
	"clinic-queue/internal/status"
	"clinic-queue/models"
	"clinic-queue/monitoring"
)

// QueueStore is the authoritative in-memory queue state. All mutations
// to one doctor's queue are serialized behind that doctor's own mutex;
// persistence writes happen off the request path and never roll back an
// applied mutation.
type QueueStore struct {
	cfg     *config.Config
	store   Store
	monitor *monitoring.Monitor

	mu     sync.RWMutex
	queues map[string]*doctorQueue

	saves        sync.WaitGroup
	totalUpdates int64
}

type doctorQueue struct {
	mu sync.Mutex
	q  models.DoctorQueue
}

func NewQueueStore(cfg *config.Config, store Store, monitor *monitoring.Monitor) *QueueStore {
	return &QueueStore{
		cfg:     cfg,
		store:   store,
		monitor: monitor,
		queues:  make(map[string]*doctorQueue),
	}
}

// Load rebuilds all queues from the persistence gateway. It runs once,
// before the server accepts traffic.
func (s *QueueStore) Load(ctx context.Context) error {
	queues, err := s.store.LoadAllQueues(ctx)
	if err != nil {
		return fmt.Errorf("restore queue state: %w", err)
	}

	s.mu.Lock()
	for doctorID, q := range queues {
		s.queues[doctorID] = &doctorQueue{q: q}
	}
	s.mu.Unlock()

	log.Printf("Restored %d doctor queues from persistence", len(queues))
	return nil
}

func (s *QueueStore) getOrCreate(doctorID string) *doctorQueue {
	s.mu.RLock()
	dq, ok := s.queues[doctorID]
	s.mu.RUnlock()
	if ok {
		return dq
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dq, ok := s.queues[doctorID]; ok {
		return dq
	}

	now := time.Now()
	dq = &doctorQueue{q: models.DoctorQueue{
		Metadata: models.QueueMetadata{
			DoctorID:    doctorID,
			Created:     now,
			LastUpdated: now,
		},
	}}
	s.queues[doctorID] = dq
	return dq
}

func (s *QueueStore) get(doctorID string) (*doctorQueue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dq, ok := s.queues[doctorID]
	return dq, ok
}

// AddPatient enqueues a patient for a doctor. Emergency entries go to
// the head of the priority sequence, ahead of previously admitted
// emergencies; everything else appends to the regular tail.
func (s *QueueStore) AddPatient(doctorID, patientID, appointmentType, priority string) (models.AddResult, error) {
	if appointmentType == "" {
		appointmentType = "consultation"
	}
	if priority != models.PriorityEmergency {
		priority = models.PriorityRegular
	}

	dq := s.getOrCreate(doctorID)

	dq.mu.Lock()
	defer dq.mu.Unlock()

	if dq.q.Len() >= s.cfg.MaxQueuesPerDoctor {
		s.monitor.TrackQueueOperation("add", doctorID, "rejected")
		return models.AddResult{}, fmt.Errorf("%w: maximum %d patients per doctor", status.ErrCapacityExceeded, s.cfg.MaxQueuesPerDoctor)
	}

	if indexOf(dq.q.Priority, patientID) >= 0 || indexOf(dq.q.Regular, patientID) >= 0 {
		s.monitor.TrackQueueOperation("add", doctorID, "rejected")
		return models.AddResult{}, fmt.Errorf("%w: patient %s", status.ErrDuplicateEntry, patientID)
	}

	now := time.Now()
	estimate := EstimateByClass(len(dq.q.Priority), len(dq.q.Regular), priority,
		s.cfg.AvgTriageTime, s.cfg.AvgConsultationTime)

	entry := models.QueueEntry{
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentType: appointmentType,
		Priority:        priority,
		JoinedAt:        now,
		Status:          models.StatusWaiting,
		EstimatedWait:   estimate,
	}

	if priority == models.PriorityEmergency {
		dq.q.Priority = append([]models.QueueEntry{entry}, dq.q.Priority...)
	} else {
		dq.q.Regular = append(dq.q.Regular, entry)
	}
	dq.q.Metadata.LastUpdated = now

	s.persistAsync(doctorID, dq.q.Clone())
	s.monitor.TrackQueueOperation("add", doctorID, "success")
	atomic.AddInt64(&s.totalUpdates, 1)

	position, _ := positionLocked(&dq.q, patientID)
	return models.AddResult{
		Position:          position,
		EstimatedWaitTime: estimate.Milliseconds(),
		QueueID:           fmt.Sprintf("%s_%d", doctorID, now.UnixMilli()),
	}, nil
}

// RemovePatient takes a patient out of the queue. Returns false, with
// no mutation and no persistence write, when the patient is not waiting.
func (s *QueueStore) RemovePatient(doctorID, patientID, reason string) bool {
	dq, ok := s.get(doctorID)
	if !ok {
		return false
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()

	if i := indexOf(dq.q.Priority, patientID); i >= 0 {
		dq.q.Priority = append(dq.q.Priority[:i], dq.q.Priority[i+1:]...)
	} else if i := indexOf(dq.q.Regular, patientID); i >= 0 {
		dq.q.Regular = append(dq.q.Regular[:i], dq.q.Regular[i+1:]...)
	} else {
		return false
	}

	dq.q.Metadata.LastUpdated = time.Now()

	s.persistAsync(doctorID, dq.q.Clone())
	s.monitor.TrackQueueOperation("remove", doctorID, "success")
	atomic.AddInt64(&s.totalUpdates, 1)

	return true
}

// UpdatePriority moves a patient across the priority/regular boundary.
// Escalation re-inserts at the head of the priority sequence, demotion
// at the tail of the regular sequence; relative order from the old
// class is never preserved.
func (s *QueueStore) UpdatePriority(doctorID, patientID, newPriority string) error {
	if newPriority != models.PriorityEmergency {
		newPriority = models.PriorityRegular
	}

	dq, ok := s.get(doctorID)
	if !ok {
		return fmt.Errorf("%w: patient %s", status.ErrPatientNotFound, patientID)
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()

	var entry models.QueueEntry
	if i := indexOf(dq.q.Priority, patientID); i >= 0 {
		entry = dq.q.Priority[i]
		dq.q.Priority = append(dq.q.Priority[:i], dq.q.Priority[i+1:]...)
	} else if i := indexOf(dq.q.Regular, patientID); i >= 0 {
		entry = dq.q.Regular[i]
		dq.q.Regular = append(dq.q.Regular[:i], dq.q.Regular[i+1:]...)
	} else {
		return fmt.Errorf("%w: patient %s", status.ErrPatientNotFound, patientID)
	}

	entry.Priority = newPriority
	if newPriority == models.PriorityEmergency {
		dq.q.Priority = append([]models.QueueEntry{entry}, dq.q.Priority...)
	} else {
		dq.q.Regular = append(dq.q.Regular, entry)
	}
	dq.q.Metadata.LastUpdated = time.Now()

	s.persistAsync(doctorID, dq.q.Clone())
	s.monitor.TrackQueueOperation("update_priority", doctorID, "success")
	atomic.AddInt64(&s.totalUpdates, 1)

	return nil
}

// PositionOf returns the patient's 1-based position across the combined
// priority-then-regular ordering.
func (s *QueueStore) PositionOf(doctorID, patientID string) (int, bool) {
	dq, ok := s.get(doctorID)
	if !ok {
		return 0, false
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()
	return positionLocked(&dq.q, patientID)
}

// Snapshot returns a deep copy of a doctor's queue for read-only use.
func (s *QueueStore) Snapshot(doctorID string) (models.DoctorQueue, bool) {
	dq, ok := s.get(doctorID)
	if !ok {
		return models.DoctorQueue{}, false
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.q.Clone(), true
}

// Doctors lists every doctor with a queue, empty or not.
func (s *QueueStore) Doctors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.queues))
	for doctorID := range s.queues {
		ids = append(ids, doctorID)
	}
	return ids
}

// RecomputeEstimates refreshes each entry's cached estimate from its
// current combined position. Cached values are advisory; display paths
// still recompute on read.
func (s *QueueStore) RecomputeEstimates(doctorID string) {
	dq, ok := s.get(doctorID)
	if !ok {
		return
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()

	position := 1
	for i := range dq.q.Priority {
		dq.q.Priority[i].EstimatedWait = EstimateByPosition(position, s.cfg.AvgConsultationTime)
		position++
	}
	for i := range dq.q.Regular {
		dq.q.Regular[i].EstimatedWait = EstimateByPosition(position, s.cfg.AvgConsultationTime)
		position++
	}
}

// QueueSizes reports per-class entry counts for metrics collection.
func (s *QueueStore) QueueSizes() map[string]monitoring.QueueSizes {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sizes := make(map[string]monitoring.QueueSizes, len(s.queues))
	for doctorID, dq := range s.queues {
		dq.mu.Lock()
		sizes[doctorID] = monitoring.QueueSizes{
			Priority: len(dq.q.Priority),
			Regular:  len(dq.q.Regular),
		}
		dq.mu.Unlock()
	}
	return sizes
}

func (s *QueueStore) TotalUpdates() int64 {
	return atomic.LoadInt64(&s.totalUpdates)
}

// Flush waits for in-flight async saves and then writes every queue
// synchronously. Called once on graceful shutdown.
func (s *QueueStore) Flush(ctx context.Context) error {
	s.saves.Wait()

	var errs []error
	for _, doctorID := range s.Doctors() {
		snapshot, ok := s.Snapshot(doctorID)
		if !ok {
			continue
		}
		if err := s.store.SaveQueue(ctx, doctorID, snapshot); err != nil {
			slog.Error("Failed to flush queue", "error", err, "doctor_id", doctorID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// persistAsync snapshots are saved off the request path. A failed save
// is logged and counted; the in-memory mutation stands and the next
// mutation to the same doctor re-saves full state anyway.
func (s *QueueStore) persistAsync(doctorID string, snapshot models.DoctorQueue) {
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.store.SaveQueue(ctx, doctorID, snapshot); err != nil {
			slog.Error("Failed to persist queue", "error", err, "doctor_id", doctorID, "queue_size", snapshot.Len())
			s.monitor.TrackPersistenceFailure()
		}
	}()
}

func indexOf(entries []models.QueueEntry, patientID string) int {
	for i := range entries {
		if entries[i].PatientID == patientID {
			return i
		}
	}
	return -1
}

func positionLocked(q *models.DoctorQueue, patientID string) (int, bool) {
	if i := indexOf(q.Priority, patientID); i >= 0 {
		return i + 1, true
	}
	if i := indexOf(q.Regular, patientID); i >= 0 {
		return len(q.Priority) + i + 1, true
	}
	return 0, false
}
