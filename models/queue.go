package models

import (
	"time"
)

// User roles carried on an authenticated connection.
const (
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
	RolePatient = "patient"
)

// Queue entry priorities.
const (
	PriorityRegular   = "regular"
	PriorityEmergency = "emergency"
)

// Queue entry statuses.
const (
	StatusWaiting = "waiting"
	StatusCalled  = "called"
	StatusRemoved = "removed"
)

// QueueEntry is one patient waiting for one doctor.
type QueueEntry struct {
	PatientID       string        `json:"patient_id"`
	DoctorID        string        `json:"doctor_id"`
	AppointmentType string        `json:"appointment_type"`
	Priority        string        `json:"priority"`
	JoinedAt        time.Time     `json:"joined_at"`
	Status          string        `json:"status"`
	EstimatedWait   time.Duration `json:"estimated_wait"` // advisory, recomputed on read
}

// QueueMetadata is bookkeeping persisted alongside the queue entries.
type QueueMetadata struct {
	DoctorID    string    `json:"doctor_id"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
}

// DoctorQueue holds both ordered sub-queues for one doctor. Emergency
// patients live in Priority (newest emergency at the head), everyone
// else in Regular (strict FIFO). Display ordering is Priority then
// Regular.
type DoctorQueue struct {
	Priority []QueueEntry  `json:"priority"`
	Regular  []QueueEntry  `json:"regular"`
	Metadata QueueMetadata `json:"metadata"`
}

// Len returns the total number of waiting patients across both sub-queues.
func (q *DoctorQueue) Len() int {
	return len(q.Priority) + len(q.Regular)
}

// Combined returns the display ordering: priority entries followed by
// regular entries. The returned slice is freshly allocated.
func (q *DoctorQueue) Combined() []QueueEntry {
	combined := make([]QueueEntry, 0, q.Len())
	combined = append(combined, q.Priority...)
	combined = append(combined, q.Regular...)
	return combined
}

// Clone returns a deep copy, safe to hand out while the owning store
// keeps mutating the original.
func (q *DoctorQueue) Clone() DoctorQueue {
	cp := DoctorQueue{
		Priority: make([]QueueEntry, len(q.Priority)),
		Regular:  make([]QueueEntry, len(q.Regular)),
		Metadata: q.Metadata,
	}
	copy(cp.Priority, q.Priority)
	copy(cp.Regular, q.Regular)
	return cp
}

// AddResult is what an accepted add_patient_to_queue request returns to
// the caller before any broadcast goes out.
type AddResult struct {
	Position          int    `json:"position"`
	EstimatedWaitTime int64  `json:"estimatedWaitTime"` // milliseconds
	QueueID           string `json:"queueId"`
}

// QueueViewEntry is one row of the doctor/admin-facing queue view. The
// patient id is a one-way hash, never the raw identifier.
type QueueViewEntry struct {
	Position          int    `json:"position"`
	PatientIDHash     string `json:"patientIdHash"`
	AppointmentType   string `json:"appointmentType"`
	Priority          string `json:"priority"`
	WaitingTime       int64  `json:"waitTime"`          // milliseconds since join
	EstimatedWaitTime int64  `json:"estimatedWaitTime"` // milliseconds
	Status            string `json:"status"`
}

// DoctorQueueView is the full queue view for doctor/admin subscribers.
type DoctorQueueView struct {
	TotalPatients    int              `json:"totalPatients"`
	PriorityPatients int              `json:"priorityPatients"`
	RegularPatients  int              `json:"regularPatients"`
	Queue            []QueueViewEntry `json:"queue"`
	LastUpdated      int64            `json:"lastUpdated"`
}

// PatientQueueView is the filtered view a patient-role subscriber
// receives: their own position and estimate, nothing about anyone else.
type PatientQueueView struct {
	InQueue           bool   `json:"inQueue"`
	Position          int    `json:"position,omitempty"`
	EstimatedWaitTime int64  `json:"estimatedWaitTime,omitempty"` // milliseconds
	TotalPatients     int    `json:"totalPatients,omitempty"`
	Message           string `json:"message,omitempty"`
	LastUpdated       int64  `json:"lastUpdated,omitempty"`
}

// AuditEvent is the append-only record written for every mutating
// queue operation. Identifiers inside Data are hashed by the caller.
type AuditEvent struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// ServerMetrics is the point-in-time operational snapshot exposed on
// the health endpoint.
type ServerMetrics struct {
	TotalUpdates     int64 `json:"totalUpdates"`
	ActiveQueues     int   `json:"activeQueues"`
	ConnectedClients int   `json:"connectedClients"`
	Subscriptions    int   `json:"subscriptions"`
	UptimeMillis     int64 `json:"uptime"`
}
