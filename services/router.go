package services

import (
	"log"
	"sync"
	"time"

	"clinic-queue/config"
	"clinic-queue/internal/status"
	"clinic-queue/models"
	"clinic-queue/monitoring"
	"clinic-queue/utils"
)

// Router maintains the doctorId -> subscribers index and fans out
// role-filtered state changes. The index is derived state: it is only
// ever updated together with the client's own subscription set, and it
// owns nothing.
type Router struct {
	registry *Registry
	queues   *QueueStore
	cfg      *config.Config
	monitor  *monitoring.Monitor
	notifier AlertNotifier

	mu   sync.RWMutex
	subs map[string]map[string]struct{}
}

func NewRouter(registry *Registry, queues *QueueStore, cfg *config.Config, monitor *monitoring.Monitor, notifier AlertNotifier) *Router {
	return &Router{
		registry: registry,
		queues:   queues,
		cfg:      cfg,
		monitor:  monitor,
		notifier: notifier,
		subs:     make(map[string]map[string]struct{}),
	}
}

// Subscribe registers a client for a doctor's update stream and
// immediately sends the current role-filtered view. Patients may only
// follow their own position: naming another patient is denied.
func (r *Router) Subscribe(client *Client, doctorID, requestedPatientID string) error {
	userID, role, _ := client.Identity()

	if role == models.RolePatient && requestedPatientID != "" && requestedPatientID != userID {
		return status.ErrAccessDenied
	}

	r.mu.Lock()
	if r.subs[doctorID] == nil {
		r.subs[doctorID] = make(map[string]struct{})
	}
	r.subs[doctorID][client.ID] = struct{}{}
	r.mu.Unlock()

	client.addSubscription(doctorID)

	// The liveness sweep may remove this client concurrently. If the
	// removal read the subscription set before the add above, its
	// cleanup never saw this doctor, so roll the index entry back here.
	if _, ok := r.registry.Get(client.ID); !ok {
		client.removeSubscription(doctorID)
		r.dropFromIndex(client.ID, doctorID)
		return nil
	}

	view := r.QueueViewFor(doctorID, role, userID)
	msg, err := models.NewEnvelope(models.MsgQueueSubscribed, models.QueueSubscribed{
		DoctorID:  doctorID,
		QueueView: view,
	})
	if err != nil {
		return err
	}
	client.TrySend(msg)

	log.Printf("Client %s subscribed to queue for doctor %s", client.ID, doctorID)
	return nil
}

// Unsubscribe drops one subscription from both the index and the
// client's own set.
func (r *Router) Unsubscribe(client *Client, doctorID string) {
	client.removeSubscription(doctorID)
	r.dropFromIndex(client.ID, doctorID)
}

// RemoveConnection clears a departed client out of every doctor index
// it appeared in. Empty subscriber sets are deleted, never left behind.
func (r *Router) RemoveConnection(clientID string, subscriptions []string) {
	for _, doctorID := range subscriptions {
		r.dropFromIndex(clientID, doctorID)
	}
}

func (r *Router) dropFromIndex(clientID, doctorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subscribers, ok := r.subs[doctorID]; ok {
		delete(subscribers, clientID)
		if len(subscribers) == 0 {
			delete(r.subs, doctorID)
		}
	}
}

// DoctorsWithSubscribers lists doctors the maintenance loop should
// refresh and broadcast for.
func (r *Router) DoctorsWithSubscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.subs))
	for doctorID := range r.subs {
		ids = append(ids, doctorID)
	}
	return ids
}

// SubscriptionCount returns the number of doctors with at least one
// subscriber.
func (r *Router) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Router) subscribers(doctorID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers, ok := r.subs[doctorID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(subscribers))
	for clientID := range subscribers {
		ids = append(ids, clientID)
	}
	return ids
}

// BroadcastQueueUpdate fans a state change out to every subscriber of
// the doctor, filtered by role: doctor/admin receive the event payload
// with hashed patient ids, patients receive only their own position.
// Sends are fire-and-forget; a failed send marks that one client for
// eviction at the next sweep and never blocks the rest.
func (r *Router) BroadcastQueueUpdate(doctorID, eventType string, eventData any) {
	subscriberIDs := r.subscribers(doctorID)
	if len(subscriberIDs) == 0 {
		return
	}

	timestamp := time.Now().UnixMilli()

	staffMsg, err := models.NewEnvelope(models.MsgQueueUpdated, models.QueueUpdated{
		DoctorID:  doctorID,
		EventType: eventType,
		EventData: eventData,
		Timestamp: timestamp,
	})
	if err != nil {
		log.Printf("Error encoding queue update for doctor %s: %v", doctorID, err)
		return
	}

	for _, clientID := range subscriberIDs {
		client, ok := r.registry.Get(clientID)
		if !ok {
			continue
		}

		userID, role, _ := client.Identity()

		var msg []byte
		if role == models.RolePatient {
			msg, err = models.NewEnvelope(models.MsgQueueUpdated, models.QueueUpdated{
				DoctorID:  doctorID,
				EventType: eventType,
				EventData: r.patientView(doctorID, userID),
				Timestamp: timestamp,
			})
			if err != nil {
				continue
			}
		} else {
			msg = staffMsg
		}

		if !client.TrySend(msg) {
			log.Printf("Failed to send queue update to client %s", clientID)
		}
	}

	r.monitor.TrackBroadcast(eventType)
}

// BroadcastEmergencyAlert notifies doctor/admin subscribers only. The
// patient id crosses the transport layer as a one-way hash.
func (r *Router) BroadcastEmergencyAlert(doctorID, patientID string) {
	patientIDHash := utils.HashID(patientID)

	msg, err := models.NewEnvelope(models.MsgEmergencyAlert, models.EmergencyAlert{
		DoctorID:      doctorID,
		PatientIDHash: patientIDHash,
		Timestamp:     time.Now().UnixMilli(),
		Message:       "Emergency patient added to queue",
	})
	if err != nil {
		log.Printf("Error encoding emergency alert for doctor %s: %v", doctorID, err)
		return
	}

	for _, clientID := range r.subscribers(doctorID) {
		client, ok := r.registry.Get(clientID)
		if !ok {
			continue
		}

		if _, role, _ := client.Identity(); role == models.RoleDoctor || role == models.RoleAdmin {
			client.TrySend(msg)
		}
	}

	r.monitor.TrackBroadcast("emergency_alert")
	r.notifier.EmergencyAdmitted(doctorID, patientIDHash)
}

// QueueViewFor builds the role-filtered view of one doctor's queue.
// Estimates are always recomputed from current contents, never read
// from the cached per-entry value.
func (r *Router) QueueViewFor(doctorID, role, userID string) any {
	if role == models.RolePatient {
		return r.patientView(doctorID, userID)
	}

	now := time.Now()
	snapshot, ok := r.queues.Snapshot(doctorID)
	if !ok {
		return models.DoctorQueueView{
			Queue:       []models.QueueViewEntry{},
			LastUpdated: now.UnixMilli(),
		}
	}

	combined := snapshot.Combined()
	rows := make([]models.QueueViewEntry, 0, len(combined))
	for i, entry := range combined {
		rows = append(rows, models.QueueViewEntry{
			Position:          i + 1,
			PatientIDHash:     utils.HashID(entry.PatientID),
			AppointmentType:   entry.AppointmentType,
			Priority:          entry.Priority,
			WaitingTime:       now.Sub(entry.JoinedAt).Milliseconds(),
			EstimatedWaitTime: EstimateByPosition(i+1, r.cfg.AvgConsultationTime).Milliseconds(),
			Status:            entry.Status,
		})
	}

	return models.DoctorQueueView{
		TotalPatients:    len(combined),
		PriorityPatients: len(snapshot.Priority),
		RegularPatients:  len(snapshot.Regular),
		Queue:            rows,
		LastUpdated:      now.UnixMilli(),
	}
}

func (r *Router) patientView(doctorID, patientID string) models.PatientQueueView {
	position, ok := r.queues.PositionOf(doctorID, patientID)
	if !ok {
		return models.PatientQueueView{
			InQueue: false,
			Message: "You are not currently in the queue",
		}
	}

	snapshot, _ := r.queues.Snapshot(doctorID)
	return models.PatientQueueView{
		InQueue:           true,
		Position:          position,
		EstimatedWaitTime: EstimateByPosition(position, r.cfg.AvgConsultationTime).Milliseconds(),
		TotalPatients:     snapshot.Len(),
		LastUpdated:       time.Now().UnixMilli(),
	}
}
