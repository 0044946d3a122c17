package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"clinic-queue/config"
	"clinic-queue/internal/status"
	"clinic-queue/models"
	"clinic-queue/monitoring"
	"clinic-queue/utils"
)

// IdentityVerifier is the external identity collaborator. Token
// issuance and validation live outside this service; the dispatcher
// only consumes the verdict.
type IdentityVerifier interface {
	Verify(userID, role, token string) error
}

// StaticVerifier accepts any non-empty identity. Stands in for the
// real identity service in development and tests.
type StaticVerifier struct{}

func (StaticVerifier) Verify(userID, role, token string) error {
	if userID == "" || role == "" {
		return status.ErrAuthFailed
	}
	return nil
}

// Dispatcher parses inbound envelopes, enforces the per-connection auth
// state machine and role matrix, routes to the queue store, and
// replies/broadcasts. Handler errors go back to the originating
// connection only.
type Dispatcher struct {
	registry *Registry
	queues   *QueueStore
	router   *Router
	store    Store
	verifier IdentityVerifier
	cfg      *config.Config
	monitor  *monitoring.Monitor

	// Serializes mutation+broadcast per doctor so subscribers observe
	// queue_updated events in applied order.
	opMu    sync.Mutex
	opLocks map[string]*sync.Mutex
}

func NewDispatcher(registry *Registry, queues *QueueStore, router *Router, store Store, verifier IdentityVerifier, cfg *config.Config, monitor *monitoring.Monitor) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queues:   queues,
		router:   router,
		store:    store,
		verifier: verifier,
		cfg:      cfg,
		monitor:  monitor,
		opLocks:  make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) doctorLock(doctorID string) *sync.Mutex {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	lock, ok := d.opLocks[doctorID]
	if !ok {
		lock = &sync.Mutex{}
		d.opLocks[doctorID] = lock
	}
	return lock
}

// HandleMessage processes one inbound frame from a connection. Unknown
// or malformed messages produce an error reply, never a dropped
// connection.
func (d *Dispatcher) HandleMessage(clientID string, raw []byte) {
	client, ok := d.registry.Get(clientID)
	if !ok {
		return
	}

	d.registry.Touch(clientID)

	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		d.sendError(client, fmt.Errorf("%w: %v", status.ErrInvalidPayload, err))
		return
	}

	var err error
	switch envelope.Type {
	case models.MsgAuthenticate:
		err = d.handleAuthenticate(client, envelope.Data)
	case models.MsgSubscribeQueue:
		err = d.handleSubscribe(client, envelope.Data)
	case models.MsgAddPatient:
		err = d.handleAddPatient(client, envelope.Data)
	case models.MsgRemovePatient:
		err = d.handleRemovePatient(client, envelope.Data)
	case models.MsgUpdatePriority:
		err = d.handleUpdatePriority(client, envelope.Data)
	case models.MsgGetQueueView:
		err = d.handleGetQueueView(client, envelope.Data)
	case models.MsgGetPosition:
		err = d.handleGetPosition(client, envelope.Data)
	case models.MsgHeartbeat:
		err = d.handleHeartbeat(client)
	default:
		err = fmt.Errorf("%w: %s", status.ErrUnknownMessageType, envelope.Type)
	}

	if err != nil {
		d.sendError(client, err)
	}
}

// HandleDisconnect runs the shared cleanup path for graceful closes,
// transport errors, and liveness evictions alike.
func (d *Dispatcher) HandleDisconnect(clientID string) {
	subscriptions, existed := d.registry.Remove(clientID)
	if !existed {
		return
	}

	d.router.RemoveConnection(clientID, subscriptions)
	log.Printf("Queue client disconnected: %s", clientID)
}

func (d *Dispatcher) handleAuthenticate(client *Client, data json.RawMessage) error {
	var req models.AuthenticateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	if err := d.verifier.Verify(req.UserID, req.UserRole, req.AuthToken); err != nil {
		return err
	}

	if err := d.registry.Authenticate(client.ID, req.UserID, req.UserRole); err != nil {
		return err
	}

	log.Printf("Client authenticated: %s (%s)", req.UserID, req.UserRole)
	return d.reply(client, models.MsgAuthSuccess, models.AuthSuccess{
		UserID:     req.UserID,
		UserRole:   req.UserRole,
		ServerTime: time.Now().UnixMilli(),
	})
}

func (d *Dispatcher) handleSubscribe(client *Client, data json.RawMessage) error {
	if err := d.requireAuth(client); err != nil {
		return err
	}

	var req models.SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	return d.router.Subscribe(client, req.DoctorID, req.PatientID)
}

func (d *Dispatcher) handleAddPatient(client *Client, data json.RawMessage) error {
	if err := d.requireStaff(client); err != nil {
		return err
	}

	var req models.AddPatientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	lock := d.doctorLock(req.DoctorID)
	lock.Lock()
	defer lock.Unlock()

	result, err := d.queues.AddPatient(req.DoctorID, req.PatientID, req.AppointmentType, req.Priority)
	if err != nil {
		return err
	}

	d.router.BroadcastQueueUpdate(req.DoctorID, "patient_added", map[string]any{
		"patientId":         utils.HashID(req.PatientID),
		"position":          result.Position,
		"estimatedWaitTime": result.EstimatedWaitTime,
	})

	if req.Priority == models.PriorityEmergency {
		d.router.BroadcastEmergencyAlert(req.DoctorID, req.PatientID)
	}

	userID, _, _ := client.Identity()
	snapshot, _ := d.queues.Snapshot(req.DoctorID)
	d.audit("patient_added_to_queue", map[string]any{
		"userId":          userID,
		"doctorId":        utils.HashID(req.DoctorID),
		"appointmentType": req.AppointmentType,
		"priority":        req.Priority,
		"queueSize":       snapshot.Len(),
	})

	return d.reply(client, models.MsgPatientAddedSuccess, result)
}

func (d *Dispatcher) handleRemovePatient(client *Client, data json.RawMessage) error {
	if err := d.requireStaff(client); err != nil {
		return err
	}

	var req models.RemovePatientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	lock := d.doctorLock(req.DoctorID)
	lock.Lock()
	defer lock.Unlock()

	if !d.queues.RemovePatient(req.DoctorID, req.PatientID, req.Reason) {
		return fmt.Errorf("%w: patient %s", status.ErrPatientNotFound, req.PatientID)
	}

	d.router.BroadcastQueueUpdate(req.DoctorID, "patient_removed", map[string]any{
		"patientId": utils.HashID(req.PatientID),
		"reason":    req.Reason,
	})

	userID, _, _ := client.Identity()
	snapshot, _ := d.queues.Snapshot(req.DoctorID)
	d.audit("patient_removed_from_queue", map[string]any{
		"userId":    userID,
		"doctorId":  utils.HashID(req.DoctorID),
		"reason":    req.Reason,
		"queueSize": snapshot.Len(),
	})

	return d.reply(client, models.MsgPatientRemovedSuccess, models.PatientRemoved{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
	})
}

func (d *Dispatcher) handleUpdatePriority(client *Client, data json.RawMessage) error {
	if err := d.requireStaff(client); err != nil {
		return err
	}

	var req models.UpdatePriorityRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	lock := d.doctorLock(req.DoctorID)
	lock.Lock()
	defer lock.Unlock()

	if err := d.queues.UpdatePriority(req.DoctorID, req.PatientID, req.NewPriority); err != nil {
		return err
	}

	if req.NewPriority == models.PriorityEmergency {
		d.router.BroadcastEmergencyAlert(req.DoctorID, req.PatientID)
	}

	d.router.BroadcastQueueUpdate(req.DoctorID, "priority_updated", map[string]any{
		"patientId":   utils.HashID(req.PatientID),
		"newPriority": req.NewPriority,
	})

	userID, _, _ := client.Identity()
	d.audit("patient_priority_updated", map[string]any{
		"userId":      userID,
		"doctorId":    utils.HashID(req.DoctorID),
		"newPriority": req.NewPriority,
	})

	return d.reply(client, models.MsgPriorityUpdatedSuccess, models.PriorityUpdated{
		PatientID:   req.PatientID,
		NewPriority: req.NewPriority,
	})
}

func (d *Dispatcher) handleGetQueueView(client *Client, data json.RawMessage) error {
	if err := d.requireAuth(client); err != nil {
		return err
	}

	var req models.QueueViewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	userID, role, _ := client.Identity()
	return d.reply(client, models.MsgQueueViewResponse, models.QueueViewResponse{
		DoctorID:  req.DoctorID,
		QueueView: d.router.QueueViewFor(req.DoctorID, role, userID),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (d *Dispatcher) handleGetPosition(client *Client, data json.RawMessage) error {
	if err := d.requireAuth(client); err != nil {
		return err
	}

	var req models.PositionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	userID, role, _ := client.Identity()
	if role == models.RolePatient && req.PatientID != userID {
		return status.ErrAccessDenied
	}

	response := models.PositionResponse{
		PatientID: req.PatientID,
		Timestamp: time.Now().UnixMilli(),
	}
	if position, ok := d.queues.PositionOf(req.DoctorID, req.PatientID); ok {
		response.InQueue = true
		response.Position = position
		response.EstimatedWaitTime = EstimateByPosition(position, d.cfg.AvgConsultationTime).Milliseconds()
	}

	return d.reply(client, models.MsgPositionResponse, response)
}

func (d *Dispatcher) handleHeartbeat(client *Client) error {
	return d.reply(client, models.MsgHeartbeatResponse, models.HeartbeatResponse{
		ServerTime: time.Now().UnixMilli(),
		ClientID:   client.ID,
	})
}

func (d *Dispatcher) requireAuth(client *Client) error {
	if _, _, authenticated := client.Identity(); !authenticated {
		return status.ErrNotAuthenticated
	}
	return nil
}

func (d *Dispatcher) requireStaff(client *Client) error {
	_, role, authenticated := client.Identity()
	if !authenticated {
		return status.ErrNotAuthenticated
	}
	if role != models.RoleDoctor && role != models.RoleAdmin {
		return status.ErrAccessDenied
	}
	return nil
}

func (d *Dispatcher) reply(client *Client, msgType string, payload any) error {
	msg, err := models.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	client.TrySend(msg)
	return nil
}

func (d *Dispatcher) sendError(client *Client, err error) {
	msg, encErr := models.NewEnvelope(models.MsgError, models.ErrorMessage{
		Code:      status.Code(err),
		Message:   err.Error(),
		Timestamp: time.Now().UnixMilli(),
	})
	if encErr != nil {
		log.Printf("Error encoding error reply for client %s: %v", client.ID, encErr)
		return
	}
	client.TrySend(msg)
}

// audit writes are fire-and-forget; a lost entry is logged and counted
// but never fails the operation it records.
func (d *Dispatcher) audit(eventType string, data map[string]any) {
	event := models.AuditEvent{
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.store.SaveAuditEntry(ctx, event); err != nil {
			slog.Error("Failed to write audit event", "error", err, "event_type", eventType)
			d.monitor.TrackPersistenceFailure()
		}
	}()
}
