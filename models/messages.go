package models

import "encoding/json"

// Client -> server message types.
const (
	MsgAuthenticate   = "authenticate"
	MsgSubscribeQueue = "subscribe_queue_updates"
	MsgAddPatient     = "add_patient_to_queue"
	MsgRemovePatient  = "remove_patient_from_queue"
	MsgUpdatePriority = "update_patient_priority"
	MsgGetQueueView   = "get_queue_view"
	MsgGetPosition    = "get_patient_position"
	MsgHeartbeat      = "queue_heartbeat"
)

// Server -> client message types.
const (
	MsgAuthSuccess            = "auth_success"
	MsgQueueSubscribed        = "queue_subscribed"
	MsgQueueUpdated           = "queue_updated"
	MsgQueueViewResponse      = "queue_view_response"
	MsgEmergencyAlert         = "emergency_alert"
	MsgPatientAddedSuccess    = "patient_added_success"
	MsgPatientRemovedSuccess  = "patient_removed_success"
	MsgPriorityUpdatedSuccess = "priority_updated_success"
	MsgPositionResponse       = "patient_position_response"
	MsgHeartbeatResponse      = "heartbeat_response"
	MsgError                  = "error"
)

// Envelope is the wire framing for every message in both directions.
// Data is left raw on the way in so each handler can decode its own
// payload after the type switch.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

type AuthenticateRequest struct {
	UserID    string `json:"userId"`
	UserRole  string `json:"userRole"`
	AuthToken string `json:"authToken"`
}

type SubscribeRequest struct {
	DoctorID  string `json:"doctorId"`
	PatientID string `json:"patientId,omitempty"`
}

type AddPatientRequest struct {
	PatientID       string `json:"patientId"`
	DoctorID        string `json:"doctorId"`
	AppointmentType string `json:"appointmentType"`
	Priority        string `json:"priority"`
}

type RemovePatientRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
	Reason    string `json:"reason"`
}

type UpdatePriorityRequest struct {
	PatientID   string `json:"patientId"`
	DoctorID    string `json:"doctorId"`
	NewPriority string `json:"newPriority"`
}

type QueueViewRequest struct {
	DoctorID string `json:"doctorId"`
}

type PositionRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

type AuthSuccess struct {
	UserID     string `json:"userId"`
	UserRole   string `json:"userRole"`
	ServerTime int64  `json:"serverTime"`
}

type QueueSubscribed struct {
	DoctorID  string `json:"doctorId"`
	QueueView any    `json:"queueView"`
}

type QueueUpdated struct {
	DoctorID  string `json:"doctorId"`
	EventType string `json:"eventType"`
	EventData any    `json:"eventData"`
	Timestamp int64  `json:"timestamp"`
}

type QueueViewResponse struct {
	DoctorID  string `json:"doctorId"`
	QueueView any    `json:"queueView"`
	Timestamp int64  `json:"timestamp"`
}

type EmergencyAlert struct {
	DoctorID      string `json:"doctorId"`
	PatientIDHash string `json:"patientIdHash"`
	Timestamp     int64  `json:"timestamp"`
	Message       string `json:"message"`
}

type PatientRemoved struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

type PriorityUpdated struct {
	PatientID   string `json:"patientId"`
	NewPriority string `json:"newPriority"`
}

type PositionResponse struct {
	PatientID         string `json:"patientId"`
	Position          int    `json:"position"`
	EstimatedWaitTime int64  `json:"estimatedWaitTime"` // milliseconds
	InQueue           bool   `json:"inQueue"`
	Timestamp         int64  `json:"timestamp"`
}

type HeartbeatResponse struct {
	ServerTime int64  `json:"serverTime"`
	ClientID   string `json:"clientId"`
}

type ErrorMessage struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
