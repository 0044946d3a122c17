package status

import "errors"

var (
	ErrAuthFailed         = errors.New("auth: missing or invalid identity")
	ErrNotAuthenticated   = errors.New("auth: authentication required")
	ErrAccessDenied       = errors.New("auth: access denied")
	ErrPatientNotFound    = errors.New("queue: patient not found")
	ErrDuplicateEntry     = errors.New("queue: patient already waiting for this doctor")
	ErrCapacityExceeded   = errors.New("queue: doctor queue is full")
	ErrUnknownMessageType = errors.New("dispatch: unknown message type")
	ErrInvalidPayload     = errors.New("dispatch: invalid message payload")
	ErrPersistence        = errors.New("persistence: save failed")
)

// Code maps an error to the wire-level error code sent back to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return "AUTH_FAILED"
	case errors.Is(err, ErrNotAuthenticated):
		return "NOT_AUTHENTICATED"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrPatientNotFound):
		return "PATIENT_NOT_FOUND"
	case errors.Is(err, ErrDuplicateEntry):
		return "DUPLICATE_ENTRY"
	case errors.Is(err, ErrCapacityExceeded):
		return "QUEUE_FULL"
	case errors.Is(err, ErrUnknownMessageType):
		return "UNKNOWN_MESSAGE_TYPE"
	case errors.Is(err, ErrInvalidPayload):
		return "INVALID_JSON"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}
