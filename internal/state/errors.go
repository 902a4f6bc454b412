package state

import "errors"

var (
	ErrConflict        = errors.New("channel held by another owner")
	ErrEmergencyActive = errors.New("emergency mode active")
	ErrBusy            = errors.New("channel busy")
	ErrForbidden       = errors.New("forbidden")
	ErrNoZones         = errors.New("at least one zone required")
	ErrInvalidKind     = errors.New("invalid task kind")
	ErrTaskNotFound    = errors.New("task not found")
)
