// Package protocol defines the wire types and rejection codes shared
// between the PA server and its panel clients.
package protocol

import "github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"

// Rejection codes returned on failed channel operations.
const (
	CodeConflict        = "conflict"
	CodeEmergencyActive = "emergency_active"
	CodeBusy            = "busy"
	CodeForbidden       = "forbidden"
	CodeNoZones         = "no_zones"
	CodeInvalidKind     = "invalid_kind"
	CodeTaskNotFound    = "task_not_found"
	CodeBadRequest      = "bad_request"
)

// Push event types delivered over the state websocket.
const (
	EventState     = "state"
	EventEmergency = "emergency"
)

// AcquireRequest asks the server for the broadcast channel.
type AcquireRequest struct {
	Kind    types.TaskKind `json:"kind"`
	Zones   []string       `json:"zones"`
	Payload types.Payload  `json:"payload,omitempty"`
}

// AcquireResponse is returned on a successful grant or resume.
type AcquireResponse struct {
	Task    *types.ChannelTask `json:"task"`
	Created bool               `json:"created"`
}

// EmergencyRequest toggles campus emergency mode.
type EmergencyRequest struct {
	Action string `json:"action"`
}

// ErrorResponse carries a rejection code and a human-readable message.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TokenRequest exchanges operator credentials for a bearer token.
type TokenRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// TokenResponse carries the issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ScheduleRequest registers a scheduled announcement.
type ScheduleRequest struct {
	Message  string   `json:"message,omitempty"`
	AudioRef string   `json:"audio_ref,omitempty"`
	Zones    []string `json:"zones"`
	At       string   `json:"at"` // RFC3339
}
