// Package client implements the control-panel side of the PA system:
// the lock gateway client, the pushed-state subscriber, the broadcast
// session state machine, the local audio executor and the siren
// controller.
package client

import (
	"context"
	"errors"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// Config holds configuration for a panel client.
type Config struct {
	ServerURL string // http(s) base URL of the PA server
	Token     string // bearer token identifying the operator
	UserID    string // operator id, must match the token subject
	UserName  string
	UserAgent string
}

// Client-side error taxonomy. Gateway responses map onto these; zone and
// device failures are raised locally before any network call.
var (
	ErrConflict          = errors.New("channel held by another owner")
	ErrEmergencyActive   = errors.New("emergency mode active")
	ErrBusy              = errors.New("channel busy")
	ErrForbidden         = errors.New("forbidden")
	ErrNoZones           = errors.New("no zones selected")
	ErrTaskNotFound      = errors.New("task not found")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrNotIdle           = errors.New("session not idle")
)

// Gateway is the channel arbitration API the session manager and the
// executor talk to. *LockGateway is the HTTP implementation.
type Gateway interface {
	Acquire(ctx context.Context, kind types.TaskKind, zones []string, payload types.Payload) (*types.ChannelTask, error)
	Release(ctx context.Context, taskID string) error
	Complete(ctx context.Context, taskID string) error
	Heartbeat(ctx context.Context, taskID string) error
	ToggleEmergency(ctx context.Context, action string) (*types.EmergencyStatus, error)
}

// CaptureDevice is the live microphone. Open failures surface as
// ErrDeviceUnavailable and are never retried automatically.
type CaptureDevice interface {
	Open() error
	Close()
}

// Synthesizer renders text payloads as speech. Speak returns immediately;
// done is invoked once on natural completion unless Cancel is called first.
type Synthesizer interface {
	Speak(text string, done func())
	Cancel()
}

// Player renders referenced audio payloads. Play returns immediately; done
// is invoked once on natural completion unless Stop is called first.
type Player interface {
	Play(ref string, done func()) error
	Stop()
}

// Siren is the local emergency tone output.
type Siren interface {
	Start()
	Stop()
}
