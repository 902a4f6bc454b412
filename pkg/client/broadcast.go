package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// SessionState is the live-microphone state machine position.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequesting
	StateActive
	StateStopping
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Tunables. Package vars so tests can shrink them.
var (
	// GraceWindow is how long after a grant a transient "no active
	// task" observation is treated as propagation lag rather than a
	// real preemption.
	GraceWindow = 5 * time.Second

	// HeartbeatInterval is how often an active session signals owner
	// liveness to the server.
	HeartbeatInterval = 10 * time.Second
)

// SessionEvents receives user-visible session notifications.
type SessionEvents interface {
	BroadcastStarted(taskID string)
	BroadcastStopped()
	Busy(detail string)
	Preempted(by string)
}

// DefaultSessionEvents logs every notification.
type DefaultSessionEvents struct{}

func (DefaultSessionEvents) BroadcastStarted(taskID string) { log.Printf("broadcast started: %s", taskID) }
func (DefaultSessionEvents) BroadcastStopped()              { log.Printf("broadcast stopped") }
func (DefaultSessionEvents) Busy(detail string)             { log.Printf("channel busy: %s", detail) }
func (DefaultSessionEvents) Preempted(by string)            { log.Printf("broadcast preempted by %s", by) }

// SessionManager drives the live-microphone lifecycle: Idle ->
// Requesting -> Active -> Stopping -> Idle, with Requesting -> Idle on
// rejection. It owns the capture device; the device is always released
// locally before (and regardless of) any network outcome.
type SessionManager struct {
	gw     Gateway
	mic    CaptureDevice
	events SessionEvents
	now    func() time.Time

	mu         sync.Mutex
	state      SessionState
	taskID     string
	confirmed  bool
	graceUntil time.Time
	graceTimer *time.Timer
	lastMode   types.Mode
	hbCancel   context.CancelFunc
}

// NewSessionManager creates an idle session manager.
func NewSessionManager(gw Gateway, mic CaptureDevice) *SessionManager {
	return &SessionManager{
		gw:       gw,
		mic:      mic,
		events:   DefaultSessionEvents{},
		now:      time.Now,
		state:    StateIdle,
		lastMode: types.ModeNormal,
	}
}

// SetEvents replaces the notification sink.
func (m *SessionManager) SetEvents(ev SessionEvents) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = ev
}

// State returns the current state machine position.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TaskID returns the granted task id while active, or "".
func (m *SessionManager) TaskID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskID
}

// Start requests the channel for a voice broadcast. Zone and emergency
// checks happen locally before any network call; on Conflict the
// capture device is never touched.
func (m *SessionManager) Start(ctx context.Context, zones []string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	if len(zones) == 0 {
		m.mu.Unlock()
		return ErrNoZones
	}
	if m.lastMode == types.ModeEmergency {
		m.mu.Unlock()
		return ErrEmergencyActive
	}
	m.state = StateRequesting
	events := m.events
	m.mu.Unlock()

	task, err := m.gw.Acquire(ctx, types.KindVoice, zones, types.Payload{})
	if err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		if errors.Is(err, ErrConflict) {
			events.Busy(err.Error())
		}
		return err
	}

	if err := m.mic.Open(); err != nil {
		_ = m.gw.Release(ctx, task.ID)
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	m.mu.Lock()
	m.state = StateActive
	m.taskID = task.ID
	m.confirmed = false
	m.graceUntil = m.now().Add(GraceWindow)
	m.graceTimer = time.AfterFunc(GraceWindow, m.expireGrace)
	hbCtx, cancel := context.WithCancel(context.Background())
	m.hbCancel = cancel
	m.mu.Unlock()

	go m.heartbeatLoop(hbCtx, task.ID)
	events.BroadcastStarted(task.ID)
	return nil
}

// Stop releases the capture device and gives the channel back. The
// device release is synchronous and local; a failed or timed-out
// release call never keeps the microphone open. Idempotent.
func (m *SessionManager) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	id := m.taskID
	m.stopTimersLocked()
	m.mic.Close()
	m.state = StateIdle
	m.taskID = ""
	events := m.events
	m.mu.Unlock()

	// Fail-open: the device is already released, a network failure
	// here is absorbed by the server's reclamation backstop.
	_ = m.gw.Release(ctx, id)
	events.BroadcastStopped()
}

// Observe reconciles the session against a pushed state event. A
// transient null observation inside the grace window is ignored; any
// other foreign state while active is a genuine preemption and forces
// an immediate local device release.
func (m *SessionManager) Observe(ev types.StateEvent) {
	m.mu.Lock()
	m.lastMode = ev.State.Mode

	if m.state != StateActive {
		m.mu.Unlock()
		return
	}

	t := ev.State.ActiveTask
	if t != nil && t.ID == m.taskID {
		m.confirmed = true
		m.mu.Unlock()
		return
	}

	if t == nil {
		if !m.confirmed && m.now().Before(m.graceUntil) {
			m.mu.Unlock()
			return
		}
		m.preemptLocked("")
		return
	}

	by := t.Owner
	if t.Kind == types.KindEmergency {
		by = "emergency: " + t.Owner
	}
	m.preemptLocked(by)
}

// expireGrace fires once the grace window closes. A session whose grant
// was never confirmed by a push is treated as preempted.
func (m *SessionManager) expireGrace() {
	m.mu.Lock()
	if m.state != StateActive || m.confirmed {
		m.mu.Unlock()
		return
	}
	m.preemptLocked("")
}

// preemptLocked releases the device and transitions to Idle. Called
// with the mutex held; unlocks before notifying.
func (m *SessionManager) preemptLocked(by string) {
	m.stopTimersLocked()
	m.mic.Close()
	m.state = StateIdle
	m.taskID = ""
	events := m.events
	m.mu.Unlock()
	events.Preempted(by)
}

func (m *SessionManager) stopTimersLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.hbCancel != nil {
		m.hbCancel()
		m.hbCancel = nil
	}
}

func (m *SessionManager) heartbeatLoop(ctx context.Context, taskID string) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.gw.Heartbeat(ctx, taskID); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("heartbeat failed: %v", err)
			}
		}
	}
}
