// Package state owns the authoritative channel state: which task holds
// the channel, the emergency flag, and the push stream every client
// subscribes to. All grant decisions are serialized under one mutex.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/arbiter"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// DefaultReclaimAfter bounds how long a task may live without an owner
// heartbeat before the sweeper reclaims the channel.
const DefaultReclaimAfter = 30 * time.Second

// SweepInterval is how often the sweeper checks for abandoned tasks.
var SweepInterval = time.Second

// Journal observes task lifecycles. The session log store implements it;
// the schedule runner implements it to re-queue preempted announcements.
type Journal interface {
	TaskGranted(task *types.ChannelTask)
	TaskFinished(task *types.ChannelTask, reason types.FinishReason)
}

type Option func(*Manager)

func WithReclaimAfter(d time.Duration) Option {
	return func(m *Manager) { m.reclaimAfter = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithZones(zones []string) Option {
	return func(m *Manager) { m.zones = zones }
}

func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journals = append(m.journals, j) }
}

type Manager struct {
	mu            sync.Mutex
	active        *types.ChannelTask
	emergencyBy   string
	history       []types.EmergencyEvent
	lastHeartbeat time.Time

	zones        []string
	reclaimAfter time.Duration
	journals     []Journal
	events       chan types.StateEvent
	now          func() time.Time
	logger       *zap.Logger
}

func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		reclaimAfter: DefaultReclaimAfter,
		events:       make(chan types.StateEvent, 100),
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddJournal registers a journal after construction. Used when a
// journal itself needs a handle on the manager.
func (m *Manager) AddJournal(j Journal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journals = append(m.journals, j)
}

// Events returns the push stream of state transitions. Delivery is
// at-least-once from the subscriber's point of view: a slow consumer may
// miss intermediate snapshots and must reconcile against Snapshot.
func (m *Manager) Events() <-chan types.StateEvent {
	return m.events
}

// Acquire requests channel ownership for owner. The second return is
// false when the grant resumed an already-held task.
func (m *Manager) Acquire(owner string, kind types.TaskKind, zones []string, payload types.Payload) (*types.ChannelTask, bool, error) {
	if !kind.Valid() || kind == types.KindEmergency {
		// Emergency ownership goes through ToggleEmergency only.
		return nil, false, ErrInvalidKind
	}
	normalized := types.NormalizeZones(zones, m.zones)
	if len(normalized) == 0 {
		return nil, false, ErrNoZones
	}

	m.mu.Lock()
	decision := arbiter.Decide(kind, owner, m.active)

	switch decision.Outcome {
	case arbiter.OutcomeReject:
		m.mu.Unlock()
		switch decision.Reason {
		case arbiter.ReasonConflict:
			return nil, false, ErrConflict
		case arbiter.ReasonEmergencyActive:
			return nil, false, ErrEmergencyActive
		default:
			return nil, false, ErrBusy
		}

	case arbiter.OutcomeGrant:
		if decision.Resume {
			task := m.active
			m.lastHeartbeat = m.now()
			m.mu.Unlock()
			return cloneTask(task), false, nil
		}
	}

	var preempted *types.ChannelTask
	if decision.Outcome == arbiter.OutcomePreempt {
		preempted = m.finishLocked()
	}

	task := &types.ChannelTask{
		ID:        ksuid.New().String(),
		Kind:      kind,
		Owner:     owner,
		Zones:     normalized,
		Payload:   payload,
		Priority:  kind.Priority(),
		StartedAt: m.now(),
	}
	m.active = task
	m.lastHeartbeat = task.StartedAt
	granted := cloneTask(task)
	m.mu.Unlock()

	if preempted != nil {
		m.notifyFinished(preempted, types.FinishPreempted)
	}
	m.notifyGranted(granted)
	m.publish()

	m.logger.Info("task granted",
		zap.String("task_id", task.ID),
		zap.String("kind", string(kind)),
		zap.String("owner", owner),
		zap.Strings("zones", normalized))
	return granted, true, nil
}

// Release gives the channel back. It is idempotent: releasing an unknown
// or already-finished task is not an error. Releasing an active
// emergency task is restricted to its activator.
func (m *Manager) Release(taskID, owner string) error {
	m.mu.Lock()
	if m.active == nil || m.active.ID != taskID {
		m.mu.Unlock()
		return nil
	}
	if m.active.Kind == types.KindEmergency {
		if owner != m.emergencyBy {
			m.mu.Unlock()
			return ErrForbidden
		}
		// An activator release ends the emergency, so it gets the same
		// history bookkeeping as an explicit deactivate.
		m.prependHistoryLocked(owner, "DEACTIVATED")
	}
	finished := m.finishLocked()
	m.mu.Unlock()

	m.notifyFinished(finished, types.FinishReleased)
	m.publish()
	m.logger.Info("task released", zap.String("task_id", taskID), zap.String("owner", owner))
	return nil
}

// Complete reports natural end of content playback. Completion is always
// client-reported; the server never infers it. Idempotent like Release.
func (m *Manager) Complete(taskID string) error {
	m.mu.Lock()
	if m.active == nil || m.active.ID != taskID {
		m.mu.Unlock()
		return nil
	}
	finished := m.finishLocked()
	m.mu.Unlock()

	m.notifyFinished(finished, types.FinishCompleted)
	m.publish()
	m.logger.Info("task completed", zap.String("task_id", taskID))
	return nil
}

// Heartbeat records owner liveness for the active task.
func (m *Manager) Heartbeat(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.ID != taskID {
		return ErrTaskNotFound
	}
	m.lastHeartbeat = m.now()
	return nil
}

// ToggleEmergency flips the emergency flag. Activation preempts whatever
// holds the channel; deactivation is permitted only to the activator.
func (m *Manager) ToggleEmergency(owner, action string) (types.EmergencyStatus, error) {
	m.mu.Lock()
	activeEmergency := m.active != nil && m.active.Kind == types.KindEmergency

	switch action {
	case types.EmergencyActivate:
		if activeEmergency {
			status := m.statusLocked()
			m.mu.Unlock()
			return status, nil
		}
		var preempted *types.ChannelTask
		if m.active != nil {
			preempted = m.finishLocked()
		}
		task := &types.ChannelTask{
			ID:        ksuid.New().String(),
			Kind:      types.KindEmergency,
			Owner:     owner,
			Zones:     types.NormalizeZones([]string{types.ZoneAll}, m.zones),
			Priority:  types.KindEmergency.Priority(),
			StartedAt: m.now(),
		}
		if len(task.Zones) == 0 {
			task.Zones = []string{types.ZoneAll}
		}
		m.active = task
		m.emergencyBy = owner
		m.lastHeartbeat = task.StartedAt
		m.prependHistoryLocked(owner, "ACTIVATED")
		status := m.statusLocked()
		granted := cloneTask(task)
		m.mu.Unlock()

		if preempted != nil {
			m.notifyFinished(preempted, types.FinishPreempted)
		}
		m.notifyGranted(granted)
		m.publish()
		m.logger.Warn("emergency activated", zap.String("user", owner))
		return status, nil

	case types.EmergencyDeactivate:
		if !activeEmergency {
			status := m.statusLocked()
			m.mu.Unlock()
			return status, nil
		}
		if owner != m.emergencyBy {
			m.mu.Unlock()
			return types.EmergencyStatus{}, ErrForbidden
		}
		finished := m.finishLocked()
		m.prependHistoryLocked(owner, "DEACTIVATED")
		status := m.statusLocked()
		m.mu.Unlock()

		m.notifyFinished(finished, types.FinishReleased)
		m.publish()
		m.logger.Warn("emergency deactivated", zap.String("user", owner))
		return status, nil

	default:
		m.mu.Unlock()
		return types.EmergencyStatus{}, ErrInvalidKind
	}
}

// Snapshot returns the current derived SystemState.
func (m *Manager) Snapshot() types.SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Emergency returns the emergency flag and its history, newest first.
func (m *Manager) Emergency() types.EmergencyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// LockedBy reports which owner currently blocks the given user from the
// channel, or "" when the user is free to acquire it.
func (m *Manager) LockedBy(owner string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Kind == types.KindBackground {
		return ""
	}
	if m.active.Owner == owner {
		return ""
	}
	return m.active.Owner
}

// StartSweeper reclaims tasks whose owner stopped heartbeating. Emergency
// tasks are exempt: they end only by explicit deactivation.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	if m.active == nil || m.active.Kind == types.KindEmergency {
		m.mu.Unlock()
		return
	}
	if m.now().Sub(m.lastHeartbeat) <= m.reclaimAfter {
		m.mu.Unlock()
		return
	}
	finished := m.finishLocked()
	m.mu.Unlock()

	m.notifyFinished(finished, types.FinishReclaimed)
	m.publish()
	m.logger.Warn("task reclaimed",
		zap.String("task_id", finished.ID),
		zap.String("owner", finished.Owner))
}

func (m *Manager) finishLocked() *types.ChannelTask {
	task := m.active
	if task == nil {
		return nil
	}
	completed := m.now()
	task.CompletedAt = &completed
	m.active = nil
	if task.Kind == types.KindEmergency {
		m.emergencyBy = ""
	}
	return task
}

func (m *Manager) snapshotLocked() types.SystemState {
	mode := types.ModeNormal
	if m.active != nil && m.active.Kind == types.KindEmergency {
		mode = types.ModeEmergency
	}
	return types.SystemState{Mode: mode, ActiveTask: cloneTask(m.active)}
}

func (m *Manager) statusLocked() types.EmergencyStatus {
	history := make([]types.EmergencyEvent, len(m.history))
	copy(history, m.history)
	return types.EmergencyStatus{
		Active:  m.active != nil && m.active.Kind == types.KindEmergency,
		History: history,
	}
}

func (m *Manager) prependHistoryLocked(user, action string) {
	entry := types.EmergencyEvent{
		ID:     ksuid.New().String(),
		Action: action,
		User:   user,
		Time:   m.now().Format("2006-01-02 03:04 PM"),
	}
	m.history = append([]types.EmergencyEvent{entry}, m.history...)
}

func (m *Manager) notifyGranted(task *types.ChannelTask) {
	for _, j := range m.journals {
		j.TaskGranted(task)
	}
}

func (m *Manager) notifyFinished(task *types.ChannelTask, reason types.FinishReason) {
	for _, j := range m.journals {
		j.TaskFinished(task, reason)
	}
}

// publish pushes the current snapshot to the event stream. The buffer
// absorbs bursts; when it overflows, subscribers reconcile via Snapshot.
func (m *Manager) publish() {
	event := types.StateEvent{
		Type:      "state",
		State:     m.Snapshot(),
		Timestamp: time.Now(),
	}
	select {
	case m.events <- event:
	default:
		m.logger.Warn("state event buffer full, dropping push")
	}
}

func cloneTask(task *types.ChannelTask) *types.ChannelTask {
	if task == nil {
		return nil
	}
	clone := *task
	clone.Zones = append([]string(nil), task.Zones...)
	return &clone
}
