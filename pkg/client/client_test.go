package client

import (
	"context"
	"sync"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// Shared test doubles for the panel components.

type fakeGateway struct {
	mu         sync.Mutex
	acquireErr error
	releaseErr error
	task       *types.ChannelTask
	acquired   []types.TaskKind
	released   []string
	completed  []string
	heartbeats []string
}

func (g *fakeGateway) Acquire(_ context.Context, kind types.TaskKind, zones []string, payload types.Payload) (*types.ChannelTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquired = append(g.acquired, kind)
	if g.acquireErr != nil {
		return nil, g.acquireErr
	}
	if g.task != nil {
		return g.task, nil
	}
	return &types.ChannelTask{ID: "task-1", Kind: kind, Zones: zones, Payload: payload}, nil
}

func (g *fakeGateway) Release(_ context.Context, taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, taskID)
	return g.releaseErr
}

func (g *fakeGateway) Complete(_ context.Context, taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, taskID)
	return nil
}

func (g *fakeGateway) Heartbeat(_ context.Context, taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heartbeats = append(g.heartbeats, taskID)
	return nil
}

func (g *fakeGateway) ToggleEmergency(_ context.Context, _ string) (*types.EmergencyStatus, error) {
	return &types.EmergencyStatus{Active: true}, nil
}

func (g *fakeGateway) releasedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.released...)
}

func (g *fakeGateway) acquiredKinds() []types.TaskKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.TaskKind(nil), g.acquired...)
}

func (g *fakeGateway) completedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.completed...)
}

type fakeMic struct {
	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
}

func (m *fakeMic) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return m.openErr
}

func (m *fakeMic) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
}

func (m *fakeMic) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

type fakeSynth struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
	done    func()
}

func (s *fakeSynth) Speak(text string, done func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	s.done = done
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.done = nil
}

func (s *fakeSynth) finish() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		done()
	}
}

type fakePlayer struct {
	mu      sync.Mutex
	playing []string
	stops   int
	done    func()
	playErr error
}

func (p *fakePlayer) Play(ref string, done func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.playing = append(p.playing, ref)
	p.done = done
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.done = nil
}

type fakeSiren struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (s *fakeSiren) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *fakeSiren) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

type recordedEvents struct {
	mu        sync.Mutex
	started   []string
	stopped   int
	busy      []string
	preempted []string
}

func (r *recordedEvents) BroadcastStarted(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, taskID)
}

func (r *recordedEvents) BroadcastStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recordedEvents) Busy(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, detail)
}

func (r *recordedEvents) Preempted(by string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preempted = append(r.preempted, by)
}

func (r *recordedEvents) preemptions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.preempted...)
}

func stateEvent(mode types.Mode, task *types.ChannelTask) types.StateEvent {
	return types.StateEvent{Type: "state", State: types.SystemState{Mode: mode, ActiveTask: task}}
}
