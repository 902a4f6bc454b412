package client

import (
	"context"
	"errors"
	"sync"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// TextResult is the user-facing outcome of a text announcement attempt.
type TextResult string

const (
	TextSuccess TextResult = "success"
	TextBusy    TextResult = "busy"
	TextBlocked TextResult = "blocked"
)

// Devices bundles the local hardware a panel drives.
type Devices struct {
	Mic    CaptureDevice
	Synth  Synthesizer
	Player Player
	Siren  Siren
}

// Panel is the operator-facing facade over the client components: one
// gateway, one push subscription, one session manager, one executor,
// one siren controller.
type Panel struct {
	cfg      Config
	gw       Gateway
	src      *StateSource
	Session  *SessionManager
	Executor *LocalAudioExecutor
	SirenCtl *EmergencySirenController
	Zones    *ZonePicker

	mu           sync.Mutex
	last         types.SystemState
	backgroundID string
}

// NewPanel wires a panel for the given operator and campus zones.
func NewPanel(cfg Config, zones []string, dev Devices) *Panel {
	gw := NewLockGateway(cfg)
	src := NewStateSource(cfg)
	exec := NewLocalAudioExecutor(gw, dev.Synth, dev.Player, cfg.UserID)

	p := &Panel{
		cfg:      cfg,
		gw:       gw,
		src:      src,
		Session:  NewSessionManager(gw, dev.Mic),
		Executor: exec,
		SirenCtl: NewEmergencySirenController(dev.Siren, exec.StopAll),
		Zones:    NewZonePicker(zones),
	}

	// Subscription order: siren first so emergency silencing never
	// waits on anything else, then the executor, then the session.
	src.Subscribe(p.SirenCtl.Observe)
	src.Subscribe(p.Executor.Observe)
	src.Subscribe(p.Session.Observe)
	src.Subscribe(p.track)
	return p
}

// Run connects to the push channel and blocks dispatching events until
// ctx is canceled or the connection drops.
func (p *Panel) Run(ctx context.Context) error {
	if err := p.src.Connect(ctx); err != nil {
		return err
	}
	return p.src.Run(ctx)
}

// Close shuts the push subscription down.
func (p *Panel) Close() error {
	return p.src.Close()
}

// StartBroadcast opens a live voice session on the selected zones.
func (p *Panel) StartBroadcast(ctx context.Context) error {
	if err := p.Session.Start(ctx, p.Zones.Selected()); err != nil {
		return err
	}
	p.Zones.SetBroadcasting(true)
	return nil
}

// StopBroadcast ends the live session. Always releases the microphone.
func (p *Panel) StopBroadcast(ctx context.Context) {
	p.Session.Stop(ctx)
	p.Zones.SetBroadcasting(false)
}

// SendText requests a text announcement on the selected zones. The
// result is surfaced synchronously; rejections are never retried.
func (p *Panel) SendText(ctx context.Context, text string) (TextResult, error) {
	zones := p.Zones.Selected()
	if len(zones) == 0 {
		return TextBlocked, ErrNoZones
	}
	_, err := p.gw.Acquire(ctx, types.KindText, zones, types.Payload{Text: text})
	switch {
	case err == nil:
		return TextSuccess, nil
	case errors.Is(err, ErrEmergencyActive):
		return TextBlocked, err
	case errors.Is(err, ErrConflict), errors.Is(err, ErrBusy):
		return TextBusy, err
	default:
		return TextBusy, err
	}
}

// PlayBackground claims the background slot for a local track. A second
// call by the same operator swaps tracks rather than being rejected.
func (p *Panel) PlayBackground(ctx context.Context, audioRef string) (*types.ChannelTask, error) {
	zones := p.Zones.Selected()
	if len(zones) == 0 {
		return nil, ErrNoZones
	}
	task, err := p.gw.Acquire(ctx, types.KindBackground, zones, types.Payload{AudioRef: audioRef})
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.backgroundID = task.ID
	p.mu.Unlock()
	return task, nil
}

// StopBackground releases the background slot, if held.
func (p *Panel) StopBackground(ctx context.Context) {
	p.mu.Lock()
	id := p.backgroundID
	p.backgroundID = ""
	p.mu.Unlock()
	if id == "" {
		return
	}
	p.Executor.StopAll()
	_ = p.gw.Release(ctx, id)
}

// ToggleEmergency activates or deactivates campus emergency mode.
func (p *Panel) ToggleEmergency(ctx context.Context, action string) (*types.EmergencyStatus, error) {
	return p.gw.ToggleEmergency(ctx, action)
}

// LockedBy returns the owner currently holding the channel against this
// operator, or "" when the panel is free to broadcast. Derived purely
// from the last pushed state.
func (p *Panel) LockedBy() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.last.ActiveTask
	if t == nil || t.Kind == types.KindBackground {
		return ""
	}
	if t.Owner == p.cfg.UserID {
		return ""
	}
	return t.Owner
}

func (p *Panel) track(ev types.StateEvent) {
	p.mu.Lock()
	p.last = ev.State
	p.mu.Unlock()
}
