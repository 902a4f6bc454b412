package client

import (
	"context"
	"log"
	"sync"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// LocalAudioExecutor renders the active task on this client's output
// devices. It is the single renderer per client: every transition goes
// through stopAll before anything new starts, so at most one local
// output is live at a time.
type LocalAudioExecutor struct {
	gw     Gateway
	synth  Synthesizer
	player Player
	owner  string

	mu          sync.Mutex
	renderingID string
}

// NewLocalAudioExecutor builds an executor for the given operator.
// Background tasks are rendered only when owned by this operator.
func NewLocalAudioExecutor(gw Gateway, synth Synthesizer, player Player, owner string) *LocalAudioExecutor {
	return &LocalAudioExecutor{gw: gw, synth: synth, player: player, owner: owner}
}

// Observe reacts to a pushed state event. Duplicate pushes for the task
// already being rendered are no-ops.
func (e *LocalAudioExecutor) Observe(ev types.StateEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := ev.State
	if st.Mode == types.ModeEmergency || st.ActiveTask == nil {
		e.stopAllLocked()
		return
	}

	t := st.ActiveTask
	if t.ID == e.renderingID {
		return
	}
	e.stopAllLocked()
	e.startLocked(t)
}

// StopAll cancels any in-flight rendering. Safe to call at any time;
// the emergency controller calls it unconditionally.
func (e *LocalAudioExecutor) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAllLocked()
}

// Rendering returns the id of the task currently being rendered, or "".
func (e *LocalAudioExecutor) Rendering() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderingID
}

func (e *LocalAudioExecutor) stopAllLocked() {
	if e.renderingID == "" {
		return
	}
	e.synth.Cancel()
	e.player.Stop()
	e.renderingID = ""
}

func (e *LocalAudioExecutor) startLocked(t *types.ChannelTask) {
	switch t.Kind {
	case types.KindText:
		if t.Payload.Text == "" {
			return
		}
		e.renderingID = t.ID
		e.synth.Speak(t.Payload.Text, e.doneFunc(t.ID))
	case types.KindScheduled:
		e.renderingID = t.ID
		if t.Payload.AudioRef != "" {
			if err := e.player.Play(t.Payload.AudioRef, e.doneFunc(t.ID)); err != nil {
				log.Printf("failed to play %s: %v", t.Payload.AudioRef, err)
				e.renderingID = ""
			}
			return
		}
		e.synth.Speak(t.Payload.Text, e.doneFunc(t.ID))
	case types.KindBackground:
		// Background plays only on the owner's panel; it never
		// broadcasts to other clients.
		if t.Owner != e.owner {
			return
		}
		e.renderingID = t.ID
		if err := e.player.Play(t.Payload.AudioRef, e.doneFunc(t.ID)); err != nil {
			log.Printf("failed to play %s: %v", t.Payload.AudioRef, err)
			e.renderingID = ""
		}
	default:
		// Voice is live capture on the broadcasting panel; nothing to
		// render here.
	}
}

// doneFunc builds the natural-completion callback for a task. The
// server never infers content completion; the rendering client always
// reports it.
func (e *LocalAudioExecutor) doneFunc(taskID string) func() {
	return func() {
		e.mu.Lock()
		if e.renderingID == taskID {
			e.renderingID = ""
		}
		e.mu.Unlock()
		if err := e.gw.Complete(context.Background(), taskID); err != nil {
			log.Printf("failed to report completion of %s: %v", taskID, err)
		}
	}
}
