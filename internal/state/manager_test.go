package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/state"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

var testZones = []string{"Admin Office", "Classrooms", "Library", "Main Hall"}

func newManager(t *testing.T, opts ...state.Option) *state.Manager {
	t.Helper()
	opts = append([]state.Option{state.WithZones(testZones)}, opts...)
	return state.NewManager(zap.NewNop(), opts...)
}

type recordingJournal struct {
	mu       sync.Mutex
	granted  []string
	finished map[string]types.FinishReason
}

func (j *recordingJournal) TaskGranted(task *types.ChannelTask) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.granted = append(j.granted, task.ID)
}

func (j *recordingJournal) TaskFinished(task *types.ChannelTask, reason types.FinishReason) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished == nil {
		j.finished = make(map[string]types.FinishReason)
	}
	j.finished[task.ID] = reason
}

func TestAcquire_ConflictBetweenOwners(t *testing.T) {
	m := newManager(t)

	taskX, created, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{StreamID: "s1"})
	if err != nil || !created {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, _, err = m.Acquire("y", types.KindVoice, []string{"Library"}, types.Payload{StreamID: "s2"})
	if !errors.Is(err, state.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// X's ownership is unaffected.
	st := m.Snapshot()
	if st.ActiveTask == nil || st.ActiveTask.ID != taskX.ID {
		t.Fatalf("active task changed after rejected acquire: %+v", st.ActiveTask)
	}
	if got := m.LockedBy("y"); got != "x" {
		t.Fatalf("LockedBy(y) = %q, want x", got)
	}
	if got := m.LockedBy("x"); got != "" {
		t.Fatalf("LockedBy(x) = %q, want empty", got)
	}
}

func TestAcquire_RacingOwners_ExactlyOneWins(t *testing.T) {
	m := newManager(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, owner := range []string{"x", "y"} {
		wg.Add(1)
		go func(i int, owner string) {
			defer wg.Done()
			_, _, errs[i] = m.Acquire(owner, types.KindVoice, []string{"Library"}, types.Payload{})
		}(i, owner)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, state.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestAcquire_PreemptsBackground(t *testing.T) {
	j := &recordingJournal{}
	m := newManager(t, state.WithJournal(j))

	bg, _, err := m.Acquire("x", types.KindBackground, []string{"Library"}, types.Payload{AudioRef: "track.mp3"})
	if err != nil {
		t.Fatalf("background acquire failed: %v", err)
	}

	text, _, err := m.Acquire("y", types.KindText, []string{"Main Hall"}, types.Payload{Text: "hello"})
	if err != nil {
		t.Fatalf("text acquire failed: %v", err)
	}

	st := m.Snapshot()
	if st.ActiveTask == nil || st.ActiveTask.ID != text.ID {
		t.Fatalf("expected text task active, got %+v", st.ActiveTask)
	}
	if reason := j.finished[bg.ID]; reason != types.FinishPreempted {
		t.Fatalf("background finish reason = %q, want preempted", reason)
	}
}

func TestAcquire_ResumeIsIdempotent(t *testing.T) {
	m := newManager(t)

	first, created, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{})
	if err != nil || !created {
		t.Fatalf("acquire failed: %v", err)
	}
	second, created, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if created {
		t.Fatalf("resume must not mint a new task")
	}
	if second.ID != first.ID {
		t.Fatalf("resume returned different task: %s vs %s", second.ID, first.ID)
	}
}

func TestAcquire_RejectsZeroZonesAndBadKind(t *testing.T) {
	m := newManager(t)

	if _, _, err := m.Acquire("x", types.KindVoice, nil, types.Payload{}); !errors.Is(err, state.ErrNoZones) {
		t.Fatalf("expected ErrNoZones, got %v", err)
	}
	if _, _, err := m.Acquire("x", types.KindEmergency, []string{"Library"}, types.Payload{}); !errors.Is(err, state.ErrInvalidKind) {
		t.Fatalf("emergency must not be acquirable directly, got %v", err)
	}
	if _, _, err := m.Acquire("x", types.TaskKind("karaoke"), []string{"Library"}, types.Payload{}); !errors.Is(err, state.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	m := newManager(t)

	task, _, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := m.Release(task.ID, "x"); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := m.Release(task.ID, "x"); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}
	if st := m.Snapshot(); st.ActiveTask != nil {
		t.Fatalf("expected idle channel, got %+v", st.ActiveTask)
	}
}

func TestEmergency_Lifecycle(t *testing.T) {
	j := &recordingJournal{}
	m := newManager(t, state.WithJournal(j))

	voice, _, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	status, err := m.ToggleEmergency("a", types.EmergencyActivate)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if !status.Active {
		t.Fatalf("expected active emergency")
	}
	if len(status.History) != 1 || status.History[0].Action != "ACTIVATED" || status.History[0].User != "a" {
		t.Fatalf("unexpected history: %+v", status.History)
	}
	if reason := j.finished[voice.ID]; reason != types.FinishPreempted {
		t.Fatalf("voice finish reason = %q, want preempted", reason)
	}
	if st := m.Snapshot(); st.Mode != types.ModeEmergency {
		t.Fatalf("mode = %s, want EMERGENCY", st.Mode)
	}

	// No acquire succeeds while emergency mode holds.
	for _, kind := range []types.TaskKind{types.KindVoice, types.KindText, types.KindScheduled, types.KindBackground} {
		if _, _, err := m.Acquire("x", kind, []string{"Library"}, types.Payload{}); !errors.Is(err, state.ErrEmergencyActive) {
			t.Fatalf("acquire %s during emergency = %v, want ErrEmergencyActive", kind, err)
		}
	}

	// Non-activator cannot deactivate.
	if _, err := m.ToggleEmergency("b", types.EmergencyDeactivate); !errors.Is(err, state.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-activator, got %v", err)
	}

	status, err = m.ToggleEmergency("a", types.EmergencyDeactivate)
	if err != nil {
		t.Fatalf("activator deactivate failed: %v", err)
	}
	if status.Active {
		t.Fatalf("expected inactive after deactivate")
	}
	if st := m.Snapshot(); st.Mode != types.ModeNormal || st.ActiveTask != nil {
		t.Fatalf("expected idle NORMAL state, got %+v", st)
	}
}

func TestEmergency_ActivatorReleaseRecordsDeactivation(t *testing.T) {
	m := newManager(t)

	if _, err := m.ToggleEmergency("a", types.EmergencyActivate); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	task := m.Snapshot().ActiveTask
	if task == nil || task.Kind != types.KindEmergency {
		t.Fatalf("expected active emergency task, got %+v", task)
	}

	if err := m.Release(task.ID, "b"); !errors.Is(err, state.ErrForbidden) {
		t.Fatalf("non-activator release = %v, want ErrForbidden", err)
	}

	if err := m.Release(task.ID, "a"); err != nil {
		t.Fatalf("activator release failed: %v", err)
	}
	status := m.Emergency()
	if status.Active {
		t.Fatalf("expected inactive emergency after release")
	}
	if len(status.History) != 2 || status.History[0].Action != "DEACTIVATED" || status.History[0].User != "a" {
		t.Fatalf("history = %+v, want DEACTIVATED entry first", status.History)
	}
	if st := m.Snapshot(); st.Mode != types.ModeNormal || st.ActiveTask != nil {
		t.Fatalf("expected idle NORMAL state, got %+v", st)
	}
}

func TestEmergency_ActivateIsIdempotent(t *testing.T) {
	m := newManager(t)

	if _, err := m.ToggleEmergency("a", types.EmergencyActivate); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	status, err := m.ToggleEmergency("b", types.EmergencyActivate)
	if err != nil {
		t.Fatalf("re-activate failed: %v", err)
	}
	if !status.Active || len(status.History) != 1 {
		t.Fatalf("re-activation must not rewrite history: %+v", status)
	}
	// "a" is still the activator.
	if _, err := m.ToggleEmergency("b", types.EmergencyDeactivate); !errors.Is(err, state.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSweeper_ReclaimsAbandonedTask(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	oldInterval := state.SweepInterval
	state.SweepInterval = 10 * time.Millisecond
	defer func() { state.SweepInterval = oldInterval }()

	j := &recordingJournal{}
	m := newManager(t,
		state.WithClock(clock),
		state.WithReclaimAfter(10*time.Second),
		state.WithJournal(j),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartSweeper(ctx)

	task, _, err := m.Acquire("x", types.KindVoice, []string{"Library"}, types.Payload{})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// A heartbeat keeps the task alive past the window.
	mu.Lock()
	now = now.Add(8 * time.Second)
	mu.Unlock()
	if err := m.Heartbeat(task.ID); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	drainEvents(m)
	mu.Lock()
	now = now.Add(9 * time.Second)
	mu.Unlock()
	if st := m.Snapshot(); st.ActiveTask == nil {
		t.Fatalf("task reclaimed too early")
	}

	mu.Lock()
	now = now.Add(5 * time.Second)
	mu.Unlock()

	waitFor(t, time.Second, func() bool {
		return m.Snapshot().ActiveTask == nil
	})

	j.mu.Lock()
	reason := j.finished[task.ID]
	j.mu.Unlock()
	if reason != types.FinishReclaimed {
		t.Fatalf("finish reason = %q, want reclaimed", reason)
	}
	if err := m.Heartbeat(task.ID); !errors.Is(err, state.ErrTaskNotFound) {
		t.Fatalf("heartbeat after reclaim = %v, want ErrTaskNotFound", err)
	}
}

func TestSweeper_NeverReclaimsEmergency(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	oldInterval := state.SweepInterval
	state.SweepInterval = 10 * time.Millisecond
	defer func() { state.SweepInterval = oldInterval }()

	m := newManager(t, state.WithClock(clock), state.WithReclaimAfter(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartSweeper(ctx)

	if _, err := m.ToggleEmergency("a", types.EmergencyActivate); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	if st := m.Snapshot(); st.Mode != types.ModeEmergency {
		t.Fatalf("emergency was reclaimed, mode = %s", st.Mode)
	}
}

func TestEvents_PushOnEveryTransition(t *testing.T) {
	m := newManager(t)

	task, _, err := m.Acquire("x", types.KindText, []string{"Library"}, types.Payload{Text: "hi"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ev := <-m.Events()
	if ev.State.ActiveTask == nil || ev.State.ActiveTask.ID != task.ID {
		t.Fatalf("push missing granted task: %+v", ev.State)
	}

	if err := m.Complete(task.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	ev = <-m.Events()
	if ev.State.ActiveTask != nil {
		t.Fatalf("push after completion should be idle, got %+v", ev.State.ActiveTask)
	}
}

func drainEvents(m *state.Manager) {
	for {
		select {
		case <-m.Events():
		default:
			return
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
