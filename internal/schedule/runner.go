package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/state"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// DefaultTick is how often the runner checks for due announcements.
var DefaultTick = time.Second

// Arbiter is the slice of the state manager the runner needs.
type Arbiter interface {
	Acquire(owner string, kind types.TaskKind, zones []string, payload types.Payload) (*types.ChannelTask, bool, error)
	Snapshot() types.SystemState
}

// Runner promotes due announcements onto the channel. It only fires when
// the channel is idle; a busy or emergency channel simply defers the
// queue to a later tick. It also implements state.Journal so it can
// requeue an announcement whose playback was preempted and shift the
// remaining queue by the interruption duration.
type Runner struct {
	store  *Store
	pa     Arbiter
	logger *zap.Logger
	tick   time.Duration
	now    func() time.Time

	mu         sync.Mutex
	taskID     string // active channel task for the playing announcement
	annID      string
	pauseStart time.Time
}

func NewRunner(store *Store, pa Arbiter, logger *zap.Logger) *Runner {
	return &Runner{
		store:  store,
		pa:     pa,
		logger: logger,
		tick:   DefaultTick,
		now:    time.Now,
	}
}

// SetTick overrides the polling interval. Call before Run.
func (r *Runner) SetTick(d time.Duration) {
	if d > 0 {
		r.tick = d
	}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step fires at most one due announcement per tick. It is driven by Run
// and exposed for tests.
func (r *Runner) Step() {
	if r.pa.Snapshot().ActiveTask != nil {
		return
	}

	r.applyShift()

	now := r.now()
	due, err := r.store.Due(now)
	if err != nil {
		r.logger.Error("failed to read due announcements", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	next := due[0]

	payload := types.Payload{Text: next.Message, AudioRef: next.AudioRef}
	task, _, err := r.pa.Acquire(next.CreatedBy, types.KindScheduled, next.Zones, payload)
	switch {
	case err == nil:
	case errors.Is(err, state.ErrEmergencyActive),
		errors.Is(err, state.ErrBusy),
		errors.Is(err, state.ErrConflict):
		// Channel was taken between the snapshot and the acquire; the
		// announcement stays queued.
		return
	default:
		r.logger.Error("failed to fire announcement",
			zap.String("announcement_id", next.ID), zap.Error(err))
		return
	}

	if err := r.store.SetStatus(next.ID, StatusPlaying); err != nil {
		r.logger.Error("failed to mark announcement playing",
			zap.String("announcement_id", next.ID), zap.Error(err))
	}

	r.mu.Lock()
	r.taskID = task.ID
	r.annID = next.ID
	r.mu.Unlock()

	r.logger.Info("announcement fired",
		zap.String("announcement_id", next.ID),
		zap.String("task_id", task.ID))
}

// applyShift pushes pending items later by the duration of the
// interruption that just ended, so relative spacing survives.
func (r *Runner) applyShift() {
	r.mu.Lock()
	start := r.pauseStart
	r.pauseStart = time.Time{}
	r.mu.Unlock()
	if start.IsZero() {
		return
	}

	shift := r.now().Sub(start)
	if shift <= 0 {
		return
	}
	if err := r.store.ShiftPending(shift); err != nil {
		r.logger.Error("failed to shift pending announcements", zap.Error(err))
		return
	}
	r.logger.Info("shifted pending announcements", zap.Duration("by", shift))
}

// TaskGranted implements state.Journal.
func (r *Runner) TaskGranted(task *types.ChannelTask) {}

// TaskFinished implements state.Journal: bookkeeping for the
// announcement the runner is currently playing.
func (r *Runner) TaskFinished(task *types.ChannelTask, reason types.FinishReason) {
	r.mu.Lock()
	if task.ID != r.taskID {
		r.mu.Unlock()
		return
	}
	annID := r.annID
	r.taskID = ""
	r.annID = ""
	if reason == types.FinishPreempted {
		r.pauseStart = r.now()
	}
	r.mu.Unlock()

	if reason == types.FinishPreempted {
		// Soft stop: back to the head of the queue.
		if err := r.store.Requeue(annID, r.now()); err != nil {
			r.logger.Error("failed to requeue interrupted announcement",
				zap.String("announcement_id", annID), zap.Error(err))
		}
		return
	}
	if err := r.store.SetStatus(annID, StatusCompleted); err != nil {
		r.logger.Error("failed to complete announcement",
			zap.String("announcement_id", annID), zap.Error(err))
	}
}
