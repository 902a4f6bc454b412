// Package sessionlog persists one audit record per channel-ownership
// interval. Entries open at grant time and are sealed when the task
// finishes; rejected requests never reach this package.
package sessionlog

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_logs (
	id          TEXT PRIMARY KEY,
	user        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	target      TEXT NOT NULL,
	start_label TEXT NOT NULL,
	end_label   TEXT,
	created_at  TEXT NOT NULL
);`

// TimeLabel is the human-readable marker format used for start/end labels.
const TimeLabel = "2006-01-02 15:04:05"

type Store struct {
	db     *sqlx.DB
	zones  []string
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the session log database at path.
func Open(path string, zones []string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session log db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session log schema: %w", err)
	}
	return &Store{db: db, zones: zones, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// loggedKinds: emergency intervals live in the emergency history instead,
// and background playback is a local concern, not a broadcast session.
func logged(kind types.TaskKind) bool {
	switch kind {
	case types.KindVoice, types.KindText, types.KindScheduled:
		return true
	}
	return false
}

// TaskGranted opens an entry with the start marker and no end marker.
// Implements state.Journal.
func (s *Store) TaskGranted(task *types.ChannelTask) {
	if !logged(task.Kind) {
		return
	}
	target := types.ZoneLabel(task.Zones, s.zones)
	if task.Payload.Text != "" {
		target = fmt.Sprintf("%q to %s", task.Payload.Text, target)
	}
	now := s.now()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO session_logs (id, user, kind, target, start_label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, task.Owner, string(task.Kind), target,
		task.StartedAt.Format(TimeLabel), now.Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to open session log entry",
			zap.String("task_id", task.ID), zap.Error(err))
	}
}

// TaskFinished seals the entry. Sealing an already-sealed or missing
// entry is a no-op, matching the idempotence of release.
func (s *Store) TaskFinished(task *types.ChannelTask, reason types.FinishReason) {
	if !logged(task.Kind) {
		return
	}
	end := s.now()
	if task.CompletedAt != nil {
		end = *task.CompletedAt
	}
	_, err := s.db.Exec(
		`UPDATE session_logs SET end_label = ? WHERE id = ? AND end_label IS NULL`,
		end.Format(TimeLabel), task.ID,
	)
	if err != nil {
		s.logger.Error("failed to seal session log entry",
			zap.String("task_id", task.ID), zap.String("reason", string(reason)), zap.Error(err))
	}
}

// Recent returns the newest entries first, capped at limit.
func (s *Store) Recent(limit int) ([]types.SessionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := []types.SessionLogEntry{}
	err := s.db.Select(&entries,
		`SELECT id, user, kind, target, start_label, end_label, created_at
		 FROM session_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session logs: %w", err)
	}
	return entries, nil
}

// Delete removes one entry. Administrative capability, kept out of the
// arbitration core.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM session_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session log entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session log entry %s not found", id)
	}
	return nil
}
