// Package schedule keeps pre-recorded and pre-written announcements and
// fires them into the channel when they come due. The arbitration core
// sees a firing schedule as just another acquire caller.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/segmentio/ksuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS announcements (
	id         TEXT PRIMARY KEY,
	message    TEXT NOT NULL DEFAULT '',
	audio_ref  TEXT NOT NULL DEFAULT '',
	zones      TEXT NOT NULL,
	at         TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'Pending',
	created_by TEXT NOT NULL
);`

const (
	StatusPending     = "Pending"
	StatusPlaying     = "Playing"
	StatusInterrupted = "Interrupted"
	StatusCompleted   = "Completed"
)

// Announcement is one scheduled item. Either Message (spoken) or
// AudioRef (pre-recorded file) carries the content.
type Announcement struct {
	ID        string    `json:"id"`
	Message   string    `json:"message,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Zones     []string  `json:"zones"`
	At        time.Time `json:"at"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
}

type row struct {
	ID        string `db:"id"`
	Message   string `db:"message"`
	AudioRef  string `db:"audio_ref"`
	Zones     string `db:"zones"`
	At        string `db:"at"`
	Status    string `db:"status"`
	CreatedBy string `db:"created_by"`
}

func (r row) announcement() (Announcement, error) {
	at, err := time.Parse(time.RFC3339, r.At)
	if err != nil {
		return Announcement{}, fmt.Errorf("announcement %s has bad timestamp %q: %w", r.ID, r.At, err)
	}
	var zones []string
	if r.Zones != "" {
		zones = strings.Split(r.Zones, "|")
	}
	return Announcement{
		ID:        r.ID,
		Message:   r.Message,
		AudioRef:  r.AudioRef,
		Zones:     zones,
		At:        at,
		Status:    r.Status,
		CreatedBy: r.CreatedBy,
	}, nil
}

type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open schedule db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schedule schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a new pending announcement and returns its id.
func (s *Store) Add(a Announcement) (string, error) {
	if a.Message == "" && a.AudioRef == "" {
		return "", fmt.Errorf("announcement needs a message or an audio reference")
	}
	if len(a.Zones) == 0 {
		return "", fmt.Errorf("announcement needs at least one zone")
	}
	if a.ID == "" {
		a.ID = ksuid.New().String()
	}
	_, err := s.db.Exec(
		`INSERT INTO announcements (id, message, audio_ref, zones, at, status, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Message, a.AudioRef, strings.Join(a.Zones, "|"),
		a.At.UTC().Format(time.RFC3339), StatusPending, a.CreatedBy,
	)
	if err != nil {
		return "", fmt.Errorf("insert announcement: %w", err)
	}
	return a.ID, nil
}

// Due returns pending announcements whose time has passed, earliest first.
func (s *Store) Due(now time.Time) ([]Announcement, error) {
	return s.selectAnnouncements(
		`SELECT * FROM announcements WHERE status = ? AND at <= ? ORDER BY at ASC`,
		StatusPending, now.UTC().Format(time.RFC3339),
	)
}

// List returns every announcement, earliest first.
func (s *Store) List() ([]Announcement, error) {
	return s.selectAnnouncements(`SELECT * FROM announcements ORDER BY at ASC`)
}

func (s *Store) selectAnnouncements(query string, args ...any) ([]Announcement, error) {
	var rows []row
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}
	out := make([]Announcement, 0, len(rows))
	for _, r := range rows {
		a, err := r.announcement()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SetStatus updates an announcement's lifecycle status.
func (s *Store) SetStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE announcements SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update announcement status: %w", err)
	}
	return nil
}

// Requeue marks an interrupted announcement pending again at the given
// time, putting it at the head of the queue.
func (s *Store) Requeue(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE announcements SET status = ?, at = ? WHERE id = ?`,
		StatusPending, at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("requeue announcement: %w", err)
	}
	return nil
}

// ShiftPending moves every pending announcement later by d, preserving
// relative order. Applied after a high-priority interruption so queued
// items do not all come due at once.
func (s *Store) ShiftPending(d time.Duration) error {
	rows, err := s.selectAnnouncements(
		`SELECT * FROM announcements WHERE status = ?`, StatusPending)
	if err != nil {
		return err
	}
	for _, a := range rows {
		_, err := s.db.Exec(`UPDATE announcements SET at = ? WHERE id = ?`,
			a.At.Add(d).UTC().Format(time.RFC3339), a.ID)
		if err != nil {
			return fmt.Errorf("shift announcement %s: %w", a.ID, err)
		}
	}
	return nil
}

// Remove deletes an announcement outright.
func (s *Store) Remove(id string) error {
	_, err := s.db.Exec(`DELETE FROM announcements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
