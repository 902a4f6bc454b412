package types

import (
	"sort"
	"strings"
	"time"
)

// TaskKind identifies the sound source a channel task carries.
type TaskKind string

const (
	KindEmergency  TaskKind = "emergency"
	KindVoice      TaskKind = "voice"
	KindText       TaskKind = "text"
	KindScheduled  TaskKind = "scheduled"
	KindBackground TaskKind = "background"
)

// Priority returns the arbitration priority derived from the kind.
// It is never settable independently of the kind.
func (k TaskKind) Priority() int {
	switch k {
	case KindEmergency:
		return 100
	case KindVoice, KindText:
		return 30
	case KindScheduled:
		return 20
	case KindBackground:
		return 10
	default:
		return 0
	}
}

func (k TaskKind) Valid() bool {
	switch k {
	case KindEmergency, KindVoice, KindText, KindScheduled, KindBackground:
		return true
	}
	return false
}

// Mode is the system-wide operating mode pushed to every client.
type Mode string

const (
	ModeNormal    Mode = "NORMAL"
	ModeEmergency Mode = "EMERGENCY"
)

// ZoneAll is the derived aggregate zone. It is expanded to the concrete
// zone list at the edge and never stored as a zone of its own.
const ZoneAll = "ALL"

// Payload carries the content of a task. Exactly one field is set,
// depending on the kind: StreamID for voice, Text for text and spoken
// schedules, AudioRef for recorded schedules and background music.
type Payload struct {
	Text     string `json:"text,omitempty"`
	AudioRef string `json:"audio_ref,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
}

// ChannelTask is the unit of channel ownership. At most one
// non-background task exists at any time; the server is the only writer.
type ChannelTask struct {
	ID          string     `json:"id"`
	Kind        TaskKind   `json:"kind"`
	Owner       string     `json:"owner"`
	Zones       []string   `json:"zones"`
	Payload     Payload    `json:"payload"`
	Priority    int        `json:"priority"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SystemState is the read-only projection every client observes.
type SystemState struct {
	Mode       Mode         `json:"mode"`
	ActiveTask *ChannelTask `json:"active_task"`
}

// StateEvent is the wire envelope pushed on every transition.
type StateEvent struct {
	Type      string      `json:"type"`
	State     SystemState `json:"state"`
	Timestamp time.Time   `json:"timestamp"`
}

// FinishReason records how a task left the channel.
type FinishReason string

const (
	FinishReleased  FinishReason = "released"
	FinishCompleted FinishReason = "completed"
	FinishPreempted FinishReason = "preempted"
	FinishReclaimed FinishReason = "reclaimed"
)

// SessionLogEntry is the audit record tied to one task lifetime.
// Rejected requests never produce an entry.
type SessionLogEntry struct {
	ID         string  `db:"id" json:"id"`
	User       string  `db:"user" json:"user"`
	Kind       string  `db:"kind" json:"kind"`
	Target     string  `db:"target" json:"target"`
	StartLabel string  `db:"start_label" json:"start_label"`
	EndLabel   *string `db:"end_label" json:"end_label,omitempty"`
	CreatedAt  string  `db:"created_at" json:"created_at"`
}

// EmergencyEvent is one entry in the emergency history, newest first.
type EmergencyEvent struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	User   string `json:"user"`
	Time   string `json:"time"`
}

const (
	EmergencyActivate   = "ACTIVATE"
	EmergencyDeactivate = "DEACTIVATE"
)

// EmergencyStatus mirrors the server's emergency document: the flag plus
// its full history.
type EmergencyStatus struct {
	Active  bool             `json:"active"`
	History []EmergencyEvent `json:"history"`
}

// NormalizeZones expands ZoneAll against the known zone list, removes
// duplicates and returns a sorted set. An empty result is the caller's
// error to reject; zones may never be empty on a live task.
func NormalizeZones(zones, known []string) []string {
	set := make(map[string]struct{})
	for _, z := range zones {
		if z == ZoneAll {
			for _, k := range known {
				set[k] = struct{}{}
			}
			continue
		}
		if z != "" {
			set[z] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for z := range set {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// ZoneLabel renders a zone set for audit records, collapsing a full set
// back to the ALL aggregate.
func ZoneLabel(zones, known []string) string {
	if len(known) > 0 && len(zones) == len(known) {
		return ZoneAll
	}
	return strings.Join(zones, ", ")
}
