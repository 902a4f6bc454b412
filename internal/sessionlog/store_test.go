package sessionlog_test

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/sessionlog"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

var testZones = []string{"Library", "Main Hall"}

func openStore(t *testing.T) *sessionlog.Store {
	t.Helper()
	s, err := sessionlog.Open(filepath.Join(t.TempDir(), "logs.db"), testZones, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func voiceTask(id string, started time.Time) *types.ChannelTask {
	return &types.ChannelTask{
		ID:        id,
		Kind:      types.KindVoice,
		Owner:     "alice",
		Zones:     []string{"Library"},
		StartedAt: started,
	}
}

func TestGrantThenFinish_SealsOneEntry(t *testing.T) {
	s := openStore(t)

	started := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	task := voiceTask("task-1", started)
	s.TaskGranted(task)

	completed := started.Add(42 * time.Second)
	task.CompletedAt = &completed
	s.TaskFinished(task, types.FinishReleased)

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.User != "alice" || e.Kind != "voice" || e.Target != "Library" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.EndLabel == nil {
		t.Fatalf("entry not sealed")
	}
	if e.StartLabel > *e.EndLabel {
		t.Fatalf("start %q after end %q", e.StartLabel, *e.EndLabel)
	}
}

func TestFinishTwice_KeepsFirstSeal(t *testing.T) {
	s := openStore(t)

	started := time.Now()
	task := voiceTask("task-1", started)
	s.TaskGranted(task)

	first := started.Add(10 * time.Second)
	task.CompletedAt = &first
	s.TaskFinished(task, types.FinishCompleted)

	second := started.Add(99 * time.Second)
	task.CompletedAt = &second
	s.TaskFinished(task, types.FinishReleased)

	entries, _ := s.Recent(1)
	if *entries[0].EndLabel != first.Format(sessionlog.TimeLabel) {
		t.Fatalf("seal overwritten: %q", *entries[0].EndLabel)
	}
}

func TestUnloggedKinds_ProduceNoEntry(t *testing.T) {
	s := openStore(t)

	for _, kind := range []types.TaskKind{types.KindEmergency, types.KindBackground} {
		task := voiceTask("task-"+string(kind), time.Now())
		task.Kind = kind
		s.TaskGranted(task)
		s.TaskFinished(task, types.FinishReleased)
	}

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestTextTask_TargetIncludesMessage(t *testing.T) {
	s := openStore(t)

	task := voiceTask("task-1", time.Now())
	task.Kind = types.KindText
	task.Zones = []string{"Library", "Main Hall"}
	task.Payload.Text = "assembly at noon"
	s.TaskGranted(task)

	entries, _ := s.Recent(1)
	if entries[0].Target != `"assembly at noon" to ALL` {
		t.Fatalf("unexpected target: %q", entries[0].Target)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)

	s.TaskGranted(voiceTask("task-1", time.Now()))
	if err := s.Delete("task-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("task-1"); err == nil {
		t.Fatalf("expected error deleting missing entry")
	}
}
