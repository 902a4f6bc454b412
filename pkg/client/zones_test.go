package client

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

var campus = []string{"Admin Office", "Classrooms", "Library", "Main Hall"}

func TestPickerStartsWithAllSelected(t *testing.T) {
	p := NewZonePicker(campus)
	if !p.AllSelected() {
		t.Error("picker should start with every zone selected")
	}
	if got := p.Selected(); !reflect.DeepEqual(got, campus) {
		t.Errorf("Selected = %v, want %v", got, campus)
	}
}

func TestToggleSingleZone(t *testing.T) {
	p := NewZonePicker(campus)
	if err := p.Toggle("Library"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if p.AllSelected() {
		t.Error("AllSelected still true after deselecting Library")
	}
	want := []string{"Admin Office", "Classrooms", "Main Hall"}
	if got := p.Selected(); !reflect.DeepEqual(got, want) {
		t.Errorf("Selected = %v, want %v", got, want)
	}

	// Re-selecting the missing zone restores the aggregate.
	if err := p.Toggle("Library"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !p.AllSelected() {
		t.Error("AllSelected false after restoring Library")
	}
}

func TestAllToggleAggregate(t *testing.T) {
	p := NewZonePicker(campus)

	// ALL while everything is selected clears the selection.
	if err := p.Toggle(types.ZoneAll); err != nil {
		t.Fatalf("Toggle ALL: %v", err)
	}
	if len(p.Selected()) != 0 {
		t.Errorf("Selected = %v, want empty", p.Selected())
	}

	// ALL from a partial (or empty) selection selects everything.
	if err := p.Toggle("Library"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := p.Toggle(types.ZoneAll); err != nil {
		t.Fatalf("Toggle ALL: %v", err)
	}
	if !p.AllSelected() {
		t.Error("ALL toggle did not select every zone")
	}
}

func TestCannotDropLastZoneWhileBroadcasting(t *testing.T) {
	p := NewZonePicker(campus)
	for _, z := range []string{"Admin Office", "Classrooms", "Main Hall"} {
		if err := p.Toggle(z); err != nil {
			t.Fatalf("Toggle %s: %v", z, err)
		}
	}
	p.SetBroadcasting(true)

	err := p.Toggle("Library")
	if !errors.Is(err, ErrNoZones) {
		t.Fatalf("Toggle last zone = %v, want ErrNoZones", err)
	}
	if got := p.Selected(); !reflect.DeepEqual(got, []string{"Library"}) {
		t.Errorf("selection changed on rejected mutation: %v", got)
	}

	// After the broadcast ends the zone can be dropped.
	p.SetBroadcasting(false)
	if err := p.Toggle("Library"); err != nil {
		t.Errorf("Toggle after broadcast: %v", err)
	}
}

func TestAllToggleCannotZeroOutWhileBroadcasting(t *testing.T) {
	p := NewZonePicker(campus)
	p.SetBroadcasting(true)

	err := p.Toggle(types.ZoneAll)
	if !errors.Is(err, ErrNoZones) {
		t.Fatalf("ALL toggle = %v, want ErrNoZones", err)
	}
	if !p.AllSelected() {
		t.Error("selection changed on rejected ALL toggle")
	}
}
