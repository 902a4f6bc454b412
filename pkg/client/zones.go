package client

import (
	"sort"
	"sync"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// ZonePicker tracks the operator's zone selection. The "all zones"
// toggle is an aggregate over the individual zones, and while a
// broadcast is live the selection can never drop to zero.
type ZonePicker struct {
	mu           sync.Mutex
	known        []string
	selected     map[string]bool
	broadcasting bool
}

// NewZonePicker starts with every known zone selected, matching the
// panel's "All Zones" default.
func NewZonePicker(known []string) *ZonePicker {
	selected := make(map[string]bool, len(known))
	for _, z := range known {
		selected[z] = true
	}
	return &ZonePicker{known: append([]string(nil), known...), selected: selected}
}

// Toggle flips a single zone, or the whole selection when zone is
// types.ZoneAll. Mutations that would leave a live broadcast with zero
// zones are rejected with ErrNoZones and leave the selection unchanged.
func (p *ZonePicker) Toggle(zone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if zone == types.ZoneAll {
		if p.allSelectedLocked() {
			if p.broadcasting {
				return ErrNoZones
			}
			for z := range p.selected {
				p.selected[z] = false
			}
			return nil
		}
		for _, z := range p.known {
			p.selected[z] = true
		}
		return nil
	}

	if !p.selected[zone] {
		p.selected[zone] = true
		return nil
	}
	if p.broadcasting && p.countLocked() == 1 {
		return ErrNoZones
	}
	p.selected[zone] = false
	return nil
}

// Selected returns the selected zones, sorted. When every known zone is
// selected the set still enumerates them; use AllSelected for the
// aggregate view.
func (p *ZonePicker) Selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.selected))
	for z, on := range p.selected {
		if on {
			out = append(out, z)
		}
	}
	sort.Strings(out)
	return out
}

// AllSelected reports whether every known zone is selected.
func (p *ZonePicker) AllSelected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allSelectedLocked()
}

// SetBroadcasting arms or disarms the minimum-one-zone guard.
func (p *ZonePicker) SetBroadcasting(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasting = on
}

func (p *ZonePicker) allSelectedLocked() bool {
	for _, z := range p.known {
		if !p.selected[z] {
			return false
		}
	}
	return len(p.known) > 0
}

func (p *ZonePicker) countLocked() int {
	n := 0
	for _, on := range p.selected {
		if on {
			n++
		}
	}
	return n
}
