package client

import (
	"sync"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// EmergencySirenController drives the local siren from the pushed mode
// alone, independent of the active task or any arbitration outcome.
// Silencing on activation is unconditional and local: it never waits
// for a network acknowledgment.
type EmergencySirenController struct {
	siren   Siren
	stopAll func()

	mu     sync.Mutex
	active bool
}

// NewEmergencySirenController builds a controller. stopAll is the
// executor's stop-everything procedure, invoked before the siren
// starts.
func NewEmergencySirenController(siren Siren, stopAll func()) *EmergencySirenController {
	return &EmergencySirenController{siren: siren, stopAll: stopAll}
}

// Observe reacts to mode transitions. Duplicate pushes are no-ops.
func (c *EmergencySirenController) Observe(ev types.StateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	emergency := ev.State.Mode == types.ModeEmergency
	if emergency == c.active {
		return
	}
	c.active = emergency

	if emergency {
		c.stopAll()
		c.siren.Start()
		return
	}
	c.siren.Stop()
}

// Active reports whether the siren is sounding.
func (c *EmergencySirenController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
