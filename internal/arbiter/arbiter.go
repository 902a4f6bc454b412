// Package arbiter holds the channel arbitration decision table. It is a
// pure function of the requested kind and the currently held task: no
// clocks, no randomness, no side effects.
package arbiter

import (
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

type Outcome int

const (
	// OutcomeGrant grants the channel. When the current task already
	// belongs to the requester with the same kind, the grant resumes the
	// existing task instead of minting a new one.
	OutcomeGrant Outcome = iota
	// OutcomeReject refuses the request; Reason says why.
	OutcomeReject
	// OutcomePreempt stops the current task and grants the requested one.
	OutcomePreempt
)

type Reason string

const (
	// ReasonConflict: another owner holds a non-background task.
	ReasonConflict Reason = "conflict"
	// ReasonEmergencyActive: the channel is held by an emergency task.
	ReasonEmergencyActive Reason = "emergency_active"
	// ReasonBusy: the requester's own non-background task of a different
	// kind, or a background request against an active foreground task.
	ReasonBusy Reason = "busy"
)

type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Resume is set on a grant that re-attaches to the existing task.
	Resume bool
}

func grant() Decision          { return Decision{Outcome: OutcomeGrant} }
func resume() Decision         { return Decision{Outcome: OutcomeGrant, Resume: true} }
func preempt() Decision        { return Decision{Outcome: OutcomePreempt} }
func reject(r Reason) Decision { return Decision{Outcome: OutcomeReject, Reason: r} }

// Decide resolves a request for the channel against the task currently
// holding it. current is nil when the channel is free.
func Decide(requested types.TaskKind, owner string, current *types.ChannelTask) Decision {
	if requested == types.KindEmergency {
		if current == nil {
			return grant()
		}
		return preempt()
	}

	if current == nil {
		return grant()
	}

	if current.Kind == types.KindEmergency {
		return reject(ReasonEmergencyActive)
	}

	if current.Owner == owner && current.Kind == requested {
		if requested == types.KindBackground {
			// Track swap: the owner replaces its own background slot.
			return preempt()
		}
		return resume()
	}

	if current.Kind == types.KindBackground {
		if requested == types.KindBackground {
			return reject(ReasonBusy)
		}
		return preempt()
	}

	// Current task is foreground (voice/text/scheduled).
	if requested == types.KindBackground {
		return reject(ReasonBusy)
	}
	if current.Owner == owner {
		return reject(ReasonBusy)
	}
	return reject(ReasonConflict)
}
