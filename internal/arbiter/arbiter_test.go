package arbiter_test

import (
	"reflect"
	"testing"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/arbiter"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

func task(kind types.TaskKind, owner string) *types.ChannelTask {
	return &types.ChannelTask{ID: "t-" + string(kind), Kind: kind, Owner: owner, Priority: kind.Priority()}
}

func TestDecide_Table(t *testing.T) {
	cases := []struct {
		name      string
		requested types.TaskKind
		owner     string
		current   *types.ChannelTask
		want      arbiter.Outcome
		reason    arbiter.Reason
		resume    bool
	}{
		{"free channel grants voice", types.KindVoice, "alice", nil, arbiter.OutcomeGrant, "", false},
		{"free channel grants background", types.KindBackground, "alice", nil, arbiter.OutcomeGrant, "", false},
		{"emergency on free channel grants", types.KindEmergency, "alice", nil, arbiter.OutcomeGrant, "", false},
		{"emergency preempts voice", types.KindEmergency, "alice", task(types.KindVoice, "bob"), arbiter.OutcomePreempt, "", false},
		{"emergency preempts background", types.KindEmergency, "alice", task(types.KindBackground, "bob"), arbiter.OutcomePreempt, "", false},
		{"emergency preempts emergency", types.KindEmergency, "alice", task(types.KindEmergency, "bob"), arbiter.OutcomePreempt, "", false},
		{"voice rejected during emergency", types.KindVoice, "alice", task(types.KindEmergency, "bob"), arbiter.OutcomeReject, arbiter.ReasonEmergencyActive, false},
		{"text rejected during emergency", types.KindText, "alice", task(types.KindEmergency, "bob"), arbiter.OutcomeReject, arbiter.ReasonEmergencyActive, false},
		{"background rejected during emergency", types.KindBackground, "alice", task(types.KindEmergency, "bob"), arbiter.OutcomeReject, arbiter.ReasonEmergencyActive, false},
		{"voice preempts background", types.KindVoice, "alice", task(types.KindBackground, "bob"), arbiter.OutcomePreempt, "", false},
		{"text preempts background", types.KindText, "alice", task(types.KindBackground, "bob"), arbiter.OutcomePreempt, "", false},
		{"scheduled preempts background", types.KindScheduled, "alice", task(types.KindBackground, "bob"), arbiter.OutcomePreempt, "", false},
		{"voice vs voice other owner conflicts", types.KindVoice, "alice", task(types.KindVoice, "bob"), arbiter.OutcomeReject, arbiter.ReasonConflict, false},
		{"voice vs scheduled conflicts", types.KindVoice, "alice", task(types.KindScheduled, "scheduler"), arbiter.OutcomeReject, arbiter.ReasonConflict, false},
		{"text vs voice other owner conflicts", types.KindText, "alice", task(types.KindVoice, "bob"), arbiter.OutcomeReject, arbiter.ReasonConflict, false},
		{"same owner same kind resumes", types.KindVoice, "alice", task(types.KindVoice, "alice"), arbiter.OutcomeGrant, "", true},
		{"same owner other kind busy", types.KindText, "alice", task(types.KindVoice, "alice"), arbiter.OutcomeReject, arbiter.ReasonBusy, false},
		{"background behind foreground busy", types.KindBackground, "alice", task(types.KindVoice, "bob"), arbiter.OutcomeReject, arbiter.ReasonBusy, false},
		{"background swap same owner preempts", types.KindBackground, "alice", task(types.KindBackground, "alice"), arbiter.OutcomePreempt, "", false},
		{"background vs other background busy", types.KindBackground, "alice", task(types.KindBackground, "bob"), arbiter.OutcomeReject, arbiter.ReasonBusy, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := arbiter.Decide(tc.requested, tc.owner, tc.current)
			if d.Outcome != tc.want {
				t.Fatalf("outcome = %v, want %v", d.Outcome, tc.want)
			}
			if tc.want == arbiter.OutcomeReject && d.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", d.Reason, tc.reason)
			}
			if d.Resume != tc.resume {
				t.Fatalf("resume = %v, want %v", d.Resume, tc.resume)
			}
		})
	}
}

func TestDecide_IsPure(t *testing.T) {
	cur := task(types.KindVoice, "bob")
	before := *cur
	for i := 0; i < 3; i++ {
		d := arbiter.Decide(types.KindVoice, "alice", cur)
		if d.Outcome != arbiter.OutcomeReject {
			t.Fatalf("expected stable reject, got %v on call %d", d.Outcome, i)
		}
	}
	if !reflect.DeepEqual(*cur, before) {
		t.Fatalf("decide mutated its input: %+v", cur)
	}
}
