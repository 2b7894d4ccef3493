// Package tutorial tracks first-time-action hints threaded into the
// router's narrative (§4.1 step 5; §3 Tutorial Progress; §9 SUPPLEMENT).
package tutorial

import "sync"

// Step ids correspond to the "first-time" actions named in §4.1/§3.
const (
	StepFirstMove     = "first_move"
	StepFirstGather   = "first_gather"
	StepFirstAttack   = "first_attack"
	StepFirstDeath    = "first_death"
	StepFirstParty    = "first_party_join"
)

var hints = map[string]string{
	StepFirstMove:   "tip: use 'move <zone>' to travel — not every path is safe.",
	StepFirstGather: "tip: gathering rare resources may flag you for PvP.",
	StepFirstAttack: "tip: low on energy? 'flee' ends an encounter without finishing it.",
	StepFirstDeath:  "tip: death costs shells but never levels — rest and get back out there.",
	StepFirstParty:  "tip: party members can share a dungeon's rewards.",
}

// Tracker is a per-agent set of completed step ids.
type Tracker struct {
	mu        sync.Mutex
	completed map[uint64]map[string]bool
}

// NewTracker constructs an empty tutorial tracker.
func NewTracker() *Tracker {
	return &Tracker{completed: map[uint64]map[string]bool{}}
}

// MarkFirst records stepID as completed if not already, returning its
// hint narrative the first time only; empty string on repeat.
func (t *Tracker) MarkFirst(agentID uint64, stepID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.completed[agentID]
	if !ok {
		m = map[string]bool{}
		t.completed[agentID] = m
	}
	if m[stepID] {
		return ""
	}
	m[stepID] = true
	return hints[stepID]
}

// Completed returns the set of step ids an agent has finished (for
// persistence / projections).
func (t *Tracker) Completed(agentID uint64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for step := range t.completed[agentID] {
		out = append(out, step)
	}
	return out
}

// Restore reinstalls a persisted completed-step set for one agent.
func (t *Tracker) Restore(agentID uint64, steps []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := map[string]bool{}
	for _, s := range steps {
		m[s] = true
	}
	t.completed[agentID] = m
}
