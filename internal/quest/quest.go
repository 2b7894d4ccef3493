// Package quest implements collect-type quests: a static catalog,
// accept/turn-in actions consuming input and granting output (§3 Quest
// Acceptance; §9 SUPPLEMENT — spec.md names this entity but does not
// elaborate a §4 component, so it is shaped minimally to the stated
// predicate).
package quest

import (
	"fmt"
	"sync"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

// Quest is a static collect-type task.
type Quest struct {
	ID             string
	Name           string
	InputResource  string
	InputQty       int
	RewardShells   int
	RewardXP       int
}

// DefaultCatalog returns the built-in quest list.
func DefaultCatalog() map[string]Quest {
	return map[string]Quest{
		"kelp_gathering": {ID: "kelp_gathering", Name: "Kelp for the Kitchens", InputResource: "kelp", InputQty: 10, RewardShells: 50, RewardXP: 30},
		"moonstone_tithe": {ID: "moonstone_tithe", Name: "The Moonstone Tithe", InputResource: "moonstone", InputQty: 5, RewardShells: 120, RewardXP: 60},
		"ruinsteel_delivery": {ID: "ruinsteel_delivery", Name: "Ruinsteel Delivery", InputResource: "ruinsteel", InputQty: 8, RewardShells: 250, RewardXP: 120},
	}
}

// Ledger tracks agentId -> accepted quest ids (§3 Quest Acceptance).
type Ledger struct {
	mu       sync.Mutex
	accepted map[uint64]map[string]bool
}

// NewLedger constructs an empty quest ledger.
func NewLedger() *Ledger {
	return &Ledger{accepted: map[uint64]map[string]bool{}}
}

// Accept records that an agent has taken on a quest.
func (l *Ledger) Accept(catalog map[string]Quest, agentID uint64, questID string) engineerr.Result {
	q, ok := catalog[questID]
	if !ok {
		return engineerr.Fail(engineerr.NotFound, "no such quest")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.accepted[agentID]
	if !ok {
		m = map[string]bool{}
		l.accepted[agentID] = m
	}
	if m[questID] {
		return engineerr.Fail(engineerr.Conflict, "you already accepted that quest")
	}
	m[questID] = true
	return engineerr.Ok(fmt.Sprintf("accepted quest: %s", q.Name))
}

// HasAccepted reports whether an agent holds an open acceptance for questID.
func (l *Ledger) HasAccepted(agentID uint64, questID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepted[agentID][questID]
}

// AcceptedRow is one persisted (agent, quest) acceptance.
type AcceptedRow struct {
	AgentID uint64
	QuestID string
}

// AllAccepted flattens the acceptance ledger for persistence.
func (l *Ledger) AllAccepted() []AcceptedRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AcceptedRow
	for agentID, qs := range l.accepted {
		for questID := range qs {
			out = append(out, AcceptedRow{AgentID: agentID, QuestID: questID})
		}
	}
	return out
}

// Restore reinstalls a persisted acceptance ledger, used on load.
func (l *Ledger) Restore(rows []AcceptedRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepted = map[uint64]map[string]bool{}
	for _, r := range rows {
		m, ok := l.accepted[r.AgentID]
		if !ok {
			m = map[string]bool{}
			l.accepted[r.AgentID] = m
		}
		m[r.QuestID] = true
	}
}

// TurnIn consumes the quest's input from inventory and grants its
// output, clearing the acceptance (§3: "consumes input, grants output").
func TurnIn(cat *config.Catalog, w *state.World, l *Ledger, catalog map[string]Quest, a *state.Agent, questID string) engineerr.Result {
	q, ok := catalog[questID]
	if !ok {
		return engineerr.Fail(engineerr.NotFound, "no such quest")
	}
	if !l.HasAccepted(a.ID, questID) {
		return engineerr.Fail(engineerr.Gated, "you haven't accepted that quest")
	}
	if !w.InventoryHasAtLeast(a.ID, q.InputResource, q.InputQty) {
		return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("you need %d %s", q.InputQty, q.InputResource))
	}
	w.RemoveInventory(a.ID, q.InputResource, q.InputQty)
	progression.GrantShells(cat, a, q.RewardShells, "quest")
	progression.GrantXP(cat, a, q.RewardXP, "quest")
	l.mu.Lock()
	delete(l.accepted[a.ID], questID)
	l.mu.Unlock()
	return engineerr.Ok(fmt.Sprintf("turned in %s: +%d shells, +%d xp", q.Name, q.RewardShells, q.RewardXP))
}
