// Package pvp implements pairwise PvP engagement locks: attack, flee,
// inactivity forfeit, and the rare-resource PvP flag (§4.6). Grounded on
// §9's design note to prefer "a central registry with id -> record and
// two side indices" over a map keyed twice by each participant.
package pvp

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/economy"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

// InactivityThreshold is the 60s window after which an unresponsive side
// forfeits (§4.6, §5).
const InactivityThreshold = 60 * time.Second

// RareFlagDuration is the 30-tick PvP-flag window after gathering a rare
// resource (§4.6).
const RareFlagDuration = 30

// Engagement is a pairwise PvP lock (§3).
type Engagement struct {
	ID               uint64
	AttackerID       uint64
	DefenderID       uint64
	Location         string
	AttackerLastAction time.Time
	DefenderLastAction time.Time
	StartedAt        time.Time
}

// canonicalPair returns (lo, hi) for two agent ids regardless of argument
// order. No lock path calls it: the registry's single mutex guards both
// participants' index entries.
func canonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Registry tracks at most one engagement per agent (§3 invariant),
// indexed by both participants to the same record.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	byID     map[uint64]*Engagement
	byAgent  map[uint64]uint64 // agentID -> engagement id
}

// NewRegistry constructs an empty engagement registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[uint64]*Engagement{}, byAgent: map[uint64]uint64{}}
}

// Of returns the agent's active engagement, or nil.
func (r *Registry) Of(agentID uint64) *Engagement {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAgent[agentID]
	if !ok {
		return nil
	}
	return r.byID[id]
}

func (r *Registry) end(e *Engagement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, e.ID)
	delete(r.byAgent, e.AttackerID)
	delete(r.byAgent, e.DefenderID)
}

func (r *Registry) create(attacker, defender uint64, location string) *Engagement {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now().UTC()
	e := &Engagement{ID: r.nextID, AttackerID: attacker, DefenderID: defender, Location: location, AttackerLastAction: now, DefenderLastAction: now, StartedAt: now}
	r.byID[e.ID] = e
	r.byAgent[attacker] = e.ID
	r.byAgent[defender] = e.ID
	return e
}

// AllActive returns a snapshot of every engagement, for persistence.
func (r *Registry) AllActive() []Engagement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Engagement, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	return out
}

// Restore reinstalls a persisted engagement set (Persistence Orchestrator
// startup load, §4.11).
func (r *Registry) Restore(rows []Engagement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = map[uint64]*Engagement{}
	r.byAgent = map[uint64]uint64{}
	var maxID uint64
	for i := range rows {
		e := rows[i]
		r.byID[e.ID] = &e
		r.byAgent[e.AttackerID] = e.ID
		r.byAgent[e.DefenderID] = e.ID
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	r.nextID = maxID
}

// Outcome is the result of an attack/flee action for the router to narrate.
type Outcome struct {
	Result       engineerr.Result
	EngagementEnded bool
	LoserDied    bool
}

// Attack resolves `attack @name` (§4.6).
func Attack(w *state.World, cat *config.Catalog, reg *Registry, attacker *state.Agent, defender *state.Agent) Outcome {
	if defender == nil || !defender.IsAlive {
		return Outcome{Result: engineerr.Fail(engineerr.NotFound, "no such target here")}
	}
	if defender.Location != attacker.Location {
		return Outcome{Result: engineerr.Fail(engineerr.InvalidInput, "they aren't here")}
	}
	zone := cat.Zones[attacker.Location]
	tick := w.Tick()
	flagged := IsFlagged(attacker, tick) || IsFlagged(defender, tick)
	if zone.Safe && !flagged {
		return Outcome{Result: engineerr.Fail(engineerr.Gated, "this zone is safe — no PvP here")}
	}

	existing := reg.Of(attacker.ID)
	if existing != nil {
		other := existing.AttackerID
		if existing.AttackerID == attacker.ID {
			other = existing.DefenderID
		}
		if other != defender.ID {
			return Outcome{Result: engineerr.Fail(engineerr.Conflict, "you're already engaged with someone else")}
		}
	}

	now := time.Now().UTC()
	defEngagement := reg.Of(defender.ID)
	if defEngagement != nil && defEngagement.AttackerID != attacker.ID && defEngagement.DefenderID != attacker.ID {
		forfeitSide := staleSide(defEngagement, now)
		if forfeitSide != 0 {
			forfeitInactive(w, reg, defEngagement)
		}
	}

	eng := existing
	if eng == nil {
		eng = reg.create(attacker.ID, defender.ID, attacker.Location)
	}
	if attacker.ID == eng.AttackerID {
		eng.AttackerLastAction = now
	} else {
		eng.DefenderLastAction = now
	}

	dr := progression.CalculateDamage(cat, attacker, 12+rand.Intn(9))
	reduction := progression.CalculateDamageReduction(cat, defender)
	dmg := dr.Damage - reduction
	if dmg < 1 {
		dmg = 1
	}
	defender.HP -= dmg
	state.ClampHP(defender)

	narrative := fmt.Sprintf("you strike %s for %d", defender.Name, dmg)
	if dr.IsCrit {
		narrative += " (critical!)"
	}

	if defender.HP <= 0 {
		reg.end(eng)
		penalty := economy.ApplyDeath(defender)
		transferLoot(w, defender.ID, attacker.ID)
		progression.GrantXP(cat, attacker, 100, "pvp_win")
		attacker.Reputation += 10
		narrative = fmt.Sprintf("%s falls! they lose %d shells, you gain reputation and spoils", defender.Name, penalty)
		return Outcome{Result: engineerr.Ok(narrative), EngagementEnded: true, LoserDied: true}
	}

	narrative += fmt.Sprintf(" (their hp %d/%d)", defender.HP, defender.MaxHP)
	return Outcome{Result: engineerr.Ok(narrative)}
}

// staleSide returns the agent id whose side of the engagement has been
// inactive beyond InactivityThreshold, or 0 if neither.
func staleSide(e *Engagement, now time.Time) uint64 {
	if now.Sub(e.AttackerLastAction) > InactivityThreshold {
		return e.AttackerID
	}
	if now.Sub(e.DefenderLastAction) > InactivityThreshold {
		return e.DefenderID
	}
	return 0
}

// forfeitInactive ends an engagement, applying 20% maxHp damage to the
// inactive side (§4.6 step 2).
func forfeitInactive(w *state.World, reg *Registry, e *Engagement) engineerr.Result {
	now := time.Now().UTC()
	forfeiter := staleSide(e, now)
	reg.end(e)
	if forfeiter == 0 {
		return engineerr.Result{}
	}
	a := w.Agent(forfeiter)
	if a == nil {
		return engineerr.Result{}
	}
	dmg := int(float64(a.MaxHP) * 0.2)
	a.HP -= dmg
	state.ClampHP(a)
	return engineerr.Ok(fmt.Sprintf("%s forfeits the engagement from inactivity, taking %d damage", a.Name, dmg))
}

// transferLoot moves half of up to 3 inventory stacks from loser to winner (§4.6).
func transferLoot(w *state.World, loserID, winnerID uint64) {
	stacks := w.Inventory(loserID)
	n := 0
	for _, s := range stacks {
		if n >= 3 {
			break
		}
		half := s.Quantity / 2
		if half <= 0 {
			continue
		}
		if w.RemoveInventory(loserID, s.Resource, half) {
			w.AddInventory(winnerID, s.Resource, half)
		}
		n++
	}
}

// Flee attempts to escape an engagement (§4.6): base 50%, +-5% per level
// diff, clamped [20%,90%].
func Flee(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent) Outcome {
	eng := reg.Of(a.ID)
	if eng == nil {
		return Outcome{Result: engineerr.Fail(engineerr.InvalidInput, "you aren't engaged in combat")}
	}
	var opponentID uint64
	if eng.AttackerID == a.ID {
		opponentID = eng.DefenderID
	} else {
		opponentID = eng.AttackerID
	}
	opponent := w.Agent(opponentID)
	if opponent == nil {
		reg.end(eng)
		return Outcome{Result: engineerr.Ok("your opponent is gone; engagement ends")}
	}

	chance := 0.5 + 0.05*float64(a.Level-opponent.Level)
	if chance < 0.2 {
		chance = 0.2
	}
	if chance > 0.9 {
		chance = 0.9
	}

	if rand.Float64() < chance {
		reg.end(eng)
		connected := connectedZones(cat, a.Location)
		dest := "shallows"
		if len(connected) > 0 {
			dest = connected[rand.Intn(len(connected))]
		}
		a.Location = dest
		return Outcome{Result: engineerr.Ok(fmt.Sprintf("you slip away to %s", dest)), EngagementEnded: true}
	}

	dr := progression.CalculateDamage(cat, opponent, 12+rand.Intn(9))
	reduction := progression.CalculateDamageReduction(cat, a)
	dmg := dr.Damage - reduction
	if dmg < 1 {
		dmg = 1
	}
	a.HP -= dmg
	state.ClampHP(a)
	if a.HP <= 0 {
		reg.end(eng)
		penalty := economy.ApplyDeath(a)
		progression.GrantXP(cat, opponent, 100, "pvp_win")
		return Outcome{Result: engineerr.Ok(fmt.Sprintf("the flee fails and %s finishes you; you lose %d shells", opponent.Name, penalty)), EngagementEnded: true, LoserDied: true}
	}
	return Outcome{Result: engineerr.Ok(fmt.Sprintf("the flee fails — %s gets a free strike for %d", opponent.Name, dmg))}
}

func connectedZones(cat *config.Catalog, from string) []string {
	var out []string
	for id, z := range cat.Zones {
		if id != from && !z.Safe {
			out = append(out, id)
		}
	}
	return out
}

// SetRareFlag sets pvpFlaggedUntil after gathering a rare resource (§4.6).
func SetRareFlag(a *state.Agent, currentTick uint64) {
	a.PvPFlaggedUntil = currentTick + RareFlagDuration
}

// IsFlagged reports whether the agent's PvP flag is still active.
func IsFlagged(a *state.Agent, currentTick uint64) bool {
	return a.PvPFlaggedUntil > currentTick
}
