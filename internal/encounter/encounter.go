// Package encounter implements the per-agent PvE combat slot: travel
// ambush and resource-guardian starts, the attack/flee combat step, loot
// rolls, and death handling (§4.5). There is no teacher analogue for
// combat — the teacher's world is peaceful — so this package is new,
// built in the teacher's method style (verb-first functions taking the
// world and catalog, pure-ish aside from their state.World mutations)
// and grounded on the teacher's own Bernoulli-roll convention in
// internal/engine/simulation.go (processRandomEvents).
package encounter

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/economy"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

// EnergyPerAttack is the energy cost of one attack action (§8 boundary test).
const EnergyPerAttack = 10

// Encounter is one agent's active PvE combat slot (§3, §4.5).
type Encounter struct {
	Mob                config.Mob
	MobHP              int
	MobMaxHP           int
	Zone               string
	IsResourceGuardian bool
	GuardedResource    string
	PendingDestination string // set for travel-ambush: the move completes on mob death
}

// Registry holds at most one Encounter per agent (§4.5 invariant),
// guarded by its own lock since it is mutated outside the agent's own
// struct (an agent may not hold its own encounter pointer across a
// snapshot reload).
type Registry struct {
	mu         sync.Mutex
	byAgent    map[uint64]*Encounter
}

// NewRegistry constructs an empty encounter registry.
func NewRegistry() *Registry {
	return &Registry{byAgent: map[uint64]*Encounter{}}
}

// Active returns the agent's current encounter, or nil.
func (r *Registry) Active(agentID uint64) *Encounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byAgent[agentID]
}

func (r *Registry) set(agentID uint64, e *Encounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e == nil {
		delete(r.byAgent, agentID)
		return
	}
	r.byAgent[agentID] = e
}

// scaleMobStats scales a mob template's HP/damage by zone-depth relative
// to the agent (kept flat for now: mobs are zone-specific templates
// already tuned to that zone's level, matching the catalog design).
func scaleMobStats(m config.Mob) (hp, dmg int) {
	return m.HP, m.Damage
}

// getEncounterChance returns the travel-ambush probability, increasing
// with the zone's base rate and the under-level gap (§4.5).
func getEncounterChance(base float64, za progression.ZoneAccess) float64 {
	chance := base
	if za.UnderLeveled {
		chance += 0.05 * float64(za.RequiredLevel-za.AgentLevel)
	}
	if chance > 0.9 {
		chance = 0.9
	}
	return chance
}

// TryTravelAmbush rolls for an ambush encounter on `move`. destination is
// the zone the agent was trying to reach; on a hit, the agent does NOT
// move — the encounter is "in transit" (§4.5).
func TryTravelAmbush(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent, destination string) (started bool, result engineerr.Result) {
	zone, ok := cat.Zones[destination]
	if !ok || zone.Safe {
		return false, engineerr.Result{}
	}
	za := progression.CheckZoneAccess(cat, a, destination)
	chance := getEncounterChance(zone.EncounterBase, za)
	if rand.Float64() >= chance {
		return false, engineerr.Result{}
	}
	mobIDs := cat.MobsByZone[destination]
	if len(mobIDs) == 0 {
		return false, engineerr.Result{}
	}
	mobTemplate := cat.Mobs[mobIDs[rand.Intn(len(mobIDs))]]
	hp, dmg := scaleMobStats(mobTemplate)
	mobTemplate.HP, mobTemplate.Damage = hp, dmg
	enc := &Encounter{Mob: mobTemplate, MobHP: hp, MobMaxHP: hp, Zone: destination, PendingDestination: destination}
	reg.set(a.ID, enc)
	a.Energy -= 5
	state.ClampEnergy(a)
	return true, engineerr.Ok(fmt.Sprintf("a %s ambushes you on the way to %s!", mobTemplate.Name, destination))
}

// TryResourceGuardian starts a guardian encounter on `gather` whenever the
// resource has a guardian (no chance roll), suppressed if this agent killed this zone's guardian for this resource within the
// last 50 ticks (§4.5).
func TryResourceGuardian(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent, zone, resource string, currentTick uint64) (started bool, result engineerr.Result) {
	var guardian *config.Mob
	for id, m := range cat.Mobs {
		if m.IsResourceGuardian && m.GuardedResource == resource {
			mm := cat.Mobs[id]
			guardian = &mm
			break
		}
	}
	if guardian == nil {
		return false, engineerr.Result{}
	}
	if w.GuardianRecentlyKilled(a.ID, resource, zone, currentTick) {
		return false, engineerr.Result{}
	}
	hp, dmg := scaleMobStats(*guardian)
	guardian.HP, guardian.Damage = hp, dmg
	enc := &Encounter{Mob: *guardian, MobHP: hp, MobMaxHP: hp, Zone: zone, IsResourceGuardian: true, GuardedResource: resource}
	reg.set(a.ID, enc)
	return true, engineerr.Ok(fmt.Sprintf("the %s guards the %s — you must defeat it first!", guardian.Name, resource))
}

// Outcome captures the combat-step result for the router to narrate and
// apply post-action effects from (death, level-ups, etc).
type Outcome struct {
	Result      engineerr.Result
	EncounterEnded bool
	AgentDied   bool
	DeathPenalty int
	MovedTo     string
}

// Attack resolves one combat round against the agent's active encounter.
func Attack(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent, currentTick uint64) Outcome {
	enc := reg.Active(a.ID)
	if enc == nil {
		return Outcome{Result: engineerr.Fail(engineerr.InvalidInput, "you aren't in an encounter")}
	}
	if a.Energy < EnergyPerAttack {
		return Outcome{Result: engineerr.Fail(engineerr.InsufficientResource, "too tired to attack — flee or rest")}
	}
	a.Energy -= EnergyPerAttack

	dr := progression.CalculateDamage(cat, a, 10+rand.Intn(11))
	enc.MobHP -= dr.Damage

	if enc.MobHP <= 0 {
		return finishKill(w, cat, reg, a, enc, currentTick, dr)
	}

	za := progression.CheckZoneAccess(cat, a, enc.Zone)
	retaliation := float64(enc.Mob.Damage+rand.Intn(6)) * progression.UnderLeveledDamageMultiplier(za)
	reduction := progression.CalculateDamageReduction(cat, a)
	dmg := int(retaliation) - reduction
	if dmg < 1 {
		dmg = 1
	}
	a.HP -= dmg
	state.ClampHP(a)

	if a.HP <= 0 {
		reg.set(a.ID, nil)
		penalty := economy.ApplyDeath(a)
		return Outcome{
			Result:       engineerr.Ok(fmt.Sprintf("the %s strikes you down! you lose %d shells and respawn in the shallows", enc.Mob.Name, penalty)),
			EncounterEnded: true, AgentDied: true, DeathPenalty: penalty,
		}
	}

	narrative := fmt.Sprintf("you hit the %s for %d", enc.Mob.Name, dr.Damage)
	if dr.IsCrit {
		narrative += " (critical!)"
	}
	narrative += fmt.Sprintf("; it strikes back for %d. (mob hp %d/%d, your hp %d/%d) — attack or flee", dmg, enc.MobHP, enc.MobMaxHP, a.HP, a.MaxHP)
	return Outcome{Result: engineerr.Ok(narrative)}
}

func finishKill(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent, enc *Encounter, currentTick uint64, dr progression.DamageResult) Outcome {
	granted, levels := progression.GrantMobKillXp(cat, a, enc.Mob.XP, enc.Mob.Level)
	shells := progression.GrantShells(cat, a, enc.Mob.Shells, "mob_kill")

	var dropped []string
	for _, entry := range enc.Mob.LootTable {
		if rand.Float64() < entry.Chance {
			qty := entry.Min
			if entry.Max > entry.Min {
				qty += rand.Intn(entry.Max - entry.Min + 1)
			}
			added, overflow := w.AddInventory(a.ID, entry.Resource, qty)
			if added > 0 {
				dropped = append(dropped, fmt.Sprintf("%d %s", added, entry.Resource))
			}
			if overflow {
				dropped = append(dropped, fmt.Sprintf("(some %s lost — inventory full)", entry.Resource))
			}
		}
	}

	movedTo := ""
	if enc.IsResourceGuardian {
		w.RecordGuardianKill(a.ID, enc.GuardedResource, enc.Zone, currentTick)
	} else if enc.PendingDestination != "" {
		a.Location = enc.PendingDestination
		a.VisitedZones[enc.PendingDestination] = true
		movedTo = enc.PendingDestination
	}
	reg.set(a.ID, nil)

	narrative := fmt.Sprintf("you defeated the %s! +%d xp, +%d shells", enc.Mob.Name, granted, shells)
	if len(dropped) > 0 {
		narrative += " — looted " + fmt.Sprint(dropped)
	}
	if levels > 0 {
		narrative += fmt.Sprintf(" — level up! you are now level %d", a.Level)
	}
	if movedTo != "" {
		narrative += fmt.Sprintf(" — you arrive at %s", movedTo)
	}
	return Outcome{Result: engineerr.Ok(narrative), EncounterEnded: true, MovedTo: movedTo}
}

// Flee attempts to escape the active encounter (§4.5): damage =
// floor(mobDamage*0.5) + U(0,5), reduced by armor, minimum 1; on travel
// ambush the agent stays in the origin zone.
func Flee(w *state.World, cat *config.Catalog, reg *Registry, a *state.Agent) Outcome {
	enc := reg.Active(a.ID)
	if enc == nil {
		return Outcome{Result: engineerr.Fail(engineerr.InvalidInput, "you aren't in an encounter")}
	}
	dmg := int(float64(enc.Mob.Damage)*0.5) + rand.Intn(6) - progression.CalculateDamageReduction(cat, a)
	if dmg < 1 {
		dmg = 1
	}
	a.HP -= dmg
	state.ClampHP(a)
	reg.set(a.ID, nil)
	if a.HP <= 0 {
		penalty := economy.ApplyDeath(a)
		return Outcome{
			Result:       engineerr.Ok(fmt.Sprintf("you flee but the %s catches you; you lose %d shells and respawn", enc.Mob.Name, penalty)),
			EncounterEnded: true, AgentDied: true, DeathPenalty: penalty,
		}
	}
	return Outcome{Result: engineerr.Ok(fmt.Sprintf("you flee the %s, taking %d damage", enc.Mob.Name, dmg)), EncounterEnded: true}
}

// Look returns an inspection narrative for the active encounter.
func Look(reg *Registry, a *state.Agent) engineerr.Result {
	enc := reg.Active(a.ID)
	if enc == nil {
		return engineerr.Fail(engineerr.InvalidInput, "you aren't in an encounter")
	}
	return engineerr.Ok(fmt.Sprintf("%s: %d/%d hp — attack or flee", enc.Mob.Name, enc.MobHP, enc.MobMaxHP))
}
