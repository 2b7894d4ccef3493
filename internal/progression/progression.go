// Package progression implements XP/level curves, shell/XP grants, the
// faction permanent rescale, and the damage/damage-reduction formulas
// shared by every combat subsystem (§4.3). It generalizes the teacher's
// per-agent stat-mutation style (agents.DecayNeeds and friends) to the
// Reef leveling model.
package progression

import (
	"math/rand"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/state"
)

// XPForLevel returns the minimum XP required to hold level L (§4.3).
func XPForLevel(level int) int {
	return level * (level - 1) * 50
}

// LevelForXP resolves the level implied by an XP total; used after a
// grant to find how many level-ups occurred.
func LevelForXP(xp int) int {
	level := 1
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// HPPerLevel and EnergyPerLevel govern the max-stat bump on level-up.
const (
	HPPerLevel     = 10
	EnergyPerLevel = 5
)

// faction resolves the agent's FactionBonus, or a neutral zero-bonus if unset.
func faction(cat *config.Catalog, a *state.Agent) config.FactionBonus {
	if a.Faction == "" {
		return config.FactionBonus{XPMultiplier: 1, ShellMultiplier: 1, DamageMultiplier: 1, CritChance: 0}
	}
	fb, ok := cat.Factions[a.Faction]
	if !ok {
		return config.FactionBonus{XPMultiplier: 1, ShellMultiplier: 1, DamageMultiplier: 1, CritChance: 0}
	}
	return fb
}

// GrantXP applies a faction-scaled XP grant, bumping maxHp/maxEnergy on
// any level crossed. Returns the XP actually granted and the number of
// levels gained.
func GrantXP(cat *config.Catalog, a *state.Agent, base int, source string) (granted int, levelsGained int) {
	fb := faction(cat, a)
	granted = int(float64(base) * fb.XPMultiplier)
	if granted <= 0 {
		return 0, 0
	}
	before := LevelForXP(a.XP)
	a.XP += granted
	after := LevelForXP(a.XP)
	if after > before {
		levelsGained = after - before
		a.Level = after
		a.MaxHP += HPPerLevel * levelsGained
		a.MaxEnergy += EnergyPerLevel * levelsGained
		a.HP += HPPerLevel * levelsGained
		a.Energy += EnergyPerLevel * levelsGained
	}
	return granted, levelsGained
}

// GrantMobKillXp scales mob XP by the level gap between agent and mob,
// per the banding table in §4.3.
func GrantMobKillXp(cat *config.Catalog, a *state.Agent, mobXP, mobLevel int) (granted int, levelsGained int) {
	gap := a.Level - mobLevel
	var scale float64
	switch {
	case gap <= -5:
		a.XP += 1
		return 1, bumpLevel(cat, a)
	case gap == -4:
		scale = 0.10
	case gap == -3:
		scale = 0.25
	case gap == -2:
		scale = 0.50
	case gap == -1:
		scale = 0.75
	default: // gap >= 0
		scale = 1.0
	}
	base := int(float64(mobXP) * scale)
	return GrantXP(cat, a, base, "mob_kill")
}

func bumpLevel(cat *config.Catalog, a *state.Agent) int {
	before := LevelForXP(a.XP - 1)
	after := LevelForXP(a.XP)
	if after <= before {
		return 0
	}
	gained := after - before
	a.Level = after
	a.MaxHP += HPPerLevel * gained
	a.MaxEnergy += EnergyPerLevel * gained
	return gained
}

// GrantShells applies the faction shell multiplier.
func GrantShells(cat *config.Catalog, a *state.Agent, base int, source string) int {
	fb := faction(cat, a)
	granted := int(float64(base) * fb.ShellMultiplier)
	state.AddShells(a, granted)
	return granted
}

// DamageResult is the outcome of one attacker damage roll.
type DamageResult struct {
	Damage int
	IsCrit bool
}

// CalculateDamage applies the faction damage multiplier and a Bernoulli
// crit roll (doubles damage) per §4.3.
func CalculateDamage(cat *config.Catalog, attacker *state.Agent, baseRoll int) DamageResult {
	fb := faction(cat, attacker)
	dmg := float64(baseRoll) * fb.DamageMultiplier
	crit := rand.Float64() < fb.CritChance
	if crit {
		dmg *= 2
	}
	return DamageResult{Damage: int(dmg), IsCrit: crit}
}

// CalculateDamageReduction sums armor-slot damage-reduction stats (§4.3).
func CalculateDamageReduction(cat *config.Catalog, defender *state.Agent) int {
	total := 0
	if defender.Equipped.Armor != "" {
		if eq, ok := cat.Equipment[defender.Equipped.Armor]; ok {
			total += eq.DamageReduction
		}
	}
	return total
}

// ZoneAccess describes the outcome of a zone-access check (§4.3).
type ZoneAccess struct {
	UnderLeveled  bool
	RequiredLevel int
	AgentLevel    int
}

// CheckZoneAccess reports whether the agent is under-leveled for a zone;
// under-leveled never blocks entry, it only scales hostile damage.
func CheckZoneAccess(cat *config.Catalog, a *state.Agent, zoneID string) ZoneAccess {
	zone, ok := cat.Zones[zoneID]
	if !ok {
		return ZoneAccess{AgentLevel: a.Level}
	}
	return ZoneAccess{
		UnderLeveled:  a.Level < zone.RequiredLevel,
		RequiredLevel: zone.RequiredLevel,
		AgentLevel:    a.Level,
	}
}

// UnderLeveledDamageMultiplier returns the +15%-per-level-gap multiplier
// applied to hostile damage against an under-leveled agent (§4.3).
func UnderLeveledDamageMultiplier(za ZoneAccess) float64 {
	if !za.UnderLeveled {
		return 1.0
	}
	gap := za.RequiredLevel - za.AgentLevel
	return 1.0 + 0.15*float64(gap)
}

// MinFactionLevel is the earliest level an agent may irrevocably join a
// faction (§4.3: "Level 5+, irrevocable").
const MinFactionLevel = 5

// ApplyFactionStats permanently rescales maxHp and damage on faction
// join. Irrevocable: callers must not allow a second call for the same
// agent once Faction is set.
func ApplyFactionStats(cat *config.Catalog, a *state.Agent, factionID string) bool {
	if a.Level < MinFactionLevel || a.Faction != "" {
		return false
	}
	fb, ok := cat.Factions[factionID]
	if !ok {
		return false
	}
	a.Faction = factionID
	a.MaxHP += fb.MaxHPBonus
	a.HP += fb.MaxHPBonus
	return true
}

// Daily XP-grant caps for rate-limited sources (§4.3).
const (
	DailyMoveXPCap      = 50
	DailyBroadcastXPCap = 10
)

// GrantMoveXP grants move XP subject to the daily counter; returns 0
// without error once the cap is reached.
func GrantMoveXP(cat *config.Catalog, a *state.Agent, base int) int {
	if a.MoveXPToday >= DailyMoveXPCap {
		return 0
	}
	a.MoveXPToday++
	g, _ := GrantXP(cat, a, base, "move")
	return g
}

// GrantBroadcastXP grants broadcast XP subject to the daily counter.
func GrantBroadcastXP(cat *config.Catalog, a *state.Agent, base int) int {
	if a.BroadcastXPToday >= DailyBroadcastXPCap {
		return 0
	}
	a.BroadcastXPToday++
	g, _ := GrantXP(cat, a, base, "broadcast")
	return g
}
