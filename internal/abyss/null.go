// Package abyss implements the season-finale gate and The Null boss
// fight (§4.9). New subsystem, built in the same singleton-behind-a-lock
// shape as internal/boss.
package abyss

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

const (
	MinAliveInZone = 3
	EnergyCost     = 25
	DamageCapPerAgent = 500
	NullShellPool  = 2000
	NullMaxHP      = 100000
	ZoneID         = "the_abyss"
)

// GateOverride mirrors ABYSS_GATE_OVERRIDE (§4.9, §6).
type GateOverride string

const (
	OverrideClosed GateOverride = "closed"
	OverrideAuto   GateOverride = "auto"
	OverrideOpen   GateOverride = "open"
)

// Contribution tracks one agent's source-attributed ledger entry (§4.9).
type Contribution struct {
	Shells    int
	Resources map[string]int
}

// Abyss is the singleton season-finale state (§3).
type Abyss struct {
	mu             sync.Mutex
	IsOpen         bool
	OpenedAtTick   uint64
	EventDuration  uint64
	NullHP         int
	NullMaxHP      int
	NullPhase      int // 0 = not fighting, 1/2/3
	Participants   map[uint64]int // agentID -> damage this cycle
	Contributions  map[uint64]*Contribution
	Requirements   map[string]int // resource -> current
	Override       GateOverride
}

// New constructs a closed Abyss seeded with the catalog's requirements.
func New(cat *config.Catalog) *Abyss {
	reqs := map[string]int{}
	for _, r := range cat.AbyssReqs {
		reqs[r.Resource] = 0
	}
	return &Abyss{
		EventDuration: 2000, NullMaxHP: NullMaxHP,
		Participants: map[uint64]int{}, Contributions: map[uint64]*Contribution{},
		Requirements: reqs, Override: OverrideClosed,
	}
}

// gateSatisfiedLocked reports whether every requirement has current >= required.
func (ab *Abyss) gateSatisfiedLocked(cat *config.Catalog) bool {
	for _, r := range cat.AbyssReqs {
		if ab.Requirements[r.Resource] < r.Required {
			return false
		}
	}
	return true
}

// Contribute adds a shells or resource contribution, tracked per-agent
// for leaderboard attribution (§4.9).
func (ab *Abyss) Contribute(cat *config.Catalog, agentID uint64, resource string, qty int, currentTick uint64) engineerr.Result {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if _, ok := ab.Requirements[resource]; !ok {
		return engineerr.Fail(engineerr.InvalidInput, "the Abyss does not accept that")
	}
	ab.Requirements[resource] += qty
	c, ok := ab.Contributions[agentID]
	if !ok {
		c = &Contribution{Resources: map[string]int{}}
		ab.Contributions[agentID] = c
	}
	if resource == "shells" {
		c.Shells += qty
	} else {
		c.Resources[resource] += qty
	}

	narrative := fmt.Sprintf("contributed %d %s to the Abyss gate", qty, resource)
	if ab.Override != OverrideOpen && ab.gateSatisfiedLocked(cat) && !ab.IsOpen {
		ab.open(currentTick)
		narrative += " — the gate has opened!"
	}
	return engineerr.Ok(narrative)
}

func (ab *Abyss) open(currentTick uint64) {
	ab.IsOpen = true
	ab.OpenedAtTick = currentTick
	ab.NullPhase = 1
	ab.NullHP = ab.NullMaxHP
	ab.Participants = map[uint64]int{}
}

// CheckWindow closes the gate and decays requirements 50% if the event
// window elapsed without a kill (§4.9); called by the background
// scheduler each tick.
func (ab *Abyss) CheckWindow(currentTick uint64) (closed bool, narrative string) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if !ab.IsOpen {
		return false, ""
	}
	if currentTick-ab.OpenedAtTick < ab.EventDuration {
		return false, ""
	}
	ab.IsOpen = false
	ab.NullPhase = 0
	ab.NullHP = ab.NullMaxHP
	for res, cur := range ab.Requirements {
		ab.Requirements[res] = cur / 2
	}
	return true, "the Abyss gate closes, unbreached — its requirements have decayed"
}

// IsGated reports whether `abyss challenge` is currently permitted,
// honoring the admin override (§4.9).
func (ab *Abyss) IsGated() (bool, string) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	switch ab.Override {
	case OverrideClosed:
		return true, "the Abyss gate is closed"
	case OverrideOpen:
		return false, ""
	default: // auto
		if !ab.IsOpen {
			return true, "the Abyss gate has not opened yet"
		}
		return false, ""
	}
}

// ChallengeOutcome is the result of one `abyss challenge` damage exchange.
type ChallengeOutcome struct {
	Result engineerr.Result
	Killed bool
	Payout *PayoutPlan
}

// Challenge resolves one damage exchange against The Null (§4.9).
func Challenge(cat *config.Catalog, ab *Abyss, a *state.Agent, agentsInZone int) ChallengeOutcome {
	gated, msg := ab.IsGated()
	if gated {
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, msg)}
	}
	if agentsInZone < MinAliveInZone {
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, "you need at least 3 agents in the Abyss to challenge the Null")}
	}
	if a.Energy < EnergyCost {
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.InsufficientResource, "not enough energy")}
	}

	ab.mu.Lock()
	a.Energy -= EnergyCost
	already := ab.Participants[a.ID]
	room := DamageCapPerAgent - already
	if room <= 0 {
		ab.mu.Unlock()
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, "you've already dealt your maximum damage to the Null")}
	}

	dr := progression.CalculateDamage(cat, a, 20+rand.Intn(21))
	dmg := dr.Damage
	if dmg > room {
		dmg = room
	}
	ab.Participants[a.ID] += dmg
	ab.NullHP -= dmg
	if ab.NullHP < 0 {
		ab.NullHP = 0
	}

	ratio := float64(ab.NullHP) / float64(ab.NullMaxHP)
	switch {
	case ratio <= 0.3:
		ab.NullPhase = 3
	case ratio <= 0.6:
		if ab.NullPhase < 2 {
			ab.NullPhase = 2
		}
	}
	phase := ab.NullPhase
	killed := ab.NullHP <= 0
	var participants map[uint64]int
	if killed {
		participants = make(map[uint64]int, len(ab.Participants))
		for k, v := range ab.Participants {
			participants[k] = v
		}
	}
	ab.mu.Unlock()

	if killed {
		plan := computeNullPayout(participants)
		return ChallengeOutcome{Result: engineerr.Ok("The Null has been destroyed!"), Killed: true, Payout: plan}
	}

	retaliation := 20 + phase*15 + rand.Intn(21)
	a.HP -= retaliation
	state.ClampHP(a)
	return ChallengeOutcome{Result: engineerr.Ok(fmt.Sprintf("you deal %d damage to the Null (phase %d, hp %d/%d); it strikes back for %d", dmg, phase, ab.NullHP, ab.NullMaxHP, retaliation))}
}

// PayoutPlan carries the damage-weighted shell split and MON shares for
// the treasury call (§4.9).
type PayoutPlan struct {
	TotalDamage int
	ShellShare  map[uint64]int
	MonSharesBps map[uint64]int
}

func computeNullPayout(participants map[uint64]int) *PayoutPlan {
	total := 0
	for _, d := range participants {
		total += d
	}
	plan := &PayoutPlan{TotalDamage: total, ShellShare: map[uint64]int{}, MonSharesBps: map[uint64]int{}}
	if total == 0 {
		return plan
	}
	for id, dmg := range participants {
		plan.ShellShare[id] = int(NullShellPool * float64(dmg) / float64(total))
		plan.MonSharesBps[id] = int(10000 * float64(dmg) / float64(total))
	}
	return plan
}

// ResetAfterKill zeroes all requirements for the next cycle (§4.9).
func (ab *Abyss) ResetAfterKill(cat *config.Catalog) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for _, r := range cat.AbyssReqs {
		ab.Requirements[r.Resource] = 0
	}
	ab.IsOpen = false
	ab.NullPhase = 0
	ab.NullHP = ab.NullMaxHP
	ab.Participants = map[uint64]int{}
}

// Snapshot / Restore support the Persistence Orchestrator (§4.11).
type Snapshot struct {
	IsOpen        bool
	OpenedAtTick  uint64
	EventDuration uint64
	NullHP        int
	NullMaxHP     int
	NullPhase     int
	Participants  map[uint64]int
	Contributions map[uint64]*Contribution
	Requirements  map[string]int
	Override      GateOverride
}

func (ab *Abyss) Snapshot() Snapshot {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return Snapshot{
		IsOpen: ab.IsOpen, OpenedAtTick: ab.OpenedAtTick, EventDuration: ab.EventDuration,
		NullHP: ab.NullHP, NullMaxHP: ab.NullMaxHP, NullPhase: ab.NullPhase,
		Participants: ab.Participants, Contributions: ab.Contributions,
		Requirements: ab.Requirements, Override: ab.Override,
	}
}

func (ab *Abyss) Restore(s Snapshot) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.IsOpen, ab.OpenedAtTick, ab.EventDuration = s.IsOpen, s.OpenedAtTick, s.EventDuration
	ab.NullHP, ab.NullMaxHP, ab.NullPhase = s.NullHP, s.NullMaxHP, s.NullPhase
	ab.Participants, ab.Contributions, ab.Requirements, ab.Override = s.Participants, s.Contributions, s.Requirements, s.Override
}

// SetOverride sets the admin gate override from ABYSS_GATE_OVERRIDE (§6).
func (ab *Abyss) SetOverride(o GateOverride) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.Override = o
}
