// Package boss implements the World Boss (Leviathan) cooperative
// lifecycle: spawn scheduling, HP scaling, per-agent damage cap, enrage,
// hybrid payout split, and the weighted legendary raffle (§4.8). New
// subsystem; the singleton-behind-a-lock shape follows §9's design note
// and the teacher's own singleton Simulation struct guarded by
// sync.RWMutex fields.
package boss

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

const (
	BaseHP            = 50000
	HPPerAgent        = 2000
	MaxDamagePerAgent = 3000
	DamagePerHit      = 40
	EnrageThreshold   = 0.2
	EnrageMultiplier  = 2.0
	LegendaryChance   = 0.25
	MinAliveToEngage  = 2
	LairZone          = "leviathans_lair"

	// ReputationAllBonus and TopDamageReputationBonus are §4.8's kill
	// payout reputation grants: +50 to every participant, +75 more on
	// top of that for the highest-damage participant.
	ReputationAllBonus       = 50
	TopDamageReputationBonus = 75

	// LootResource is the fixed resource awarded by ResourceLootEach.
	LootResource = "leviathan_scale"
)

// Leviathan is the singleton world-boss state (§3).
type Leviathan struct {
	mu               sync.Mutex
	CurrentHP        int
	MaxHP            int
	BaseHP           int
	HPPerAgent       int
	IsAlive          bool
	HPScaled         bool
	NextSpawnTick    uint64
	LastDeathTick    uint64
	Announced        bool
	SpawnID          uint64
	Participants     map[uint64]int    // agentID -> damage dealt this spawn
	ParticipantWallets map[uint64]string
}

// New constructs a dormant Leviathan scheduled to spawn soon after boot.
func New(currentTick uint64) *Leviathan {
	l := &Leviathan{
		BaseHP: BaseHP, HPPerAgent: HPPerAgent,
		Participants: map[uint64]int{}, ParticipantWallets: map[uint64]string{},
	}
	l.scheduleNextSpawn(currentTick)
	return l
}

func (l *Leviathan) scheduleNextSpawn(currentTick uint64) {
	l.NextSpawnTick = currentTick + uint64(360+rand.Intn(361))
}

// TickCheck advances the dormant -> announced -> alive state machine;
// called once per tick by the background scheduler (§4.8).
func (l *Leviathan) TickCheck(currentTick uint64, aliveAgentsInWorld int) (announcement string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.IsAlive {
		return ""
	}
	if !l.Announced {
		window := uint64(5 + rand.Intn(6))
		if currentTick+window >= l.NextSpawnTick && currentTick < l.NextSpawnTick && aliveAgentsInWorld >= MinAliveToEngage {
			l.Announced = true
			return "the Leviathan stirs in the depths — it will surface soon"
		}
	}
	if currentTick >= l.NextSpawnTick && aliveAgentsInWorld >= MinAliveToEngage {
		l.SpawnID++
		l.IsAlive = true
		l.Announced = false
		l.HPScaled = false
		l.MaxHP = l.BaseHP
		l.CurrentHP = l.BaseHP
		l.Participants = map[uint64]int{}
		l.ParticipantWallets = map[uint64]string{}
		return "the Leviathan has surfaced in its lair!"
	}
	return ""
}

// Snapshot is a read-only copy for projections and persistence.
type Snapshot struct {
	CurrentHP, MaxHP, BaseHP, HPPerAgent int
	IsAlive, HPScaled, Announced        bool
	NextSpawnTick, LastDeathTick, SpawnID uint64
	Participants map[uint64]int
	ParticipantWallets map[uint64]string
}

func (l *Leviathan) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	participants := make(map[uint64]int, len(l.Participants))
	for k, v := range l.Participants {
		participants[k] = v
	}
	wallets := make(map[uint64]string, len(l.ParticipantWallets))
	for k, v := range l.ParticipantWallets {
		wallets[k] = v
	}
	return Snapshot{
		CurrentHP: l.CurrentHP, MaxHP: l.MaxHP, BaseHP: l.BaseHP, HPPerAgent: l.HPPerAgent,
		IsAlive: l.IsAlive, HPScaled: l.HPScaled, Announced: l.Announced,
		NextSpawnTick: l.NextSpawnTick, LastDeathTick: l.LastDeathTick, SpawnID: l.SpawnID,
		Participants: participants, ParticipantWallets: wallets,
	}
}

// Restore reinstalls persisted boss state (§4.11).
func (l *Leviathan) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CurrentHP, l.MaxHP, l.BaseHP, l.HPPerAgent = s.CurrentHP, s.MaxHP, s.BaseHP, s.HPPerAgent
	l.IsAlive, l.HPScaled, l.Announced = s.IsAlive, s.HPScaled, s.Announced
	l.NextSpawnTick, l.LastDeathTick, l.SpawnID = s.NextSpawnTick, s.LastDeathTick, s.SpawnID
	l.Participants = s.Participants
	if l.Participants == nil {
		l.Participants = map[uint64]int{}
	}
	l.ParticipantWallets = s.ParticipantWallets
	if l.ParticipantWallets == nil {
		l.ParticipantWallets = map[uint64]string{}
	}
}

// ChallengeOutcome is the result of one `challenge` damage roll against
// the Leviathan, for the router to narrate and trigger payout from.
type ChallengeOutcome struct {
	Result   engineerr.Result
	Killed   bool
	Payout   *PayoutPlan
}

// Challenge resolves one damage exchange for an agent in the lair (§4.8).
func Challenge(cat *config.Catalog, l *Leviathan, a *state.Agent, agentsInLair int, za progression.ZoneAccess) ChallengeOutcome {
	l.mu.Lock()
	if !l.IsAlive {
		l.mu.Unlock()
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, "the Leviathan is not here")}
	}
	if agentsInLair < MinAliveToEngage {
		l.mu.Unlock()
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, "you need at least 2 agents in the lair to engage")}
	}
	if !l.HPScaled {
		l.MaxHP = l.BaseHP + agentsInLair*l.HPPerAgent
		l.CurrentHP = l.MaxHP
		l.HPScaled = true
	}

	already := l.Participants[a.ID]
	room := MaxDamagePerAgent - already
	if room <= 0 {
		l.mu.Unlock()
		return ChallengeOutcome{Result: engineerr.Fail(engineerr.Gated, "you've already dealt your maximum damage to this Leviathan")}
	}

	dr := progression.CalculateDamage(cat, a, 15+rand.Intn(21))
	dmg := dr.Damage
	if dmg > room {
		dmg = room
	}
	l.Participants[a.ID] += dmg
	l.CurrentHP -= dmg
	if l.CurrentHP < 0 {
		l.CurrentHP = 0
	}

	killed := l.CurrentHP <= 0
	var participants map[uint64]int
	var wallets map[uint64]string
	if killed {
		participants = make(map[uint64]int, len(l.Participants))
		for k, v := range l.Participants {
			participants[k] = v
		}
		wallets = make(map[uint64]string, len(l.ParticipantWallets))
		for k, v := range l.ParticipantWallets {
			wallets[k] = v
		}
		l.IsAlive = false
		l.HPScaled = false
	}
	ratio := 1.0
	if l.MaxHP > 0 {
		ratio = float64(l.CurrentHP) / float64(l.MaxHP)
	}
	l.mu.Unlock()

	if !killed {
		retaliation := float64(DamagePerHit+rand.Intn(11)) * progression.UnderLeveledDamageMultiplier(za)
		if ratio <= EnrageThreshold {
			retaliation *= EnrageMultiplier
		}
		dmgTaken := int(retaliation)
		a.HP -= dmgTaken
		state.ClampHP(a)
		narrative := fmt.Sprintf("you strike the Leviathan for %d; it retaliates for %d", dmg, dmgTaken)
		if ratio <= EnrageThreshold {
			narrative += " (ENRAGED)"
		}
		return ChallengeOutcome{Result: engineerr.Ok(narrative)}
	}

	plan := computePayout(participants, wallets)
	return ChallengeOutcome{
		Result: engineerr.Ok("the Leviathan has been slain!"),
		Killed: true, Payout: plan,
	}
}

// PayoutPlan carries the hybrid payout split and legendary raffle winner
// for the router/treasury to apply (§4.8).
type PayoutPlan struct {
	SpawnID         uint64
	TotalDamage     int
	SharesBps       map[uint64]int // agentID -> basis points of the MON pool
	Wallets         map[uint64]string
	ReputationAll   int
	ReputationTop   uint64
	LegendaryWinner uint64 // 0 if no legendary fired
	ResourceLootEach int
}

// computePayout implements the hybrid equal+damage-weighted split and the
// weighted legendary raffle (§4.8).
func computePayout(participants map[uint64]int, wallets map[uint64]string) *PayoutPlan {
	totalDamage := 0
	for _, d := range participants {
		totalDamage += d
	}
	n := len(participants)
	plan := &PayoutPlan{TotalDamage: totalDamage, SharesBps: map[uint64]int{}, Wallets: wallets, ReputationAll: ReputationAllBonus}
	if n == 0 {
		return plan
	}

	// Equal pool = 60%, damage pool = 40%, expressed in basis points.
	equalShareBps := 6000 / n
	topDamage := -1
	var topAgent uint64
	ids := make([]uint64, 0, n)
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		dmg := participants[id]
		var damageShareBps int
		if totalDamage > 0 {
			damageShareBps = int(4000 * float64(dmg) / float64(totalDamage))
		}
		plan.SharesBps[id] = equalShareBps + damageShareBps
		if dmg > topDamage {
			topDamage = dmg
			topAgent = id
		}
	}
	plan.ReputationTop = topAgent
	plan.ResourceLootEach = maxInt(1, ceilDiv(200, n))

	if rand.Float64() < LegendaryChance {
		type ticket struct {
			id     uint64
			weight int
		}
		var tickets []ticket
		total := 0
		for _, id := range ids {
			w := maxInt(1, participants[id]/10)
			tickets = append(tickets, ticket{id, w})
			total += w
		}
		pick := rand.Intn(total)
		cursor := 0
		for _, t := range tickets {
			cursor += t.weight
			if pick < cursor {
				plan.LegendaryWinner = t.id
				break
			}
		}
	}
	return plan
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// FinishSpawn schedules the next spawn after a kill (§4.8).
func (l *Leviathan) FinishSpawn(currentTick uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LastDeathTick = currentTick
	l.scheduleNextSpawn(currentTick)
}

// SetWallet records a participant's payout wallet address.
func (l *Leviathan) SetWallet(agentID uint64, wallet string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ParticipantWallets[agentID] = wallet
}
