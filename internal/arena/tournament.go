package arena

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
	MinTournamentPlayers = 20
	RegistrationDeadlineTicks = 500
)

// TournamentStatus mirrors §3 Tournament.status.
type TournamentStatus string

const (
	TournamentRegistration TournamentStatus = "registration"
	TournamentActive       TournamentStatus = "active"
	TournamentFinished     TournamentStatus = "finished"
)

// Tier is a payout class determined by final participant count (§4.10).
type Tier struct {
	Name      string
	MinPlayers int
	MonShareBps int // basis points of the tournament MON pool; 0 for Bronze
}

var Tiers = []Tier{
	{Name: "Bronze", MinPlayers: 20, MonShareBps: 0},
	{Name: "Silver", MinPlayers: 32, MonShareBps: 2500},
	{Name: "Gold", MinPlayers: 64, MonShareBps: 5000},
	{Name: "Legendary", MinPlayers: 128, MonShareBps: 10000},
}

// TierFor resolves the tier for a given final participant count.
func TierFor(participants int) Tier {
	best := Tiers[0]
	for _, t := range Tiers {
		if participants >= t.MinPlayers {
			best = t
		}
	}
	return best
}

// BracketMatchStatus mirrors §3 Bracket Match.status.
type BracketMatchStatus string

const (
	MatchPending  BracketMatchStatus = "pending"
	MatchActive   BracketMatchStatus = "active"
	MatchFinished BracketMatchStatus = "finished"
)

// ByeSentinel marks an empty bracket slot.
const ByeSentinel uint64 = 0

// BracketMatch is one slot in the elimination bracket (§3).
type BracketMatch struct {
	Round      int
	MatchIndex int
	Agent1     uint64
	Agent2     uint64
	Winner     uint64
	Agent1HP   int
	Agent2HP   int
	Status     BracketMatchStatus
}

// Tournament is a registered bracket event (§3).
type Tournament struct {
	ID                   uint64
	Name                 string
	Status               TournamentStatus
	EntryFee             int
	PrizePool            int
	MonBonus             int
	Tier                 Tier
	Participants         []uint64
	Bracket              []*BracketMatch
	CurrentRound         int
	TotalRounds          int
	Champion             uint64
	RegistrationDeadline uint64
}

// Manager owns tournaments.
type Manager struct {
	mu          sync.Mutex
	nextID      uint64
	tournaments map[uint64]*Tournament
}

// NewManager constructs an empty tournament manager.
func NewManager() *Manager {
	return &Manager{tournaments: map[uint64]*Tournament{}}
}

// Open registers a new tournament accepting entries.
func (m *Manager) Open(name string, entryFee int, currentTick uint64) *Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &Tournament{
		ID: m.nextID, Name: name, Status: TournamentRegistration, EntryFee: entryFee,
		RegistrationDeadline: currentTick + RegistrationDeadlineTicks,
	}
	m.tournaments[t.ID] = t
	return t
}

// Tournament returns a tournament by id, or nil.
func (m *Manager) Tournament(id uint64) *Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tournaments[id]
}

// Register enters an agent paying the entry fee, before the deadline.
func (m *Manager) Register(t *Tournament, a *state.Agent, currentTick uint64) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Status != TournamentRegistration {
		return engineerr.Fail(engineerr.Gated, "registration has closed")
	}
	if currentTick > t.RegistrationDeadline {
		return engineerr.Fail(engineerr.Gated, "registration deadline has passed")
	}
	for _, id := range t.Participants {
		if id == a.ID {
			return engineerr.Fail(engineerr.Conflict, "already registered")
		}
	}
	if a.Shells < t.EntryFee {
		return engineerr.Fail(engineerr.InsufficientResource, "not enough shells for the entry fee")
	}
	state.AddShells(a, -t.EntryFee)
	t.PrizePool += t.EntryFee
	t.Participants = append(t.Participants, a.ID)
	return engineerr.Ok("registered for the tournament")
}

// CheckDeadlines starts the bracket for every registration-stage
// tournament that has reached its registration deadline with enough
// entrants, and cancels (refunding entry fees) any that fell short —
// called once per tick by the background scheduler, mirroring
// boss.TickCheck/abyss.CheckWindow (§4.10, §5 "tournament registration
// deadline: 500 ticks").
func (m *Manager) CheckDeadlines(currentTick uint64, world *state.World) []string {
	m.mu.Lock()
	var due []*Tournament
	for _, t := range m.tournaments {
		if t.Status == TournamentRegistration && currentTick > t.RegistrationDeadline {
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	var narratives []string
	for _, t := range due {
		if res := m.StartBracket(t); res.Success {
			narratives = append(narratives, fmt.Sprintf("tournament %q: %s", t.Name, res.Narrative))
			continue
		}
		m.mu.Lock()
		t.Status = TournamentFinished
		participants := append([]uint64{}, t.Participants...)
		fee := t.EntryFee
		m.mu.Unlock()
		for _, agentID := range participants {
			if a := world.Agent(agentID); a != nil {
				state.AddShells(a, fee)
			}
		}
		narratives = append(narratives, fmt.Sprintf("tournament %q canceled — too few entrants, entry fees refunded", t.Name))
	}
	return narratives
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

func log2(n int) int {
	r := 0
	for (1 << r) < n {
		r++
	}
	return r
}

// StartBracket closes registration, pads to the next power of two with
// BYE sentinels, shuffles, and generates round 1 plus placeholder rounds
// (§4.10).
func (m *Manager) StartBracket(t *Tournament) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Status != TournamentRegistration {
		return engineerr.Fail(engineerr.Gated, "tournament already started")
	}
	if len(t.Participants) < MinTournamentPlayers {
		return engineerr.Fail(engineerr.Gated, fmt.Sprintf("need at least %d participants", MinTournamentPlayers))
	}
	t.Tier = TierFor(len(t.Participants))
	padded := nextPowerOfTwo(len(t.Participants))
	slots := make([]uint64, padded)
	copy(slots, t.Participants)
	for i := len(t.Participants); i < padded; i++ {
		slots[i] = ByeSentinel
	}
	rand.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	t.TotalRounds = log2(padded)
	t.CurrentRound = 1
	t.Status = TournamentActive

	round1 := make([]*BracketMatch, padded/2)
	for i := 0; i < padded/2; i++ {
		a1, a2 := slots[2*i], slots[2*i+1]
		mt := &BracketMatch{Round: 1, MatchIndex: i, Agent1: a1, Agent2: a2, Status: MatchPending}
		if a1 == ByeSentinel || a2 == ByeSentinel {
			mt.Status = MatchFinished
			mt.Winner = a1
			if a1 == ByeSentinel {
				mt.Winner = a2
			}
		}
		round1[i] = mt
	}
	t.Bracket = round1
	for r := 2; r <= t.TotalRounds; r++ {
		matchesInRound := padded / (1 << r)
		for i := 0; i < matchesInRound; i++ {
			t.Bracket = append(t.Bracket, &BracketMatch{Round: r, MatchIndex: i, Status: MatchPending})
		}
	}
	return engineerr.Ok(fmt.Sprintf("bracket set: %d players, %s tier, %d rounds", len(t.Participants), t.Tier.Name, t.TotalRounds))
}

func (m *Manager) matchesInRound(t *Tournament, round int) []*BracketMatch {
	var out []*BracketMatch
	for _, mt := range t.Bracket {
		if mt.Round == round {
			out = append(out, mt)
		}
	}
	return out
}

func (m *Manager) matchLocked(t *Tournament, round, index int) *BracketMatch {
	for _, mt := range t.Bracket {
		if mt.Round == round && mt.MatchIndex == index {
			return mt
		}
	}
	return nil
}

// ResolveMatch force-records a match's winner without combat — a
// forfeit/admin path. StrikeMatch resolves ordinary matches directly
// and does not call this.
func (m *Manager) ResolveMatch(t *Tournament, round, index int, winner uint64) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt := m.matchLocked(t, round, index)
	if mt == nil || mt.Status == MatchFinished {
		return engineerr.Fail(engineerr.NotFound, "no such active match")
	}
	mt.Status = MatchFinished
	mt.Winner = winner
	return engineerr.Ok("match resolved")
}

// ActiveMatch returns the in-progress (or not-yet-struck) bracket match an
// agent is currently seated in, or nil if the agent has no live match.
func (m *Manager) ActiveMatch(t *Tournament, agentID uint64) *BracketMatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range t.Bracket {
		if mt.Round != t.CurrentRound || mt.Status == MatchFinished {
			continue
		}
		if mt.Agent1 == agentID || mt.Agent2 == agentID {
			return mt
		}
	}
	return nil
}

// MatchStrikeOutcome is the result of one `tournament_strike` turn against
// a live bracket match, mirroring duel.StrikeOutcome.
type MatchStrikeOutcome struct {
	Result   engineerr.Result
	Finished bool
	Winner   uint64
	Round    int
	MatchIndex int
}

// StrikeMatch resolves one damage roll against the attacker's current
// bracket opponent, lazily seeding both sides' HP from their MaxHP on the
// match's first strike (§3 Bracket Match agent1Hp/agent2Hp, §4.10). Turn
// order is not tracked: either side of the match may strike next.
func (m *Manager) StrikeMatch(cat *config.Catalog, t *Tournament, attacker, defender *state.Agent) MatchStrikeOutcome {
	m.mu.Lock()
	if t.Status != TournamentActive {
		m.mu.Unlock()
		return MatchStrikeOutcome{Result: engineerr.Fail(engineerr.Gated, "the tournament isn't active")}
	}
	var mt *BracketMatch
	for _, cand := range t.Bracket {
		if cand.Round == t.CurrentRound && cand.Status != MatchFinished &&
			((cand.Agent1 == attacker.ID && cand.Agent2 == defender.ID) ||
				(cand.Agent2 == attacker.ID && cand.Agent1 == defender.ID)) {
			mt = cand
			break
		}
	}
	if mt == nil {
		m.mu.Unlock()
		return MatchStrikeOutcome{Result: engineerr.Fail(engineerr.NotFound, "you have no live match against that agent")}
	}
	if mt.Status == MatchPending {
		mt.Status = MatchActive
		mt.Agent1HP = attacker.MaxHP
		mt.Agent2HP = defender.MaxHP
		if mt.Agent1 != attacker.ID {
			mt.Agent1HP = defender.MaxHP
			mt.Agent2HP = attacker.MaxHP
		}
	}
	round, index := mt.Round, mt.MatchIndex
	m.mu.Unlock()

	dr := progression.CalculateDamage(cat, attacker, 10+rand.Intn(11))
	reduction := progression.CalculateDamageReduction(cat, defender)
	dmg := dr.Damage - reduction
	if dmg < 1 {
		dmg = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.Agent1 == attacker.ID {
		mt.Agent2HP -= dmg
	} else {
		mt.Agent1HP -= dmg
	}

	if mt.Agent1HP > 0 && mt.Agent2HP > 0 {
		return MatchStrikeOutcome{
			Result: engineerr.Ok(fmt.Sprintf("strike for %d — %d/%d vs %d/%d", dmg, mt.Agent1HP, attacker.MaxHP, mt.Agent2HP, defender.MaxHP)),
			Round:  round, MatchIndex: index,
		}
	}

	mt.Status = MatchFinished
	winner := mt.Agent1
	if mt.Agent1HP <= 0 {
		winner = mt.Agent2
	}
	mt.Winner = winner
	return MatchStrikeOutcome{
		Result:   engineerr.Ok(fmt.Sprintf("the match is decided — agent %d advances!", winner)),
		Finished: true, Winner: winner, Round: round, MatchIndex: index,
	}
}

// AdvanceTournament populates the next round from the current round's
// winners, auto-advancing BYE sides; crowns the champion on the final
// round (§4.10).
func (m *Manager) AdvanceTournament(t *Tournament) (championed bool, narrative string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.matchesInRound(t, t.CurrentRound)
	for _, mt := range current {
		if mt.Status != MatchFinished {
			return false, ""
		}
	}
	if t.CurrentRound == t.TotalRounds {
		t.Champion = current[0].Winner
		t.Status = TournamentFinished
		return true, fmt.Sprintf("agent %d is crowned tournament champion!", t.Champion)
	}
	nextRound := t.CurrentRound + 1
	next := m.matchesInRound(t, nextRound)
	for i, mt := range next {
		mt.Agent1 = current[2*i].Winner
		mt.Agent2 = current[2*i+1].Winner
		if mt.Agent1 == ByeSentinel || mt.Agent2 == ByeSentinel {
			mt.Status = MatchFinished
			mt.Winner = mt.Agent1
			if mt.Agent1 == ByeSentinel {
				mt.Winner = mt.Agent2
			}
		} else {
			mt.Status = MatchPending
		}
	}
	t.CurrentRound = nextRound
	return false, fmt.Sprintf("round %d begins", nextRound)
}

// FinalReward is the prize awarded on final-match finish (§4.10).
type FinalReward struct {
	Shells        int
	MonShareBps   int
	EquipmentDrop string
	BonusMaterial string
}

// FinalRewardFor computes the champion's reward from the tournament's
// resolved tier.
func FinalRewardFor(t *Tournament) FinalReward {
	reward := FinalReward{Shells: t.PrizePool, MonShareBps: t.Tier.MonShareBps}
	switch t.Tier.Name {
	case "Silver":
		reward.EquipmentDrop = "coral_blade"
		reward.BonusMaterial = "void_crystals"
	case "Gold":
		reward.EquipmentDrop = "abyssal_trident"
		reward.BonusMaterial = "abyssal_pearl"
	case "Legendary":
		reward.EquipmentDrop = "leviathan_fang"
		reward.BonusMaterial = "leviathan_scale"
	}
	return reward
}

// ApplyFinalReward grants the champion's shells. The caller is
// responsible for crediting reward.EquipmentDrop/BonusMaterial via
// state.World.AddInventory — this package has no inventory handle.
func ApplyFinalReward(cat *config.Catalog, champion *state.Agent, reward FinalReward) {
	progression.GrantShells(cat, champion, reward.Shells, "tournament_champion")
}

// AllTournaments returns every tracked tournament for persistence snapshots.
func (m *Manager) AllTournaments() []*Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tournament, 0, len(m.tournaments))
	for _, t := range m.tournaments {
		out = append(out, t)
	}
	return out
}

// Restore reinstalls a persisted tournament set, used on load.
func (m *Manager) Restore(rows []*Tournament) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tournaments = map[uint64]*Tournament{}
	for _, t := range rows {
		m.tournaments[t.ID] = t
		if t.ID > m.nextID {
			m.nextID = t.ID
		}
	}
}
