// Package arena implements wagered PvP duels with spectator bets, and
// single-elimination tournaments with BYE handling and tiered payout
// (§4.10). New subsystem, same singleton/registry shape as internal/pvp.
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

// DuelStatus mirrors §3 Arena Duel.status.
type DuelStatus string

const (
	DuelPending  DuelStatus = "pending"
	DuelActive   DuelStatus = "active"
	DuelFinished DuelStatus = "finished"
)

// Bet is a spectator wager on a duel side (§3).
type Bet struct {
	BettorID uint64
	OnAgent  uint64
	Amount   int
}

// Duel is a wagered 1v1 arena match (§3).
type Duel struct {
	ID          uint64
	Challenger  uint64
	Opponent    uint64
	Wager       int
	Status      DuelStatus
	ChallengerHP int
	OpponentHP   int
	MaxHP        int
	Turn         uint64 // agentID whose turn it is
	Bets         []Bet
	Winner       uint64
}

// DuelBook owns all duels, guarded by its own lock.
type DuelBook struct {
	mu     sync.Mutex
	nextID uint64
	duels  map[uint64]*Duel
}

// NewDuelBook constructs an empty duel book.
func NewDuelBook() *DuelBook {
	return &DuelBook{duels: map[uint64]*Duel{}}
}

// Challenge opens a pending duel with an escrowed wager.
func (b *DuelBook) Challenge(challenger *state.Agent, opponentID uint64, wager int) (*Duel, engineerr.Result) {
	if challenger.Shells < wager {
		return nil, engineerr.Fail(engineerr.InsufficientResource, "not enough shells to wager")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state.AddShells(challenger, -wager)
	b.nextID++
	d := &Duel{
		ID: b.nextID, Challenger: challenger.ID, Opponent: opponentID, Wager: wager,
		Status: DuelPending, ChallengerHP: challenger.MaxHP, OpponentHP: 0, MaxHP: challenger.MaxHP,
	}
	b.duels[d.ID] = d
	return d, engineerr.Ok(fmt.Sprintf("challenged agent %d to a duel wagering %d shells", opponentID, wager))
}

// Accept escrows the opponent's matching wager and activates the duel.
func (b *DuelBook) Accept(opponent *state.Agent, duelID uint64) engineerr.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.duels[duelID]
	if d == nil || d.Status != DuelPending || d.Opponent != opponent.ID {
		return engineerr.Fail(engineerr.NotFound, "no such pending challenge")
	}
	if opponent.Shells < d.Wager {
		return engineerr.Fail(engineerr.InsufficientResource, "not enough shells to accept")
	}
	state.AddShells(opponent, -d.Wager)
	d.Status = DuelActive
	d.OpponentHP = opponent.MaxHP
	if d.MaxHP < opponent.MaxHP {
		d.MaxHP = opponent.MaxHP
	}
	d.ChallengerHP = d.MaxHP
	d.OpponentHP = d.MaxHP
	d.Turn = d.Challenger
	return engineerr.Ok("duel accepted — let the strikes begin")
}

// Duel returns a duel by id, or nil.
func (b *DuelBook) Duel(id uint64) *Duel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duels[id]
}

// PlaceBet records a spectator bet on an active duel's outcome.
func (b *DuelBook) PlaceBet(duelID uint64, bettor *state.Agent, onAgent uint64, amount int) engineerr.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.duels[duelID]
	if d == nil || d.Status == DuelFinished {
		return engineerr.Fail(engineerr.NotFound, "no such active duel")
	}
	if onAgent != d.Challenger && onAgent != d.Opponent {
		return engineerr.Fail(engineerr.InvalidInput, "that agent isn't in this duel")
	}
	if bettor.Shells < amount {
		return engineerr.Fail(engineerr.InsufficientResource, "not enough shells to bet")
	}
	state.AddShells(bettor, -amount)
	d.Bets = append(d.Bets, Bet{BettorID: bettor.ID, OnAgent: onAgent, Amount: amount})
	return engineerr.Ok(fmt.Sprintf("bet %d shells on agent %d", amount, onAgent))
}

// StrikeOutcome is the result of one `strike` turn.
type StrikeOutcome struct {
	Result  engineerr.Result
	Finished bool
	Winner   uint64
	PayoutWinner int // 2x wager
	BetPayouts map[uint64]int // bettorID -> payout (2x their stake)
}

// Strike resolves one alternating-turn damage roll (§4.10).
func Strike(cat *config.Catalog, b *DuelBook, d *Duel, attacker *state.Agent, defender *state.Agent) StrikeOutcome {
	b.mu.Lock()
	if d.Status != DuelActive {
		b.mu.Unlock()
		return StrikeOutcome{Result: engineerr.Fail(engineerr.InvalidInput, "that duel isn't active")}
	}
	if d.Turn != attacker.ID {
		b.mu.Unlock()
		return StrikeOutcome{Result: engineerr.Fail(engineerr.Gated, "it isn't your turn")}
	}
	b.mu.Unlock()

	dr := progression.CalculateDamage(cat, attacker, 10+rand.Intn(11))
	reduction := progression.CalculateDamageReduction(cat, defender)
	dmg := dr.Damage - reduction
	if dmg < 1 {
		dmg = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if attacker.ID == d.Challenger {
		d.OpponentHP -= dmg
	} else {
		d.ChallengerHP -= dmg
	}

	if d.Turn == d.Challenger {
		d.Turn = d.Opponent
	} else {
		d.Turn = d.Challenger
	}

	if d.ChallengerHP > 0 && d.OpponentHP > 0 {
		return StrikeOutcome{Result: engineerr.Ok(fmt.Sprintf("strike for %d — challenger %d/%d, opponent %d/%d", dmg, d.ChallengerHP, d.MaxHP, d.OpponentHP, d.MaxHP))}
	}

	d.Status = DuelFinished
	winner := d.Challenger
	if d.ChallengerHP <= 0 {
		winner = d.Opponent
	}
	d.Winner = winner

	payouts := map[uint64]int{}
	for _, bet := range d.Bets {
		if bet.OnAgent == winner {
			payouts[bet.BettorID] += bet.Amount * 2
		}
	}
	return StrikeOutcome{
		Result: engineerr.Ok(fmt.Sprintf("the duel is decided — agent %d wins!", winner)),
		Finished: true, Winner: winner, PayoutWinner: d.Wager * 2, BetPayouts: payouts,
	}
}

// AllDuels returns every tracked duel for persistence snapshots.
func (b *DuelBook) AllDuels() []Duel {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Duel, 0, len(b.duels))
	for _, d := range b.duels {
		out = append(out, *d)
	}
	return out
}

// Restore reinstalls a persisted duel set, used on load.
func (b *DuelBook) Restore(rows []Duel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duels = map[uint64]*Duel{}
	for i := range rows {
		d := rows[i]
		b.duels[d.ID] = &d
		if d.ID > b.nextID {
			b.nextID = d.ID
		}
	}
}
