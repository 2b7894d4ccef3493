package economy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/talgya/reef-engine/internal/engineerr"
)

// MarketListingStatus mirrors §3 Market Listing.status.
type MarketListingStatus string

const (
	ListingActive    MarketListingStatus = "active"
	ListingSold      MarketListingStatus = "sold"
	ListingCancelled MarketListingStatus = "cancelled"
)

// MaxActiveListingsPerSeller caps active listings at 5 per seller (§3).
const MaxActiveListingsPerSeller = 5

// MarketListing is a player-to-player shell-priced sale offer (§3).
type MarketListing struct {
	ID          uint64
	SellerID    uint64
	SellerName  string
	Resource    string
	Quantity    int
	PriceShells int
	Status      MarketListingStatus
	CreatedTick uint64
}

// ListingBook holds all market listings in memory, guarded by its own
// lock (mirrors the teacher's Market being a per-settlement singleton
// struct with its own fields, generalized to a single player-to-player
// book).
type ListingBook struct {
	mu       sync.Mutex
	nextID   uint64
	listings map[uint64]*MarketListing
}

// NewListingBook constructs an empty book.
func NewListingBook() *ListingBook {
	return &ListingBook{listings: map[uint64]*MarketListing{}}
}

// activeCountLocked counts a seller's active listings; caller holds mu.
func (b *ListingBook) activeCountLocked(sellerID uint64) int {
	n := 0
	for _, l := range b.listings {
		if l.SellerID == sellerID && l.Status == ListingActive {
			n++
		}
	}
	return n
}

// CreateListing lists a resource for sale, enforcing the 5-active cap.
func (b *ListingBook) CreateListing(sellerID uint64, sellerName, resource string, qty, price int, tick uint64) (*MarketListing, engineerr.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activeCountLocked(sellerID) >= MaxActiveListingsPerSeller {
		return nil, engineerr.Fail(engineerr.Gated, "you already have 5 active listings")
	}
	b.nextID++
	l := &MarketListing{
		ID: b.nextID, SellerID: sellerID, SellerName: sellerName,
		Resource: resource, Quantity: qty, PriceShells: price,
		Status: ListingActive, CreatedTick: tick,
	}
	b.listings[l.ID] = l
	return l, engineerr.Ok(fmt.Sprintf("listed %d %s for %d shells", qty, resource, price))
}

// Listing returns a listing by id, or nil.
func (b *ListingBook) Listing(id uint64) *MarketListing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listings[id]
}

// ActiveListings returns all currently-active listings, first-come order
// by id (§5: "Market listings are strictly first-come for buyers").
func (b *ListingBook) ActiveListings() []*MarketListing {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*MarketListing
	for _, l := range b.listings {
		if l.Status == ListingActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Buy marks a listing sold; first-come semantics are provided by the
// caller serializing access to the same listing id (the action router's
// per-agent lock does not protect the listing itself, so this method
// re-checks status atomically under the book lock).
func (b *ListingBook) Buy(listingID uint64) (*MarketListing, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.listings[listingID]
	if l == nil || l.Status != ListingActive {
		return nil, false
	}
	l.Status = ListingSold
	return l, true
}

// Cancel marks a listing cancelled if it belongs to sellerID and is active.
func (b *ListingBook) Cancel(listingID, sellerID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.listings[listingID]
	if l == nil || l.Status != ListingActive || l.SellerID != sellerID {
		return false
	}
	l.Status = ListingCancelled
	return true
}

// AllListings and Restore support persistence snapshots.
func (b *ListingBook) AllListings() []*MarketListing {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*MarketListing, 0, len(b.listings))
	for _, l := range b.listings {
		out = append(out, l)
	}
	return out
}

func (b *ListingBook) Restore(rows []*MarketListing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listings = map[uint64]*MarketListing{}
	for _, l := range rows {
		b.listings[l.ID] = l
		if l.ID > b.nextID {
			b.nextID = l.ID
		}
	}
}

// ResolvePrice adapts the teacher's supply/demand interference formula
// (internal/economy/goods.go MarketEntry.ResolvePrice) to a single
// resource's price: basePrice scaled by demand/supply, clamped to
// [0.25x, 4x] basePrice. No engine code path calls it.
func ResolvePrice(basePrice, supply, demand float64) float64 {
	if supply < 0.01 {
		supply = 0.01
	}
	price := basePrice * (demand / supply)
	floor := basePrice * 0.25
	ceiling := basePrice * 4
	return math.Max(floor, math.Min(ceiling, price))
}

// --- Prediction markets (§4.4) -------------------------------------------------

// PredictionMarket is a wagered outcome market (§3).
type PredictionMarket struct {
	ID         uint64
	Question   string
	Options    []string
	Odds       []float64
	TotalPool  int
	Outcome    int // index into Options, -1 if unresolved
	Resolved   bool
	ExpiresAt  uint64 // tick
	Category   string
	ReferenceID string
}

// PredictionBet is a single wager on a market (§3).
type PredictionBet struct {
	MarketID     uint64
	AgentID      uint64
	OptionIndex  int
	Amount       int
	PotentialWin int
	PaidOut      bool
}

// MinBetAmount is the minimum prediction-market wager (§4.4).
const MinBetAmount = 10

// PredictionBook holds prediction markets and bets in memory.
type PredictionBook struct {
	mu       sync.Mutex
	nextID   uint64
	markets  map[uint64]*PredictionMarket
	bets     map[uint64][]*PredictionBet // keyed by marketID
}

// NewPredictionBook constructs an empty book.
func NewPredictionBook() *PredictionBook {
	return &PredictionBook{markets: map[uint64]*PredictionMarket{}, bets: map[uint64][]*PredictionBet{}}
}

// CreateMarket opens a new prediction market.
func (p *PredictionBook) CreateMarket(question string, options []string, odds []float64, expiresAt uint64, category, refID string) *PredictionMarket {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	m := &PredictionMarket{
		ID: p.nextID, Question: question, Options: options, Odds: odds,
		Outcome: -1, ExpiresAt: expiresAt, Category: category, ReferenceID: refID,
	}
	p.markets[m.ID] = m
	return m
}

// Market returns a market by id, or nil.
func (p *PredictionBook) Market(id uint64) *PredictionMarket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markets[id]
}

// PlaceBet validates and records a bet (§4.4): market unresolved, option
// in range, amount >= MinBetAmount, at most one bet per (market, agent).
func (p *PredictionBook) PlaceBet(marketID, agentID uint64, option, amount int) (*PredictionBet, engineerr.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.markets[marketID]
	if m == nil {
		return nil, engineerr.Fail(engineerr.NotFound, "no such market")
	}
	if m.Resolved {
		return nil, engineerr.Fail(engineerr.Gated, "that market is already resolved")
	}
	if option < 0 || option >= len(m.Options) {
		return nil, engineerr.Fail(engineerr.InvalidInput, "invalid option")
	}
	if amount < MinBetAmount {
		return nil, engineerr.Fail(engineerr.InvalidInput, fmt.Sprintf("minimum bet is %d shells", MinBetAmount))
	}
	for _, b := range p.bets[marketID] {
		if b.AgentID == agentID {
			return nil, engineerr.Fail(engineerr.Conflict, "you already have a bet on this market")
		}
	}
	m.TotalPool += amount
	bet := &PredictionBet{
		MarketID: marketID, AgentID: agentID, OptionIndex: option, Amount: amount,
		PotentialWin: int(float64(amount) * m.Odds[option]),
	}
	p.bets[marketID] = append(p.bets[marketID], bet)
	return bet, engineerr.Ok(fmt.Sprintf("bet %d shells on %s", amount, m.Options[option]))
}

// Resolve marks the market resolved on winningOption and flags each
// winning bet PaidOut (§4.4). It credits no shells itself: the returned
// winning bets carry the PotentialWin owed to each bettor.
func (p *PredictionBook) Resolve(marketID uint64, winningOption int) []*PredictionBet {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.markets[marketID]
	if m == nil || m.Resolved {
		return nil
	}
	m.Resolved = true
	m.Outcome = winningOption
	var winners []*PredictionBet
	for _, b := range p.bets[marketID] {
		if b.OptionIndex == winningOption {
			b.PaidOut = true
			winners = append(winners, b)
		}
	}
	return winners
}

// ExpireOld auto-resolves boss-category markets as "No" (option index 1,
// by convention Yes=0/No=1) past their expiry tick (§4.4).
func (p *PredictionBook) ExpireOld(currentTick uint64) []*PredictionMarket {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []*PredictionMarket
	for _, m := range p.markets {
		if !m.Resolved && m.Category == "boss" && currentTick > m.ExpiresAt {
			m.Resolved = true
			m.Outcome = 1
			expired = append(expired, m)
		}
	}
	return expired
}

// AllMarkets exposes every market+bet for persistence snapshots.
func (p *PredictionBook) AllMarkets() ([]*PredictionMarket, map[uint64][]*PredictionBet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	markets := make([]*PredictionMarket, 0, len(p.markets))
	for _, m := range p.markets {
		markets = append(markets, m)
	}
	bets := map[uint64][]*PredictionBet{}
	for k, v := range p.bets {
		bets[k] = v
	}
	return markets, bets
}

// Restore reinstalls a persisted market/bet set, used on load.
func (p *PredictionBook) Restore(markets []*PredictionMarket, bets map[uint64][]*PredictionBet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets = map[uint64]*PredictionMarket{}
	for _, m := range markets {
		p.markets[m.ID] = m
		if m.ID > p.nextID {
			p.nextID = m.ID
		}
	}
	if bets == nil {
		bets = map[uint64][]*PredictionBet{}
	}
	p.bets = bets
}
