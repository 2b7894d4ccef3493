// Package social implements direct/broadcast messaging and peer-to-peer
// trade offers (§3 Message, Trade Offer; §9 SUPPLEMENT). Minimal, since
// spec.md names these entities in the data model without a dedicated §4
// component beyond the ordering guarantee in §5 ("Messages and trades
// are ordered by insertion... the engine re-validates both sides'
// inventories at accept time and cancels if consumed").
package social

import (
	"sync"
	"time"

	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/state"
)

// MessageType mirrors §3 Message.type.
type MessageType string

const (
	MessageDM        MessageType = "dm"
	MessageBroadcast MessageType = "broadcast"
)

// Message is a DM or zone broadcast (§3).
type Message struct {
	ID        uint64
	FromAgent uint64
	ToAgent   uint64 // 0 for broadcast
	ZoneID    string
	Type      MessageType
	Text      string
	CreatedAt time.Time
	Tick      uint64
}

// TradeStatus mirrors §3 Trade Offer.status.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeCancelled TradeStatus = "cancelled"
)

// ResourceQty is a (resource, quantity) pair for trade offers.
type ResourceQty struct {
	Resource string
	Quantity int
}

// TradeOffer is a pending bilateral resource swap (§3).
type TradeOffer struct {
	ID         uint64
	FromAgent  uint64
	ToAgent    uint64
	Offering   ResourceQty
	Requesting ResourceQty
	Status     TradeStatus
	CreatedTick uint64
}

// Board holds messages and trades, ordered by insertion (§5).
type Board struct {
	mu           sync.Mutex
	nextMsgID    uint64
	messages     []Message
	nextTradeID  uint64
	trades       map[uint64]*TradeOffer
}

// NewBoard constructs an empty social board.
func NewBoard() *Board {
	return &Board{trades: map[uint64]*TradeOffer{}}
}

// PostMessage appends a DM or broadcast in insertion order (§5).
func (b *Board) PostMessage(from, to uint64, zoneID string, msgType MessageType, text string, tick uint64) Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextMsgID++
	m := Message{ID: b.nextMsgID, FromAgent: from, ToAgent: to, ZoneID: zoneID, Type: msgType, Text: text, CreatedAt: time.Now().UTC(), Tick: tick}
	b.messages = append(b.messages, m)
	return m
}

// MessagesFor returns DMs addressed to an agent plus broadcasts in its zone.
func (b *Board) MessagesFor(agentID uint64, zoneID string, limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.messages {
		if (m.Type == MessageDM && m.ToAgent == agentID) || (m.Type == MessageBroadcast && m.ZoneID == zoneID) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Offer creates a pending trade offer, debiting nothing until accept
// time (the offering side's goods are re-validated at accept, §5).
func (b *Board) Offer(from, to uint64, offering, requesting ResourceQty, tick uint64) *TradeOffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextTradeID++
	t := &TradeOffer{ID: b.nextTradeID, FromAgent: from, ToAgent: to, Offering: offering, Requesting: requesting, Status: TradePending, CreatedTick: tick}
	b.trades[t.ID] = t
	return t
}

// Trade returns a trade offer by id, or nil.
func (b *Board) Trade(id uint64) *TradeOffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trades[id]
}

// Accept re-validates both sides' inventories and, if still available,
// swaps resources and marks the trade completed; otherwise cancels it
// (§5: "re-validates both sides' inventories at accept time and cancels
// if consumed").
func Accept(w *state.World, b *Board, t *TradeOffer) engineerr.Result {
	if t.Status != TradePending {
		return engineerr.Fail(engineerr.Conflict, "that trade is no longer pending")
	}
	fromHas := w.InventoryHasAtLeast(t.FromAgent, t.Offering.Resource, t.Offering.Quantity)
	toHas := w.InventoryHasAtLeast(t.ToAgent, t.Requesting.Resource, t.Requesting.Quantity)
	if !fromHas || !toHas {
		t.Status = TradeCancelled
		return engineerr.Fail(engineerr.Conflict, "one side no longer has the traded goods; trade cancelled")
	}
	w.RemoveInventory(t.FromAgent, t.Offering.Resource, t.Offering.Quantity)
	w.RemoveInventory(t.ToAgent, t.Requesting.Resource, t.Requesting.Quantity)
	w.AddInventory(t.ToAgent, t.Offering.Resource, t.Offering.Quantity)
	w.AddInventory(t.FromAgent, t.Requesting.Resource, t.Requesting.Quantity)
	t.Status = TradeCompleted
	return engineerr.Ok("trade completed")
}

// Decline/Cancel marks a pending trade cancelled.
func Cancel(t *TradeOffer) engineerr.Result {
	if t.Status != TradePending {
		return engineerr.Fail(engineerr.Conflict, "that trade is no longer pending")
	}
	t.Status = TradeCancelled
	return engineerr.Ok("trade cancelled")
}

// AllMessages and AllTrades expose the board's contents for persistence.
func (b *Board) AllMessages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Board) AllTrades() []*TradeOffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*TradeOffer, 0, len(b.trades))
	for _, t := range b.trades {
		out = append(out, t)
	}
	return out
}

// Restore reinstalls a persisted message/trade set, used on load.
func (b *Board) Restore(messages []Message, trades []*TradeOffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = messages
	for _, m := range messages {
		if m.ID > b.nextMsgID {
			b.nextMsgID = m.ID
		}
	}
	b.trades = map[uint64]*TradeOffer{}
	for _, t := range trades {
		b.trades[t.ID] = t
		if t.ID > b.nextTradeID {
			b.nextTradeID = t.ID
		}
	}
}
