package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/state"
)

func TestTradeOfferAcceptSwapsInventory(t *testing.T) {
	w := state.NewWorld(config.Default())
	seller := w.CreateAgent("0xaaa", "Seller", "k1")
	buyer := w.CreateAgent("0xbbb", "Buyer", "k2")
	w.AddInventory(seller.ID, "kelp", 5)
	w.AddInventory(buyer.ID, "moonstone", 3)

	b := NewBoard()
	offer := b.Offer(seller.ID, buyer.ID,
		ResourceQty{Resource: "kelp", Quantity: 5},
		ResourceQty{Resource: "moonstone", Quantity: 3}, 0)

	result := Accept(w, b, offer)
	require.True(t, result.Success)
	assert.Equal(t, TradeCompleted, offer.Status)
	assert.True(t, w.InventoryHasAtLeast(buyer.ID, "kelp", 5))
	assert.True(t, w.InventoryHasAtLeast(seller.ID, "moonstone", 3))
	assert.False(t, w.InventoryHasAtLeast(seller.ID, "kelp", 1))
}

func TestTradeOfferAcceptCancelsWhenGoodsGone(t *testing.T) {
	w := state.NewWorld(config.Default())
	seller := w.CreateAgent("0xaaa", "Seller", "k1")
	buyer := w.CreateAgent("0xbbb", "Buyer", "k2")
	// seller never actually receives the kelp they're offering.

	b := NewBoard()
	offer := b.Offer(seller.ID, buyer.ID,
		ResourceQty{Resource: "kelp", Quantity: 5},
		ResourceQty{Resource: "moonstone", Quantity: 3}, 0)

	result := Accept(w, b, offer)
	assert.False(t, result.Success)
	assert.Equal(t, TradeCancelled, offer.Status)
}

func TestCancelOnlyAffectsPendingTrades(t *testing.T) {
	b := NewBoard()
	offer := b.Offer(1, 2, ResourceQty{Resource: "kelp", Quantity: 1}, ResourceQty{Resource: "moonstone", Quantity: 1}, 0)
	result := Cancel(offer)
	assert.True(t, result.Success)
	assert.Equal(t, TradeCancelled, offer.Status)

	result = Cancel(offer)
	assert.False(t, result.Success)
}
