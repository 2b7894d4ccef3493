package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/reef-engine/internal/state"
)

func TestDeathPenaltyBounds(t *testing.T) {
	assert.Equal(t, 5, DeathPenalty(1))     // floor
	assert.Equal(t, 15, DeathPenalty(100))  // 15%
	assert.Equal(t, 500, DeathPenalty(10000)) // cap
}

func TestApplyDeathAndRespawn(t *testing.T) {
	a := state.NewAgent(1, "0xabc", "Finn", "key")
	a.Shells = 100
	a.Location = "deep_trench"

	penalty := ApplyDeath(a)
	assert.Equal(t, 15, penalty)
	assert.Equal(t, 85, a.Shells)
	assert.False(t, a.IsAlive)
	assert.Equal(t, 0, a.HP)
	assert.Equal(t, 1, a.Deaths)

	Respawn(a)
	assert.True(t, a.IsAlive)
	assert.Equal(t, "shallows", a.Location)
	assert.Equal(t, a.MaxHP, a.HP)
	assert.Equal(t, a.MaxEnergy, a.Energy)
}

func TestVaultSlotPriceIsLinear(t *testing.T) {
	assert.Equal(t, 25, VaultSlotPrice(0))
	assert.Equal(t, 275, VaultSlotPrice(10))
}

func TestBuyVaultSlotChargesAndGrants(t *testing.T) {
	a := state.NewAgent(1, "0xabc", "Finn", "key")
	a.Shells = 25
	a.VaultSlots = 0

	result := BuyVaultSlot(a)
	assert.True(t, result.Success)
	assert.Equal(t, 0, a.Shells)
	assert.Equal(t, 1, a.VaultSlots)

	result = BuyVaultSlot(a)
	assert.False(t, result.Success)
}
