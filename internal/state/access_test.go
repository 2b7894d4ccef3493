package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reef-engine/internal/config"
)

func newTestWorld() *World {
	return NewWorld(config.Default())
}

func TestCreateAgentAndLookups(t *testing.T) {
	w := newTestWorld()
	a := w.CreateAgent("0xabc", "Finn", "key-1")
	require.NotNil(t, a)
	assert.Equal(t, "shallows", a.Location)
	assert.True(t, a.IsAlive)

	assert.Equal(t, a, w.Agent(a.ID))
	assert.Equal(t, a, w.AgentByName("Finn"))
	assert.Equal(t, a, w.AgentByAPIKey("key-1"))
	assert.Nil(t, w.AgentByAPIKey("nonexistent"))
}

func TestClampHPAndEnergy(t *testing.T) {
	a := NewAgent(1, "0xabc", "Finn", "key")
	a.HP = -50
	ClampHP(a)
	assert.Equal(t, 0, a.HP)

	a.HP = a.MaxHP + 999
	ClampHP(a)
	assert.Equal(t, a.MaxHP, a.HP)

	a.Energy = -5
	ClampEnergy(a)
	assert.Equal(t, 0, a.Energy)
}

func TestAddShellsClampsAtZero(t *testing.T) {
	a := NewAgent(1, "0xabc", "Finn", "key")
	a.Shells = 10
	AddShells(a, -50)
	assert.Equal(t, 0, a.Shells)

	AddShells(a, 30)
	assert.Equal(t, 30, a.Shells)
}

func TestAddInventoryRespectsSlotCap(t *testing.T) {
	w := newTestWorld()
	a := w.CreateAgent("0xabc", "Finn", "key-1")
	a.InventorySlots = 5

	added, overflowed := w.AddInventory(a.ID, "kelp", 3)
	assert.Equal(t, 3, added)
	assert.False(t, overflowed)

	added, overflowed = w.AddInventory(a.ID, "coral", 10)
	assert.Equal(t, 2, added)
	assert.True(t, overflowed)

	assert.True(t, w.InventoryHasAtLeast(a.ID, "kelp", 3))
	assert.False(t, w.InventoryHasAtLeast(a.ID, "coral", 3))
}

func TestRemoveInventoryDeletesEmptyRow(t *testing.T) {
	w := newTestWorld()
	a := w.CreateAgent("0xabc", "Finn", "key-1")
	w.AddInventory(a.ID, "kelp", 5)

	assert.True(t, w.RemoveInventory(a.ID, "kelp", 5))
	assert.Empty(t, w.Inventory(a.ID))
	assert.False(t, w.RemoveInventory(a.ID, "kelp", 1))
}

func TestAdvanceTick(t *testing.T) {
	w := newTestWorld()
	assert.Equal(t, uint64(0), w.Tick())
	assert.Equal(t, uint64(1), w.AdvanceTick())
	assert.Equal(t, uint64(1), w.Tick())
}

func TestCooldownRoundtrip(t *testing.T) {
	w := newTestWorld()
	a := w.CreateAgent("0xabc", "Finn", "key-1")

	_, ok := w.CooldownExpiry(a.ID, CooldownRest)
	assert.False(t, ok)

	w.SetCooldown(a.ID, CooldownRest, 1, 60*time.Second)
	expiry, ok := w.CooldownExpiry(a.ID, CooldownRest)
	assert.True(t, ok)
	assert.False(t, expiry.IsZero())
}
