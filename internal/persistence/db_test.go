package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/reef-engine/internal/abyss"
	"github.com/talgya/reef-engine/internal/arena"
	"github.com/talgya/reef-engine/internal/boss"
	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/economy"
	"github.com/talgya/reef-engine/internal/party"
	"github.com/talgya/reef-engine/internal/pvp"
	"github.com/talgya/reef-engine/internal/quest"
	"github.com/talgya/reef-engine/internal/social"
	"github.com/talgya/reef-engine/internal/state"
	"github.com/talgya/reef-engine/internal/tutorial"
)

func freshSubsystems() Subsystems {
	return Subsystems{
		Parties:     party.NewManager(),
		Engagements: pvp.NewRegistry(),
		Boss:        boss.New(0),
		Abyss:       abyss.New(config.Default()),
		Duels:       arena.NewDuelBook(),
		Tournaments: arena.NewManager(),
		Board:       social.NewBoard(),
		Quests:      quest.NewLedger(),
		Listings:    economy.NewListingBook(),
		Predictions: economy.NewPredictionBook(),
		Tutorial:    tutorial.NewTracker(),
	}
}

func TestSaveAllLoadAllRoundTripsAgentsAndTick(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reef.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	cat := config.Default()
	w := state.NewWorld(cat)
	a := w.CreateAgent("0xabc", "Finn", "key-1")
	a.Shells = 77
	w.AddInventory(a.ID, "kelp", 3)
	w.AdvanceTick()
	w.AdvanceTick()

	require.NoError(t, SaveAll(db, w, freshSubsystems()))

	w2 := state.NewWorld(cat)
	require.NoError(t, LoadAll(db, w2, freshSubsystems()))

	loaded := w2.Agent(a.ID)
	require.NotNil(t, loaded)
	require.Equal(t, "Finn", loaded.Name)
	require.Equal(t, 77, loaded.Shells)
	require.True(t, w2.InventoryHasAtLeast(a.ID, "kelp", 3))

	tickStr, err := db.GetMeta("tick")
	require.NoError(t, err)
	require.Equal(t, "2", tickStr)
}

func TestHasWorldStateReflectsPersistedAgents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reef.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	require.False(t, db.HasWorldState())

	cat := config.Default()
	w := state.NewWorld(cat)
	w.CreateAgent("0xabc", "Finn", "key-1")
	require.NoError(t, SaveAll(db, w, freshSubsystems()))

	require.True(t, db.HasWorldState())
}
