package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/state"
)

func TestDuelChallengeEscrowsWager(t *testing.T) {
	w := state.NewWorld(config.Default())
	challenger := w.CreateAgent("0xaaa", "Finn", "k1")
	opponent := w.CreateAgent("0xbbb", "Mira", "k2")
	challenger.Shells = 100

	book := NewDuelBook()
	duel, result := book.Challenge(challenger, opponent.ID, 40)
	require.True(t, result.Success)
	require.NotNil(t, duel)
	assert.Equal(t, 60, challenger.Shells)
	assert.Equal(t, DuelPending, duel.Status)
}

func TestDuelChallengeRejectsInsufficientShells(t *testing.T) {
	w := state.NewWorld(config.Default())
	challenger := w.CreateAgent("0xaaa", "Finn", "k1")
	challenger.Shells = 10

	book := NewDuelBook()
	duel, result := book.Challenge(challenger, 2, 40)
	assert.False(t, result.Success)
	assert.Nil(t, duel)
	assert.Equal(t, 10, challenger.Shells)
}
