package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/state"
)

func TestXPForLevelAndLevelForXPRoundtrip(t *testing.T) {
	assert.Equal(t, 0, XPForLevel(1))
	for level := 1; level < 20; level++ {
		xp := XPForLevel(level)
		assert.Equal(t, level, LevelForXP(xp))
	}
}

func TestGrantXPLevelsUpAndBumpsStats(t *testing.T) {
	cat := config.Default()
	a := state.NewAgent(1, "0xabc", "Finn", "key")
	startMaxHP := a.MaxHP

	// Level 2 requires XPForLevel(2) = 2*1*50 = 100 XP.
	granted, levelsGained := GrantXP(cat, a, 150, "test")
	assert.Equal(t, 150, granted)
	assert.GreaterOrEqual(t, levelsGained, 1)
	assert.Equal(t, 2, a.Level)
	assert.Greater(t, a.MaxHP, startMaxHP)
}

func TestCheckZoneAccessFlagsUnderLeveled(t *testing.T) {
	cat := config.Default()
	a := state.NewAgent(1, "0xabc", "Finn", "key")
	a.Level = 1

	za := CheckZoneAccess(cat, a, "sunken_ruins")
	assert.True(t, za.UnderLeveled)
	assert.Equal(t, 5, za.RequiredLevel)
}
