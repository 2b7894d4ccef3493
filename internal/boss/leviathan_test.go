package boss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestComputePayoutHybridSplit mirrors the worked example from §8: two
// participants with damage 60 and 40 split a hybrid 60% equal / 40%
// damage-weighted pool.
func TestComputePayoutHybridSplit(t *testing.T) {
	participants := map[uint64]int{1: 60, 2: 40}
	wallets := map[uint64]string{1: "0xaaa", 2: "0xbbb"}

	plan := computePayout(participants, wallets)

	assert.Equal(t, 100, plan.TotalDamage)
	// equal share: 6000/2 = 3000bps each.
	// damage share: agent 1 = 4000*60/100=2400bps, agent 2 = 4000*40/100=1600bps.
	assert.Equal(t, 3000+2400, plan.SharesBps[1])
	assert.Equal(t, 3000+1600, plan.SharesBps[2])
	assert.Equal(t, uint64(1), plan.ReputationTop)
	assert.Equal(t, wallets, plan.Wallets)
}

func TestComputePayoutNoParticipants(t *testing.T) {
	plan := computePayout(map[uint64]int{}, map[uint64]string{})
	assert.Equal(t, 0, plan.TotalDamage)
	assert.Empty(t, plan.SharesBps)
}

func TestNewLeviathanStartsDormant(t *testing.T) {
	l := New(0)
	assert.False(t, l.IsAlive)
	assert.Equal(t, BaseHP, l.BaseHP)
	assert.Greater(t, l.NextSpawnTick, uint64(0))
}
