package pvp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	lo, hi := canonicalPair(5, 2)
	assert.Equal(t, uint64(2), lo)
	assert.Equal(t, uint64(5), hi)

	lo2, hi2 := canonicalPair(2, 5)
	assert.Equal(t, lo, lo2)
	assert.Equal(t, hi, hi2)
}

func TestRegistryTracksAtMostOneEngagementPerAgent(t *testing.T) {
	reg := NewRegistry()
	e := reg.create(1, 2, "coral_gardens")
	require := assert.New(t)
	require.NotNil(reg.Of(1))
	require.NotNil(reg.Of(2))
	require.Equal(e.ID, reg.Of(1).ID)
	require.Equal(e.ID, reg.Of(2).ID)

	reg.end(e)
	require.Nil(reg.Of(1))
	require.Nil(reg.Of(2))
}
