package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCatalogIsInternallyConsistent(t *testing.T) {
	c := Default()

	require := assert.New(t)
	require.Contains(c.Zones, "shallows")
	require.True(c.Zones["shallows"].Safe)
	require.Contains(c.Zones, "the_abyss")

	for zoneID, ids := range c.MobsByZone {
		for _, mobID := range ids {
			mob, ok := c.Mobs[mobID]
			require.Truef(ok, "zone %s references unknown mob %s", zoneID, mobID)
			require.NotEmpty(mob.Name)
		}
	}

	for _, edge := range c.FastTravel {
		_, fromOK := c.Zones[edge.From]
		_, toOK := c.Zones[edge.To]
		require.Truef(fromOK, "fast travel edge references unknown zone %s", edge.From)
		require.Truef(toOK, "fast travel edge references unknown zone %s", edge.To)
	}

	for _, itemID := range c.LegendaryItems {
		_, ok := c.Equipment[itemID]
		require.Truef(ok, "legendary item %s missing from equipment table", itemID)
	}
}
