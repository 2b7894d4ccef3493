package engineerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailCarriesKindAndNarrative(t *testing.T) {
	r := Fail(RateLimited, "slow down")
	assert.False(t, r.Success)
	assert.Equal(t, RateLimited, r.Kind)
	assert.Equal(t, "slow down", r.Narrative)
	assert.Nil(t, r.StateChanges)
}

func TestOkCarriesStateChanges(t *testing.T) {
	r := Ok("you move to the reef", "location=reef")
	assert.True(t, r.Success)
	assert.Equal(t, []string{"location=reef"}, r.StateChanges)
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []Kind{None, InvalidInput, Unauthorized, RateLimited, Gated, InsufficientResource, NotFound, Conflict, Transient}
	for _, k := range kinds {
		assert.NotEqual(t, "unknown", k.String())
	}
	assert.Equal(t, "unknown", Kind(999).String())
}
