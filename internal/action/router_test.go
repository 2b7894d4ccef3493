package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/state"
)

func newTestRouter() (*Router, *state.Agent) {
	cat := config.Default()
	w := state.NewWorld(cat)
	r := NewRouter(cat, w)
	a := w.CreateAgent("0xabc", "Finn", "key-1")
	return r, a
}

func TestSanitizeStripsTagsAndTruncates(t *testing.T) {
	assert.Equal(t, "hello world", sanitize("hello <script>evil</script> world", 100))
	assert.Equal(t, "abc", sanitize("abcdef", 3))
	assert.Equal(t, "", sanitize("  <b>  ", 100))
}

func TestProcessActionUnknownAgent(t *testing.T) {
	r, _ := newTestRouter()
	result := r.ProcessAction(Request{AgentID: 99999, Action: "look"})
	assert.False(t, result.Success)
	assert.Equal(t, engineerr.Unauthorized, result.Kind)
}

func TestProcessActionUnknownVerb(t *testing.T) {
	r, a := newTestRouter()
	result := r.ProcessAction(Request{AgentID: a.ID, Action: "fly"})
	assert.False(t, result.Success)
	assert.Equal(t, engineerr.InvalidInput, result.Kind)
}

func TestProcessActionRateLimitsRepeatedActions(t *testing.T) {
	r, a := newTestRouter()

	first := r.ProcessAction(Request{AgentID: a.ID, Action: "look"})
	require.True(t, first.Success)

	second := r.ProcessAction(Request{AgentID: a.ID, Action: "look"})
	assert.False(t, second.Success)
	assert.Equal(t, engineerr.RateLimited, second.Kind)
}

func TestProcessActionMoveToSafeZoneAdvancesTick(t *testing.T) {
	r, a := newTestRouter()
	startTick := r.World.Tick()

	result := r.ProcessAction(Request{AgentID: a.ID, Action: "move", Target: "arena"})
	require.True(t, result.Success)
	assert.Equal(t, "arena", a.Location)
	assert.Equal(t, startTick+1, r.World.Tick())
}

func TestProcessActionDeadAgentMustRest(t *testing.T) {
	r, a := newTestRouter()
	a.IsAlive = false

	result := r.ProcessAction(Request{AgentID: a.ID, Action: "move", Target: "arena"})
	assert.False(t, result.Success)
	assert.Equal(t, engineerr.Gated, result.Kind)

	// give the rate limiter a moment so the dead-agent gate, not the rate
	// limit, is what's under test
	time.Sleep(time.Millisecond)
	restResult := r.ProcessAction(Request{AgentID: a.ID, Action: "rest"})
	assert.True(t, restResult.Success)
	assert.True(t, a.IsAlive)
}
