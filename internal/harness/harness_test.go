package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/value"
)

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"adder_chain", "thermostat_room", "logic_gate"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/adder_chain.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := &Scenario{
		Name:    "wrong",
		Plugins: []string{"base", "numeric"},
		Setup: []Step{
			{Create: "a", Type: "numeric/mul", Properties: map[string]any{"lhs": 2, "rhs": 3}},
		},
		Flow: []Step{
			{Set: "a.lhs", Value: 4, Expect: map[string]any{"a.result": 13}},
			{Set: "a.lhs", Value: 1, ExpectError: "boom"},
			{Delete: "ghost"},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Property: "a.result", Count: 5},
			{Type: AssertFinalValue, Property: "a.result", Value: 0},
			{Type: AssertPluginState, Plugin: "logical", State: "active"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "expect a.result = 13, got 12")
	assert.Contains(t, result.Errors[1], `expected error containing "boom"`)
	assert.Contains(t, result.Errors[2], `unknown alias "ghost"`)
	assert.Contains(t, result.Errors[3], "2 writes")
	assert.Contains(t, result.Errors[4], "a.result = 3")
	assert.Contains(t, result.Errors[5], "not installed")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s := &Scenario{
		Name:    "bad_setup",
		Plugins: []string{"base"},
		Setup:   []Step{{Create: "x", Type: "nope/missing"}},
		Flow:    []Step{{Tick: "x"}},
	}
	_, err := Run(s)
	assert.ErrorContains(t, err, "setup[0] (create)")
}

func TestRun_UnknownPlugin(t *testing.T) {
	_, err := Run(&Scenario{Name: "p", Plugins: []string{"warp"}})
	assert.ErrorContains(t, err, "unknown built-in plugin")
}

func TestRun_FlowAliases(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/thermostat_room.yaml")
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, "active", result.Plugins["thermostat"])
	assert.Equal(t, "active", result.Plugins["base"])
	require.NotEmpty(t, result.Trace)
	assert.Equal(t, "room.controller", result.Trace[0].Instance)
	assert.Equal(t, value.Int(25), result.Trace[0].Value)
}
