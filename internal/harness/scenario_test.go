package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/thermostat_room.yaml")
	require.NoError(t, err)

	assert.Equal(t, "thermostat_room", s.Name)
	assert.Equal(t, []string{"base"}, s.Plugins)
	assert.Equal(t, []string{filepath.Join("testdata", "manifests", "thermostat.yaml")}, s.Manifests)
	require.Len(t, s.Setup, 1)
	assert.Equal(t, StepInstantiate, s.Setup[0].Kind())
	require.Len(t, s.Flow, 3)
	assert.Equal(t, StepSet, s.Flow[0].Kind())
	assert.Equal(t, 25, s.Flow[0].Value)
	assert.Equal(t, StepCreate, s.Flow[2].Kind())
}

func TestLoadScenario_Invalid(t *testing.T) {
	const flow = "flow:\n  - tick: a\nassertions:\n  - {type: plugin_state, plugin: base, state: active}\n"
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing name", "description: d\n" + flow, "name is required"},
		{"missing description", "name: n\n" + flow, "description is required"},
		{"empty flow", "name: n\ndescription: d\nflow: []\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "flow list is required"},
		{"no assertions", "name: n\ndescription: d\nflow: [{tick: a}]\n", "assertions list is required"},
		{"unknown field", "name: n\ndescription: d\nsteps: []\n" + flow, "failed to parse YAML"},
		{"two actions", "name: n\ndescription: d\nflow: [{tick: a, delete: a}]\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "exactly one of"},
		{"create without type", "name: n\ndescription: d\nflow: [{create: a}]\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "type is required"},
		{"connect without endpoints", "name: n\ndescription: d\nflow: [{connect: c, type: base/connector}]\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "connect needs"},
		{"bad set reference", "name: n\ndescription: d\nflow: [{set: a, value: 1}]\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "invalid property reference"},
		{"bad expect reference", "name: n\ndescription: d\nflow: [{tick: a, expect: {a.: 1}}]\nassertions: [{type: plugin_state, plugin: p, state: s}]\n", "invalid property reference"},
		{"unknown assertion", "name: n\ndescription: d\nflow: [{tick: a}]\nassertions: [{type: eventually}]\n", "unknown assertion type"},
		{"final value without value", "name: n\ndescription: d\nflow: [{tick: a}]\nassertions: [{type: final_value, property: a.b}]\n", "value is required"},
		{"trace order without writes", "name: n\ndescription: d\nflow: [{tick: a}]\nassertions: [{type: trace_order}]\n", "writes list is required"},
		{"missing manifest", "name: n\ndescription: d\nmanifests: [nope.yaml]\n" + flow, "manifest not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestSplitRef(t *testing.T) {
	alias, prop, err := splitRef("room.controller.lhs")
	require.NoError(t, err)
	assert.Equal(t, "room.controller", alias)
	assert.Equal(t, "lhs", prop)

	for _, bad := range []string{"", "a", ".a", "a."} {
		_, _, err := splitRef(bad)
		assert.Error(t, err, bad)
	}
}
