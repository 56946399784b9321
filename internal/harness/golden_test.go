package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/value"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"adder_chain", "thermostat_room"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	data, err := Snapshot("s", []TraceEvent{
		{Type: EventCreated, Instance: "x", InstanceType: "base/value"},
		{Type: EventWrite, Instance: "x", Property: "value", Value: value.Object{"b": value.Int(1), "a": value.String("é")}},
		{Type: EventWrite, Instance: "x", Property: "value"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"s"}
{"instance":"x","instance_type":"base/value","type":"created"}
{"instance":"x","property":"value","type":"write","value":{"a":"é","b":1}}
{"instance":"x","property":"value","type":"write","value":null}
`, string(data))
}
