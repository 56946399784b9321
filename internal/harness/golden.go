package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rgf/internal/value"
)

// Snapshot renders a trace as canonical JSON lines: a header naming the
// scenario, then one line per event.
func Snapshot(scenarioName string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	lines := make([]value.Object, 0, len(trace)+1)
	lines = append(lines, value.Object{"scenario": value.String(scenarioName)})
	for _, ev := range trace {
		obj := value.Object{
			"type":     value.String(ev.Type),
			"instance": value.String(ev.Instance),
		}
		if ev.Type == EventWrite {
			obj["property"] = value.String(ev.Property)
			v := ev.Value
			if v == nil {
				v = value.Null{}
			}
			obj["value"] = v
		} else {
			obj["instance_type"] = value.String(ev.InstanceType)
		}
		lines = append(lines, obj)
	}

	for _, obj := range lines {
		data, err := value.MarshalCanonical(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs scenario, reports each failed assertion on t and
// compares the trace with testdata/golden/<name>.golden. Goldens are
// rewritten with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	snapshot, err := Snapshot(scenario.Name, result.Trace)
	if err != nil {
		return err
	}
	goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden")).
		Assert(t, scenario.Name, snapshot)
	return nil
}
