package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rgf/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	if ev.Type == EventWrite {
		return fmt.Sprintf("%s = %s", ev.Ref(), format(ev.Value))
	}
	return fmt.Sprintf("%s %s (%s)", ev.Type, ev.Instance, ev.InstanceType)
}

// AssertionContext gives assertions access to the live graph.
type AssertionContext struct {
	Harness *Harness
}

// EvaluateAssertions runs every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalValue:
			err = assertFinalValue(actx, a)
		case AssertPluginState:
			err = assertPluginState(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains checks for a write to the property, with the given
// value if one is set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	var want value.Value
	if a.Value != nil {
		v, err := value.FromAny(a.Value)
		if err != nil {
			return err
		}
		want = v
	}
	for _, ev := range trace {
		if ev.Type != EventWrite || ev.Ref() != a.Property {
			continue
		}
		if want == nil || value.Equal(want, ev.Value) {
			return nil
		}
	}

	expected := "write to " + a.Property
	if want != nil {
		expected += " = " + format(want)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first writes to the listed properties
// appear in order. Other writes may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != EventWrite {
			continue
		}
		ref := ev.Ref()
		if _, seen := positions[ref]; !seen && slices.Contains(a.Writes, ref) {
			positions[ref] = i + 1
		}
	}

	for _, ref := range a.Writes {
		if positions[ref] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("writes to all of %v", a.Writes),
				Actual:   fmt.Sprintf("no write to %s", ref),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Writes); i++ {
		prev, curr := a.Writes[i-1], a.Writes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("writes in order: %v", a.Writes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventWrite && ev.Ref() == a.Property {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d writes to %s", a.Count, a.Property),
			Actual:   fmt.Sprintf("%d writes", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalValue(actx *AssertionContext, a Assertion) error {
	want, err := value.FromAny(a.Value)
	if err != nil {
		return err
	}
	got, err := actx.Harness.Value(a.Property)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s", a.Property, format(want)),
			Actual:   err.Error(),
		}
	}
	if !value.Equal(want, got) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s", a.Property, format(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Property, format(got)),
		}
	}
	return nil
}

func assertPluginState(actx *AssertionContext, a Assertion) error {
	state, ok := actx.Harness.pluginState(a.Plugin)
	actual := "not installed"
	if ok {
		actual = state.String()
	}
	if !ok || actual != a.State {
		return &AssertionError{
			Type:     AssertPluginState,
			Expected: fmt.Sprintf("plugin %s %s", a.Plugin, a.State),
			Actual:   actual,
		}
	}
	return nil
}

// format renders v as canonical JSON.
func format(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
