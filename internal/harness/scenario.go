package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one harness test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Plugins lists built-in plugins to install. Empty installs all.
	Plugins []string `yaml:"plugins,omitempty"`

	// Manifests are loaded with the manifest package. Paths are relative
	// to the scenario file.
	Manifests []string `yaml:"manifests,omitempty"`

	// Setup builds the initial graph. Its writes are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the traced part of the scenario.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single scenario action. Exactly one of Create, Connect,
// Instantiate, Set, Delete and Tick is set.
type Step struct {
	Create      string `yaml:"create,omitempty"`
	Connect     string `yaml:"connect,omitempty"`
	Instantiate string `yaml:"flow,omitempty"`
	Set         string `yaml:"set,omitempty"`
	Delete      string `yaml:"delete,omitempty"`
	Tick        string `yaml:"tick,omitempty"`

	Type       string         `yaml:"type,omitempty"`
	Outbound   string         `yaml:"outbound,omitempty"`
	Inbound    string         `yaml:"inbound,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Value      any            `yaml:"value,omitempty"`

	// Expect maps property references to the values they must hold after
	// the step.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectError, if set, must be a substring of the step's error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step kinds.
const (
	StepCreate      = "create"
	StepConnect     = "connect"
	StepInstantiate = "flow"
	StepSet         = "set"
	StepDelete      = "delete"
	StepTick        = "tick"
)

// Kind returns the step kind, or "" unless exactly one action is set.
func (s Step) Kind() string {
	kind := ""
	for k, v := range map[string]string{
		StepCreate:      s.Create,
		StepConnect:     s.Connect,
		StepInstantiate: s.Instantiate,
		StepSet:         s.Set,
		StepDelete:      s.Delete,
		StepTick:        s.Tick,
	} {
		if v == "" {
			continue
		}
		if kind != "" {
			return ""
		}
		kind = k
	}
	return kind
}

// Assertion validates the trace or the final graph.
type Assertion struct {
	Type string `yaml:"type"`

	// Property is "<alias>.<property>" (trace_contains, trace_count,
	// final_value).
	Property string `yaml:"property,omitempty"`

	// Value is the expected value (final_value, optional for
	// trace_contains).
	Value any `yaml:"value,omitempty"`

	// Count is the expected number of writes (trace_count).
	Count int `yaml:"count,omitempty"`

	// Writes lists property references in expected order (trace_order).
	Writes []string `yaml:"writes,omitempty"`

	Plugin string `yaml:"plugin,omitempty"`
	State  string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalValue    = "final_value"
	AssertPluginState   = "plugin_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, m := range scenario.Manifests {
		if !filepath.IsAbs(m) {
			scenario.Manifests[i] = filepath.Join(base, m)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, m := range s.Manifests {
		if _, err := os.Stat(m); os.IsNotExist(err) {
			return fmt.Errorf("manifest not found: %s", m)
		}
	}
	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, s Step) error {
	switch s.Kind() {
	case "":
		return fmt.Errorf("%s: exactly one of create, connect, flow, set, delete or tick is required", where)
	case StepCreate, StepInstantiate:
		if s.Type == "" {
			return fmt.Errorf("%s: type is required", where)
		}
	case StepConnect:
		if s.Type == "" || s.Outbound == "" || s.Inbound == "" {
			return fmt.Errorf("%s: connect needs type, outbound and inbound", where)
		}
	case StepSet:
		if _, _, err := splitRef(s.Set); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}
	for ref := range s.Expect {
		if _, _, err := splitRef(ref); err != nil {
			return fmt.Errorf("%s.expect: %w", where, err)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains, AssertTraceCount:
		if _, _, err := splitRef(a.Property); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Writes) == 0 {
			return fmt.Errorf("assertions[%d]: writes list is required for trace_order", index)
		}
	case AssertFinalValue:
		if _, _, err := splitRef(a.Property); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for final_value", index)
		}
	case AssertPluginState:
		if a.Plugin == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: plugin and state are required for plugin_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// splitRef splits "<alias>.<property>" at the last dot.
func splitRef(ref string) (alias, property string, err error) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("invalid property reference %q: want <alias>.<property>", ref)
	}
	return ref[:i], ref[i+1:], nil
}
