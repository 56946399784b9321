package harness

import "github.com/roach88/rgf/internal/value"

// Trace event types.
const (
	EventWrite   = "write"
	EventCreated = "created"
	EventDeleted = "deleted"
)

// TraceEvent is one traced write or instance event. Instance is the
// alias, or the id for instances the scenario never named.
type TraceEvent struct {
	Type         string      `json:"type"`
	Instance     string      `json:"instance"`
	InstanceType string      `json:"instance_type,omitempty"`
	Property     string      `json:"property,omitempty"`
	Value        value.Value `json:"value,omitempty"`
}

// Ref returns "<instance>.<property>" for writes.
func (e TraceEvent) Ref() string {
	return e.Instance + "." + e.Property
}

// Result is the outcome of a scenario.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Plugins maps plugin names to their state after the flow.
	Plugins map[string]string `json:"plugins,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Plugins: make(map[string]string),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
