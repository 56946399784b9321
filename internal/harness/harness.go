package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/manifest"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/runtime"
	"github.com/roach88/rgf/internal/testutil"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// Harness executes one scenario against its own runtime.
type Harness struct {
	rt *runtime.Runtime

	aliases map[string]uuid.UUID
	names   map[uuid.UUID]string

	mu        sync.Mutex
	recording bool
	raw       []rawEvent
}

type rawEvent struct {
	kind     string
	id       uuid.UUID
	typ      types.TypeId
	property string
	value    value.Value
}

// Run executes a scenario and returns the result. The error is non-nil
// only when the scenario cannot run at all: plugins fail to install or
// activate, or a setup step fails. Flow failures are reported in the
// result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	rt := runtime.New(
		runtime.WithIDGenerator(testutil.NewSequentialGenerator()),
		runtime.WithClock(reactive.NewClock()),
	)
	builtin, err := plugins.Select(scenario.Plugins, nil)
	if err != nil {
		return nil, err
	}
	if err := rt.Install(builtin...); err != nil {
		return nil, fmt.Errorf("install plugins: %w", err)
	}
	if len(scenario.Manifests) > 0 {
		defs, err := manifest.Load(scenario.Manifests...)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			if err := rt.Install(d); err != nil {
				return nil, fmt.Errorf("install manifest plugin: %w", err)
			}
		}
	}

	report, err := rt.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init runtime: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(sctx); err != nil {
			slog.Warn("scenario shutdown failed", "scenario", scenario.Name, "error", err)
		}
	}()
	for name, ferr := range report.Failed {
		return nil, fmt.Errorf("plugin %s failed to activate: %w", name, ferr)
	}

	h := &Harness{
		rt:      rt,
		aliases: make(map[string]uuid.UUID),
		names:   make(map[uuid.UUID]string),
	}
	rt.Graph().OnWrite(h.onWrite)
	rt.Instances().OnEvent(h.onEvent)

	for i, step := range scenario.Setup {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("setup[%d] (%s): %w", i, step.Kind(), err)
		}
	}

	result := NewResult()
	h.setRecording(true)
	for i, step := range scenario.Flow {
		err := h.execute(step)
		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("flow[%d] (%s): expected error containing %q", i, step.Kind(), step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("flow[%d] (%s): error %q does not contain %q", i, step.Kind(), err, step.ExpectError))
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] (%s): %v", i, step.Kind(), err))
		}
		for _, msg := range h.checkExpect(step.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] (%s): %s", i, step.Kind(), msg))
		}
		slog.Debug("flow step completed", "scenario", scenario.Name, "step", i, "kind", step.Kind())
	}
	h.setRecording(false)

	result.Trace = h.trace()
	for _, info := range rt.Resolver().Plugins() {
		result.Plugins[info.Manifest.Name] = info.State.String()
	}

	actx := &AssertionContext{Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setRecording(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = on
}

func (h *Harness) onWrite(ch reactive.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recording {
		h.raw = append(h.raw, rawEvent{kind: EventWrite, id: ch.Owner, property: ch.Property, value: ch.Value})
	}
}

func (h *Harness) onEvent(ev instances.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Flow events repeat the wrapper id; scenarios trace instances only.
	if !h.recording || ev.Flow {
		return
	}
	kind := EventCreated
	if ev.Kind == instances.EventDeleted {
		kind = EventDeleted
	}
	h.raw = append(h.raw, rawEvent{kind: kind, id: ev.ID, typ: ev.Type})
}

// trace resolves aliases. Instances are often named only after the
// events they caused, so this runs once the flow is done.
func (h *Harness) trace() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]TraceEvent, 0, len(h.raw))
	for _, r := range h.raw {
		name, ok := h.names[r.id]
		if !ok {
			name = r.id.String()
		}
		ev := TraceEvent{Type: r.kind, Instance: name}
		if r.kind == EventWrite {
			ev.Property = r.property
			ev.Value = r.value
		} else {
			ev.InstanceType = r.typ.String()
		}
		out = append(out, ev)
	}
	return out
}

func (h *Harness) name(alias string, id uuid.UUID) error {
	if _, dup := h.aliases[alias]; dup {
		return fmt.Errorf("alias %q already used", alias)
	}
	h.aliases[alias] = id
	h.mu.Lock()
	h.names[id] = alias
	h.mu.Unlock()
	return nil
}

func (h *Harness) lookup(alias string) (reactive.Instance, error) {
	id, ok := h.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("unknown alias %q", alias)
	}
	inst, ok := h.rt.Graph().Instance(id)
	if !ok {
		return nil, fmt.Errorf("instance %q no longer exists", alias)
	}
	return inst, nil
}

// Value returns the current value of "<alias>.<property>".
func (h *Harness) Value(ref string) (value.Value, error) {
	alias, prop, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	inst, err := h.lookup(alias)
	if err != nil {
		return nil, err
	}
	return inst.Properties().Get(prop)
}

func (h *Harness) execute(s Step) error {
	im := h.rt.Instances()
	switch s.Kind() {
	case StepCreate:
		typ, props, err := typeAndProps(s)
		if err != nil {
			return err
		}
		e, err := im.CreateEntity(typ, props)
		if err != nil {
			return err
		}
		return h.name(s.Create, e.ID())

	case StepConnect:
		typ, props, err := typeAndProps(s)
		if err != nil {
			return err
		}
		out, err := h.lookup(s.Outbound)
		if err != nil {
			return err
		}
		in, err := h.lookup(s.Inbound)
		if err != nil {
			return err
		}
		r, err := im.CreateRelation(out.ID(), typ, in.ID(), props)
		if err != nil {
			return err
		}
		return h.name(s.Connect, r.ID())

	case StepInstantiate:
		typ, props, err := typeAndProps(s)
		if err != nil {
			return err
		}
		fi, err := im.InstantiateFlow(typ, props)
		if err != nil {
			return err
		}
		if err := h.name(s.Instantiate, fi.Wrapper.ID()); err != nil {
			return err
		}
		for key, e := range fi.Entities {
			if key == types.WrapperKey {
				continue
			}
			if err := h.name(s.Instantiate+"."+key, e.ID()); err != nil {
				return err
			}
		}
		for i, r := range fi.Relations {
			if err := h.name(fmt.Sprintf("%s#%d", s.Instantiate, i), r.ID()); err != nil {
				return err
			}
		}
		return nil

	case StepSet:
		alias, prop, err := splitRef(s.Set)
		if err != nil {
			return err
		}
		inst, err := h.lookup(alias)
		if err != nil {
			return err
		}
		v, err := value.FromAny(s.Value)
		if err != nil {
			return err
		}
		return inst.Properties().Set(prop, v)

	case StepDelete:
		inst, err := h.lookup(s.Delete)
		if err != nil {
			return err
		}
		if _, ok := inst.(*reactive.RelationInstance); ok {
			return im.DeleteRelation(inst.ID())
		}
		return im.DeleteEntity(inst.ID())

	case StepTick:
		inst, err := h.lookup(s.Tick)
		if err != nil {
			return err
		}
		return inst.Properties().Tick()
	}
	return fmt.Errorf("invalid step")
}

func typeAndProps(s Step) (types.TypeId, map[string]value.Value, error) {
	typ, err := types.ParseTypeId(s.Type)
	if err != nil {
		return types.TypeId{}, nil, err
	}
	if len(s.Properties) == 0 {
		return typ, nil, nil
	}
	props := make(map[string]value.Value, len(s.Properties))
	for k, raw := range s.Properties {
		v, err := value.FromAny(raw)
		if err != nil {
			return types.TypeId{}, nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = v
	}
	return typ, props, nil
}

func (h *Harness) checkExpect(expect map[string]any) []string {
	var errs []string
	for _, ref := range sortedKeys(expect) {
		want, err := value.FromAny(expect[ref])
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect %s: %v", ref, err))
			continue
		}
		got, err := h.Value(ref)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect %s: %v", ref, err))
			continue
		}
		if !value.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("expect %s = %s, got %s", ref, format(want), format(got)))
		}
	}
	return errs
}

// pluginState is used by plugin_state assertions.
func (h *Harness) pluginState(name string) (plugin.State, bool) {
	return h.rt.Resolver().State(name)
}
