package plugin

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/observability"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// DefaultMaxPasses bounds the passes of one Start or Stop run.
const DefaultMaxPasses = 1000

const tracerName = "github.com/roach88/rgf/internal/plugin"

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxPasses overrides DefaultMaxPasses. Values below 1 are ignored.
func WithMaxPasses(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPasses = n
		}
	}
}

// WithTracerProvider sets the provider used for run spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ResolverOption {
	return func(r *Resolver) {
		r.tracer = tp.Tracer(tracerName)
	}
}

type typeRef struct {
	kind types.Kind
	id   types.TypeId
}

type entry struct {
	plugin   Plugin
	manifest Manifest
	state    State
	err      error

	// owned lists the types this plugin registered, in registration order.
	owned []typeRef
	// halted is set once factories are removed and the activator has been
	// told to deactivate, so a deferred Stop does not repeat either.
	halted bool
}

// Info is a read-only view of an installed plugin.
type Info struct {
	Manifest Manifest
	State    State
	Err      error
}

// Report summarises one Start or Stop run.
type Report struct {
	Mode        Mode
	Passes      int
	Activated   []string
	Deactivated []string
	Failed      map[string]error
	Deferred    []string
	Unsatisfied map[string][]string
}

func newReport(mode Mode) *Report {
	return &Report{
		Mode:        mode,
		Failed:      make(map[string]error),
		Unsatisfied: make(map[string][]string),
	}
}

// Resolver activates and deactivates plugins in dependency order.
type Resolver struct {
	registry   *types.Registry
	graph      *reactive.Graph
	behaviours *behaviour.Manager
	instances  *instances.Manager
	maxPasses  int
	tracer     trace.Tracer

	run sync.Mutex

	mu        sync.RWMutex
	mode      Mode
	entries   map[string]*entry
	observers []TransitionObserver
}

// NewResolver creates a resolver that registers plugin types in registry,
// factories in behaviours, and attaches new behaviours to the instances
// managed by im.
func NewResolver(registry *types.Registry, behaviours *behaviour.Manager, im *instances.Manager, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:   registry,
		graph:      im.Graph(),
		behaviours: behaviours,
		instances:  im,
		maxPasses:  DefaultMaxPasses,
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) env() *Env {
	return &Env{Registry: r.registry, Graph: r.graph, Behaviours: r.behaviours, Instances: r.instances}
}

// OnTransition registers an observer for plugin state changes.
func (r *Resolver) OnTransition(o TransitionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Install adds plugins in the Installed state. They are activated by the
// next Start.
func (r *Resolver) Install(plugins ...Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range plugins {
		m := p.Manifest()
		if m.Name == "" {
			return &Error{Code: ErrCodeInvalidManifest, Message: "plugin name is empty"}
		}
		if _, ok := r.entries[m.Name]; ok {
			return &Error{Code: ErrCodeDuplicatePlugin, Plugin: m.Name, Message: "already installed"}
		}
		r.entries[m.Name] = &entry{plugin: p, manifest: m, state: StateInstalled}
		slog.Debug("plugin installed", "plugin", m.Name, "dependencies", m.Dependencies)
	}
	return nil
}

// Mode returns the current resolver phase.
func (r *Resolver) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

func (r *Resolver) setMode(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
}

// State returns the state of an installed plugin.
func (r *Resolver) State(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Plugins returns every installed plugin sorted by name.
func (r *Resolver) Plugins() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{Manifest: e.manifest, State: e.state, Err: e.err})
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Manifest.Name, b.Manifest.Name) })
	return out
}

func (r *Resolver) transition(e *entry, to State, err error) {
	r.mu.Lock()
	from := e.state
	e.state = to
	e.err = err
	obs := slices.Clone(r.observers)
	r.mu.Unlock()

	if from == to {
		return
	}
	observability.RecordPluginTransition(e.manifest.Name, to.String())
	tr := Transition{Plugin: e.manifest.Name, From: from, To: to, Err: err}
	for _, o := range obs {
		o(tr)
	}
}

// names returns the sorted names of entries whose state satisfies keep.
func (r *Resolver) names(keep func(State) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, e := range r.entries {
		if keep(e.state) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (r *Resolver) entry(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

func pending(s State) bool { return s == StateInstalled || s == StateStopping }
func live(s State) bool    { return s == StateActive || s == StateStopping }

// =============================================================================
// Start
// =============================================================================

// Start activates every pending plugin whose dependencies can be met.
// Plugins that failed in an earlier run are retried. A dependency cycle
// aborts the run before anything is activated; individual activation
// failures are recorded in the report and do not fail the run.
func (r *Resolver) Start(ctx context.Context) (*Report, error) {
	r.run.Lock()
	defer r.run.Unlock()

	ctx, span := r.tracer.Start(ctx, "plugin.Resolver.Start")
	defer span.End()

	r.setMode(ModeStarting)
	defer r.setMode(ModeNeutral)
	report := newReport(ModeStarting)

	for _, name := range r.names(func(s State) bool { return s == StateFailed }) {
		r.transition(r.entry(name), StateInstalled, nil)
	}

	if cycles := r.cycles(); len(cycles) > 0 {
		err := &Error{Code: ErrCodeCyclicDependency, Cycles: cycles, Message: "plugin dependencies form a cycle"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "cyclic dependency")
		slog.Error("plugin resolution aborted", "error", err)
		return report, err
	}

	for report.Passes < r.maxPasses {
		report.Passes++
		result := r.activationPass(ctx, report)
		observability.RecordResolverPass("start", result.String())
		if result == NoChange {
			break
		}
		if report.Passes == r.maxPasses {
			slog.Warn("plugin activation hit pass limit", "passes", report.Passes)
		}
	}

	for _, name := range r.names(pending) {
		e := r.entry(name)
		var missing []string
		for _, dep := range e.manifest.Dependencies {
			if s, ok := r.State(dep); !ok || s != StateActive {
				missing = append(missing, dep)
			}
		}
		report.Unsatisfied[name] = missing
		slog.Warn("plugin dependencies unsatisfied", "plugin", name, "missing", missing)
	}

	span.SetAttributes(
		attribute.Int("passes", report.Passes),
		attribute.StringSlice("activated", report.Activated),
		attribute.Int("failed", len(report.Failed)),
	)
	slog.Info("plugins started",
		"activated", len(report.Activated),
		"failed", len(report.Failed),
		"unsatisfied", len(report.Unsatisfied),
		"passes", report.Passes)
	return report, nil
}

// cycles runs cycle analysis over the plugins that are not active yet.
// Dependencies on active or unknown plugins cannot close a cycle.
func (r *Resolver) cycles() [][]string {
	g := make(dependencyGraph)
	todo := r.names(pending)
	for _, name := range todo {
		g[name] = []string{}
		for _, dep := range r.entry(name).manifest.Dependencies {
			if slices.Contains(todo, dep) {
				g[name] = append(g[name], dep)
			}
		}
	}
	return findCycles(g)
}

func (r *Resolver) activationPass(ctx context.Context, report *Report) TransitionResult {
	active := r.names(func(s State) bool { return s == StateActive })
	result := NoChange
	for _, name := range r.names(pending) {
		e := r.entry(name)
		ready := true
		for _, dep := range e.manifest.Dependencies {
			if !slices.Contains(active, dep) {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		if err := r.activate(ctx, e); err != nil {
			report.Failed[name] = err
			r.transition(e, StateFailed, err)
			slog.Error("plugin activation failed", "plugin", name, "error", err)
			continue
		}
		report.Activated = append(report.Activated, name)
		r.transition(e, StateActive, nil)
		slog.Info("plugin activated", "plugin", name)
		result = Changed
	}
	return result
}

func (r *Resolver) activate(ctx context.Context, e *entry) (err error) {
	name := e.manifest.Name
	ctx, span := r.tracer.Start(ctx, "plugin.activate", trace.WithAttributes(attribute.String("plugin", name)))
	defer span.End()

	var added []typeRef
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			r.behaviours.UnregisterOwner(name)
			r.unregister(added)
			err = &Error{Code: ErrCodeActivationFailed, Plugin: name, Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "activation failed")
		}
	}()

	if err := r.registerTypes(e, &added); err != nil {
		return err
	}
	if p, ok := e.plugin.(EntityBehaviourProvider); ok {
		for _, f := range p.EntityFactories(r.graph) {
			r.behaviours.RegisterEntityFactory(name, f)
		}
	}
	if p, ok := e.plugin.(RelationBehaviourProvider); ok {
		for _, f := range p.RelationFactories(r.graph) {
			r.behaviours.RegisterRelationFactory(name, f)
		}
	}
	if a, ok := e.plugin.(Activator); ok {
		if err := a.Activate(ctx, r.env()); err != nil {
			return err
		}
	}

	e.owned = append(e.owned, added...)
	e.halted = false
	reconnected := r.behaviours.ReconnectOwner(name)
	attached := r.instances.AttachOwner(name)
	span.SetAttributes(attribute.Int("types", len(e.owned)), attribute.Int("behaviours", attached+reconnected))
	return nil
}

// registerTypes lists each provider once and registers whatever the
// plugin does not already own. New registrations are appended to added.
func (r *Resolver) registerTypes(e *entry, added *[]typeRef) error {
	owns := func(kind types.Kind, id types.TypeId) bool {
		return slices.Contains(e.owned, typeRef{kind, id})
	}
	if p, ok := e.plugin.(ComponentProvider); ok {
		if err := register(r.registry.Components, p.Components(), owns, added); err != nil {
			return err
		}
	}
	if p, ok := e.plugin.(EntityTypeProvider); ok {
		if err := register(r.registry.EntityTypes, p.EntityTypes(), owns, added); err != nil {
			return err
		}
	}
	if p, ok := e.plugin.(RelationTypeProvider); ok {
		if err := register(r.registry.RelationTypes, p.RelationTypes(), owns, added); err != nil {
			return err
		}
	}
	if p, ok := e.plugin.(FlowTypeProvider); ok {
		if err := register(r.registry.FlowTypes, p.FlowTypes(), owns, added); err != nil {
			return err
		}
	}
	return nil
}

func register[T types.Type](p *types.Partition[T], items []T, owns func(types.Kind, types.TypeId) bool, added *[]typeRef) error {
	for _, t := range items {
		id := t.TypeID()
		if owns(p.Kind(), id) {
			continue
		}
		if err := p.Register(t); err != nil {
			return err
		}
		*added = append(*added, typeRef{p.Kind(), id})
	}
	return nil
}

// unregister removes refs in reverse order and returns the prefix that is
// still registered. It stops at the first type that live instances still
// reference, so components outlive the types built on them.
func (r *Resolver) unregister(refs []typeRef) []typeRef {
	for i := len(refs) - 1; i >= 0; i-- {
		err := r.unregisterOne(refs[i])
		if types.IsTypeInUse(err) {
			return refs[:i+1]
		}
		if err != nil && !types.IsUnknownType(err) {
			slog.Warn("type unregister failed", "type", refs[i].id.String(), "error", err)
		}
	}
	return nil
}

func (r *Resolver) unregisterOne(ref typeRef) error {
	switch ref.kind {
	case types.KindComponent:
		return r.registry.Components.Unregister(ref.id)
	case types.KindEntityType:
		return r.registry.EntityTypes.Unregister(ref.id)
	case types.KindRelationType:
		return r.registry.RelationTypes.Unregister(ref.id)
	case types.KindFlowType:
		return r.registry.FlowTypes.Unregister(ref.id)
	}
	return nil
}

// =============================================================================
// Stop
// =============================================================================

// Stop deactivates active plugins in reverse dependency order. Plugins
// whose types are still referenced stay Stopping and are listed in the
// report's Deferred; a later Stop retries them.
func (r *Resolver) Stop(ctx context.Context) (*Report, error) {
	r.run.Lock()
	defer r.run.Unlock()

	ctx, span := r.tracer.Start(ctx, "plugin.Resolver.Stop")
	defer span.End()

	r.setMode(ModeStopping)
	defer r.setMode(ModeNeutral)
	report := newReport(ModeStopping)

	for report.Passes < r.maxPasses {
		report.Passes++
		result := r.deactivationPass(ctx, report)
		observability.RecordResolverPass("stop", result.String())
		if result == NoChange {
			break
		}
		if report.Passes == r.maxPasses {
			slog.Warn("plugin deactivation hit pass limit", "passes", report.Passes)
		}
	}

	report.Deferred = r.names(func(s State) bool { return s == StateStopping })
	for _, name := range report.Deferred {
		slog.Warn("plugin deactivation deferred", "plugin", name)
	}

	span.SetAttributes(
		attribute.Int("passes", report.Passes),
		attribute.StringSlice("deactivated", report.Deactivated),
		attribute.StringSlice("deferred", report.Deferred),
	)
	slog.Info("plugins stopped",
		"deactivated", len(report.Deactivated),
		"deferred", len(report.Deferred),
		"passes", report.Passes)
	return report, nil
}

func (r *Resolver) deactivationPass(ctx context.Context, report *Report) TransitionResult {
	running := r.names(live)
	result := NoChange
	for _, name := range slices.Backward(running) {
		dependedOn := false
		for _, other := range running {
			if other != name && slices.Contains(r.entry(other).manifest.Dependencies, name) {
				dependedOn = true
				break
			}
		}
		if dependedOn {
			continue
		}

		e := r.entry(name)
		if r.deactivate(ctx, e) {
			report.Deactivated = append(report.Deactivated, name)
			r.transition(e, StateInstalled, nil)
			slog.Info("plugin deactivated", "plugin", name)
			result = Changed
			continue
		}
		if e.state != StateStopping {
			r.transition(e, StateStopping, nil)
			result = Changed
		}
	}
	return result
}

// deactivate reports whether every type the plugin owns is gone.
func (r *Resolver) deactivate(ctx context.Context, e *entry) bool {
	name := e.manifest.Name
	ctx, span := r.tracer.Start(ctx, "plugin.deactivate", trace.WithAttributes(attribute.String("plugin", name)))
	defer span.End()

	if !e.halted {
		r.behaviours.UnregisterOwner(name)
		n := r.behaviours.DisconnectOwner(name)
		if a, ok := e.plugin.(Activator); ok {
			if err := a.Deactivate(ctx, r.env()); err != nil {
				span.RecordError(err)
				slog.Warn("plugin deactivate hook failed", "plugin", name, "error", err)
			}
		}
		e.halted = true
		span.SetAttributes(attribute.Int("disconnected", n))
	}

	e.owned = r.unregister(e.owned)
	if len(e.owned) > 0 {
		span.SetAttributes(attribute.Int("remaining_types", len(e.owned)))
		return false
	}
	e.halted = false
	return true
}
