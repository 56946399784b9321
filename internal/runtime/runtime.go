// Package runtime assembles the registry, graph, behaviour manager,
// instance manager and plugin resolver into one process-wide runtime and
// drives its startup and shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// Lifecycle is implemented by collaborators that start with the runtime
// and stop with it: the metrics server, the journal store, manifest
// loaders.
type Lifecycle interface {
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Option configures a Runtime.
type Option func(*config)

type config struct {
	graphOpts    []reactive.GraphOption
	resolverOpts []plugin.ResolverOption
}

// WithMaxTickPasses bounds propagation passes per tick.
func WithMaxTickPasses(n int) Option {
	return func(c *config) { c.graphOpts = append(c.graphOpts, reactive.WithMaxPasses(n)) }
}

// WithMaxResolverPasses bounds passes per resolver run.
func WithMaxResolverPasses(n int) Option {
	return func(c *config) { c.resolverOpts = append(c.resolverOpts, plugin.WithMaxPasses(n)) }
}

// WithIDGenerator sets the instance id generator.
func WithIDGenerator(gen reactive.IDGenerator) Option {
	return func(c *config) { c.graphOpts = append(c.graphOpts, reactive.WithIDGenerator(gen)) }
}

// WithClock sets the logical clock stamping property writes.
func WithClock(clock *reactive.Clock) Option {
	return func(c *config) { c.graphOpts = append(c.graphOpts, reactive.WithClock(clock)) }
}

// WithTracerProvider sets the provider for resolver spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.resolverOpts = append(c.resolverOpts, plugin.WithTracerProvider(tp)) }
}

// Runtime is one live graph image.
type Runtime struct {
	registry   *types.Registry
	graph      *reactive.Graph
	behaviours *behaviour.Manager
	instances  *instances.Manager
	resolver   *plugin.Resolver

	mu         sync.Mutex
	lifecycles []Lifecycle
	started    []Lifecycle
	timer      *time.Timer

	shuttingDown atomic.Bool
	done         chan struct{}
	doneOnce     sync.Once
}

// New creates a runtime with the built-in runtime plugin installed.
func New(opts ...Option) *Runtime {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := types.NewRegistry()
	graph := reactive.NewGraph(cfg.graphOpts...)
	behaviours := behaviour.NewManager()
	im := instances.NewManager(registry, graph, behaviours)

	rt := &Runtime{
		registry:   registry,
		graph:      graph,
		behaviours: behaviours,
		instances:  im,
		resolver:   plugin.NewResolver(registry, behaviours, im, cfg.resolverOpts...),
		done:       make(chan struct{}),
	}
	if err := rt.resolver.Install(newRuntimePlugin(rt)); err != nil {
		panic(fmt.Sprintf("install runtime plugin: %v", err))
	}
	return rt
}

func (rt *Runtime) Registry() *types.Registry      { return rt.registry }
func (rt *Runtime) Graph() *reactive.Graph         { return rt.graph }
func (rt *Runtime) Behaviours() *behaviour.Manager { return rt.behaviours }
func (rt *Runtime) Instances() *instances.Manager  { return rt.instances }
func (rt *Runtime) Resolver() *plugin.Resolver     { return rt.resolver }

// Install hands plugins to the resolver. They activate on Init, or on the
// next Start of the resolver when the runtime is already running.
func (rt *Runtime) Install(plugins ...plugin.Plugin) error {
	return rt.resolver.Install(plugins...)
}

// AddLifecycle registers a collaborator. Collaborators start in the order
// added and stop in reverse.
func (rt *Runtime) AddLifecycle(l Lifecycle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lifecycles = append(rt.lifecycles, l)
}

// Init starts every collaborator, then activates the installed plugins.
// A collaborator failure or a dependency cycle stops whatever already
// started and is returned.
func (rt *Runtime) Init(ctx context.Context) (*plugin.Report, error) {
	rt.mu.Lock()
	pending := append([]Lifecycle(nil), rt.lifecycles...)
	rt.mu.Unlock()

	for i, l := range pending {
		if err := l.Init(ctx); err != nil {
			rt.stopCollaborators(ctx)
			return nil, fmt.Errorf("init collaborator %d (%T): %w", i, l, err)
		}
		rt.mu.Lock()
		rt.started = append(rt.started, l)
		rt.mu.Unlock()
	}

	report, err := rt.resolver.Start(ctx)
	if err != nil {
		rt.stopCollaborators(ctx)
		return report, err
	}
	slog.Info("runtime initialised",
		"plugins", len(report.Activated),
		"failed", len(report.Failed),
		"types", rt.registry.Len())
	return report, nil
}

func (rt *Runtime) stopCollaborators(ctx context.Context) error {
	rt.mu.Lock()
	started := rt.started
	rt.started = nil
	rt.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Shutdown(ctx); err != nil {
			slog.Warn("collaborator shutdown failed", "collaborator", fmt.Sprintf("%T", started[i]), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestShutdown signals Done. It does not tear anything down; the
// owner of the runtime reacts by calling Shutdown.
func (rt *Runtime) RequestShutdown() {
	rt.doneOnce.Do(func() {
		slog.Info("shutdown requested")
		close(rt.done)
	})
}

// RequestShutdownAfter signals Done once d has elapsed. A later request
// replaces an earlier pending one.
func (rt *Runtime) RequestShutdownAfter(d time.Duration) {
	if d <= 0 {
		rt.RequestShutdown()
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.timer = time.AfterFunc(d, rt.RequestShutdown)
}

// Done is closed once shutdown has been requested.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

// ShuttingDown reports whether Shutdown has begun.
func (rt *Runtime) ShuttingDown() bool { return rt.shuttingDown.Load() }

// Shutdown deletes every instance, deactivates all plugins, stops the
// collaborators in reverse order and clears the registry. Only the first
// call does any work.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	rt.RequestShutdown()

	rt.mu.Lock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.mu.Unlock()

	deleted := rt.instances.Clear()
	report, err := rt.resolver.Stop(ctx)
	if err != nil {
		return err
	}
	collabErr := rt.stopCollaborators(ctx)
	rt.registry.Reset()

	slog.Info("runtime shut down",
		"instances", deleted,
		"plugins", len(report.Deactivated),
		"deferred", len(report.Deferred))
	return collabErr
}

// Run initialises the runtime, waits for ctx to end or a shutdown request,
// then shuts down with a fresh context bounded by grace.
func (rt *Runtime) Run(ctx context.Context, grace time.Duration) error {
	if _, err := rt.Init(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-rt.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return rt.Shutdown(sctx)
}
