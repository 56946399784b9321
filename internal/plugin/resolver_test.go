package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

var (
	echoType      = types.NewTypeId("echo", "echo")
	echoBehaviour = types.NewTypeId("echo", "copy")
)

type fixture struct {
	registry   *types.Registry
	graph      *reactive.Graph
	behaviours *behaviour.Manager
	instances  *instances.Manager
	resolver   *Resolver
}

func newFixture(t *testing.T, opts ...ResolverOption) *fixture {
	t.Helper()
	reg := types.NewRegistry()
	g := reactive.NewGraph()
	bm := behaviour.NewManager()
	im := instances.NewManager(reg, g, bm)
	return &fixture{
		registry:   reg,
		graph:      g,
		behaviours: bm,
		instances:  im,
		resolver:   NewResolver(reg, bm, im, opts...),
	}
}

// marker provides one component named after the plugin.
func marker(name string, deps ...string) *Definition {
	return &Definition{
		Meta:          Manifest{Name: name, Dependencies: deps},
		ComponentList: []types.Component{{Id: types.NewTypeId(name, "marker")}},
	}
}

func echoPlugin() *Definition {
	return &Definition{
		Meta: Manifest{Name: "echo"},
		EntityList: []types.EntityType{{
			Id: echoType,
			Properties: []types.PropertyType{
				types.InputProperty("in", types.DataTypeAny),
				types.OutputProperty("out", types.DataTypeAny),
			},
		}},
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			return []behaviour.EntityFactory{echoFactory(g)}
		},
	}
}

func echoFactory(g *reactive.Graph) behaviour.EntityFactory {
	return behaviour.NewEntityFactory(echoBehaviour, echoType, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
		c := e.Properties()
		op := g.NewOperation("echo", func(v value.Value) (value.Value, error) { return v, nil }).
			BindInput(reactive.Endpoint{Container: c, Property: "in"}).
			BindOutput(reactive.Endpoint{Container: c, Property: "out"})
		return behaviour.New(echoBehaviour, e, op), nil
	})
}

func state(t *testing.T, r *Resolver, name string) State {
	t.Helper()
	s, ok := r.State(name)
	require.True(t, ok, "plugin %s not installed", name)
	return s
}

// =============================================================================
// Install
// =============================================================================

func TestInstall_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a")))
	assert.True(t, IsDuplicatePlugin(f.resolver.Install(marker("a"))))
	assert.True(t, hasCode(f.resolver.Install(marker("")), ErrCodeInvalidManifest))

	infos := f.resolver.Plugins()
	require.Len(t, infos, 1)
	assert.Equal(t, StateInstalled, infos[0].State)
	assert.Equal(t, ModeNeutral, f.resolver.Mode())
}

// =============================================================================
// Start
// =============================================================================

func TestStart_ActivatesDependenciesFirst(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a", "b"), marker("b")))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, report.Activated)
	assert.Equal(t, 3, report.Passes)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Unsatisfied)

	assert.Equal(t, StateActive, state(t, f.resolver, "a"))
	assert.True(t, f.registry.Components.Has(types.NewTypeId("a", "marker")))
	assert.True(t, f.registry.Namespaces.Contains("b"))
	assert.Equal(t, ModeNeutral, f.resolver.Mode())

	// A second run has nothing to do.
	report, err = f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Activated)
	assert.Equal(t, 1, report.Passes)
}

func TestStart_CycleActivatesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a", "b"), marker("b", "a"), marker("c")))

	report, err := f.resolver.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsCyclicDependency(err))
	assert.Empty(t, report.Activated)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, [][]string{{"a", "b", "a"}}, pe.Cycles)

	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, StateInstalled, state(t, f.resolver, name))
	}
	assert.Equal(t, 0, f.registry.Len())
}

func TestStart_SelfDependencyIsACycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a", "a")))

	_, err := f.resolver.Start(context.Background())
	assert.True(t, IsCyclicDependency(err))
	assert.Contains(t, err.Error(), "a -> a")
}

func TestStart_ActiveDependenciesDoNotFormCycles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("b")))
	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.resolver.Install(marker("a", "b")))
	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Activated)
}

func TestStart_FailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	bad := marker("bad")
	bad.EntityList = []types.EntityType{{Id: types.NewTypeId("bad", "thing")}}
	bad.OnActivate = func(context.Context, *Env) error { return errors.New("boom") }

	require.NoError(t, f.resolver.Install(bad, marker("needs_bad", "bad"), marker("ok")))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, report.Activated)
	require.Contains(t, report.Failed, "bad")
	assert.True(t, IsActivationFailed(report.Failed["bad"]))
	assert.Equal(t, map[string][]string{"needs_bad": {"bad"}}, report.Unsatisfied)

	// Everything bad registered was rolled back.
	assert.False(t, f.registry.Components.Has(types.NewTypeId("bad", "marker")))
	assert.False(t, f.registry.EntityTypes.Has(types.NewTypeId("bad", "thing")))
	assert.Equal(t, StateFailed, state(t, f.resolver, "bad"))
	assert.Equal(t, StateInstalled, state(t, f.resolver, "needs_bad"))
}

func TestStart_DuplicateTypeFailsOnlyTheLaterPlugin(t *testing.T) {
	f := newFixture(t)
	clash := marker("z")
	clash.ComponentList = append(clash.ComponentList, types.Component{Id: types.NewTypeId("a", "marker")})
	require.NoError(t, f.resolver.Install(marker("a"), clash))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Activated)
	require.Contains(t, report.Failed, "z")
	assert.True(t, types.IsDuplicateType(report.Failed["z"]))
	assert.False(t, f.registry.Components.Has(types.NewTypeId("z", "marker")))
	assert.True(t, f.registry.Components.Has(types.NewTypeId("a", "marker")))
}

func TestStart_PanicIsIsolated(t *testing.T) {
	f := newFixture(t)
	p := marker("p")
	p.OnActivate = func(context.Context, *Env) error { panic("kaboom") }
	require.NoError(t, f.resolver.Install(p))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	require.Contains(t, report.Failed, "p")
	assert.Contains(t, report.Failed["p"].Error(), "kaboom")
	assert.False(t, f.registry.Components.Has(types.NewTypeId("p", "marker")))
}

func TestStart_RetriesFailedPlugins(t *testing.T) {
	f := newFixture(t)
	fail := true
	p := marker("flaky")
	p.OnActivate = func(context.Context, *Env) error {
		if fail {
			return errors.New("not yet")
		}
		return nil
	}
	require.NoError(t, f.resolver.Install(p))

	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state(t, f.resolver, "flaky"))

	fail = false
	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"flaky"}, report.Activated)
}

func TestStart_MissingDependencyIsUnsatisfied(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a", "ghost")))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Activated)
	assert.Equal(t, map[string][]string{"a": {"ghost"}}, report.Unsatisfied)
}

func TestStart_AttachesBehavioursToExistingInstances(t *testing.T) {
	f := newFixture(t)
	base := echoPlugin()
	base.EntityBuild = nil
	require.NoError(t, f.resolver.Install(base))
	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)

	e, err := f.instances.CreateEntity(echoType, map[string]value.Value{"in": value.Int(4)})
	require.NoError(t, err)
	assert.Equal(t, 0, f.behaviours.Count())

	require.NoError(t, f.resolver.Install(&Definition{
		Meta: Manifest{Name: "echo_behaviours", Dependencies: []string{"echo"}},
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			return []behaviour.EntityFactory{echoFactory(g)}
		},
	}))
	_, err = f.resolver.Start(context.Background())
	require.NoError(t, err)

	require.Len(t, f.behaviours.Behaviours(e.ID()), 1)
	out, err := e.Properties().Get("out")
	require.NoError(t, err)
	assert.Equal(t, value.Int(4), out)
}

func TestStart_IsSerialized(t *testing.T) {
	f := newFixture(t)
	for i := range 10 {
		require.NoError(t, f.resolver.Install(marker(fmt.Sprintf("p%d", i))))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.resolver.Start(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			total += len(report.Activated)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, total)
}

// =============================================================================
// Stop
// =============================================================================

func TestStop_ReverseDependencyOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Install(marker("a", "b"), marker("b", "c"), marker("c")))
	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)

	report, err := f.resolver.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, report.Deactivated)
	assert.Empty(t, report.Deferred)
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, ModeNeutral, f.resolver.Mode())
}

func TestStop_DefersWhileTypesInUse(t *testing.T) {
	f := newFixture(t)
	p := echoPlugin()
	deactivations := 0
	p.OnDeactivate = func(context.Context, *Env) error {
		deactivations++
		return nil
	}
	require.NoError(t, f.resolver.Install(p))
	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)

	e, err := f.instances.CreateEntity(echoType, nil)
	require.NoError(t, err)
	b := f.behaviours.Behaviours(e.ID())[0]
	assert.Equal(t, behaviour.StateConnected, b.State())

	report, err := f.resolver.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Deactivated)
	assert.Equal(t, []string{"echo"}, report.Deferred)
	assert.Equal(t, StateStopping, state(t, f.resolver, "echo"))
	assert.Equal(t, behaviour.StateReady, b.State())
	assert.Equal(t, 0, f.behaviours.FactoryCount())
	assert.True(t, f.registry.EntityTypes.Has(echoType))

	// Retrying while the instance lives changes nothing and does not call
	// the deactivate hook again.
	report, err = f.resolver.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, report.Deferred)
	assert.Equal(t, 1, deactivations)

	// A Start brings the plugin back and reconnects its behaviours.
	report, err = f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, report.Activated)
	assert.Equal(t, behaviour.StateConnected, b.State())
	require.NoError(t, e.Properties().Set("in", value.String("hi")))
	out, _ := e.Properties().Get("out")
	assert.Equal(t, value.String("hi"), out)

	require.NoError(t, f.instances.DeleteEntity(e.ID()))
	report, err = f.resolver.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, report.Deactivated)
	assert.False(t, f.registry.EntityTypes.Has(echoType))
	assert.Equal(t, 2, deactivations)
}

func TestStop_DependencyWaitsForDeferredDependent(t *testing.T) {
	f := newFixture(t)
	p := echoPlugin()
	p.Meta.Dependencies = []string{"base"}
	require.NoError(t, f.resolver.Install(marker("base"), p))
	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	_, err = f.instances.CreateEntity(echoType, nil)
	require.NoError(t, err)

	report, err := f.resolver.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Deactivated)
	assert.Equal(t, []string{"echo"}, report.Deferred)
	assert.Equal(t, StateActive, state(t, f.resolver, "base"))
}

// =============================================================================
// Observers, tracing and golden order
// =============================================================================

func TestTransitions_Golden(t *testing.T) {
	f := newFixture(t)
	var buf strings.Builder
	f.resolver.OnTransition(func(tr Transition) {
		fmt.Fprintf(&buf, "%s: %s -> %s\n", tr.Plugin, tr.From, tr.To)
	})
	require.NoError(t, f.resolver.Install(
		marker("app", "logical", "numeric"),
		marker("base"),
		marker("logical", "base"),
		marker("numeric", "base"),
		marker("orphan", "missing"),
	))

	buf.WriteString("start\n")
	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	for name, missing := range report.Unsatisfied {
		fmt.Fprintf(&buf, "unsatisfied %s: %s\n", name, strings.Join(missing, ","))
	}

	buf.WriteString("stop\n")
	_, err = f.resolver.Stop(context.Background())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "transitions", []byte(buf.String()))
}

func TestResolver_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	f := newFixture(t, WithTracerProvider(tp))

	bad := marker("bad")
	bad.OnActivate = func(context.Context, *Env) error { return errors.New("boom") }
	require.NoError(t, f.resolver.Install(marker("good"), bad))

	_, err := f.resolver.Start(context.Background())
	require.NoError(t, err)

	var names []string
	failed := 0
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
		if len(s.Events()) > 0 {
			failed++
		}
	}
	assert.ElementsMatch(t, []string{"plugin.activate", "plugin.activate", "plugin.Resolver.Start"}, names)
	assert.Equal(t, 1, failed)
}

func TestWithMaxPasses_BoundsRun(t *testing.T) {
	f := newFixture(t, WithMaxPasses(1))
	require.NoError(t, f.resolver.Install(marker("a", "b"), marker("b")))

	report, err := f.resolver.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Passes)
	assert.Equal(t, []string{"b"}, report.Activated)
	assert.Contains(t, report.Unsatisfied, "a")
	assert.Equal(t, StateInstalled, state(t, f.resolver, "a"))
}
