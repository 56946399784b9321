package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

type recorder struct {
	name    string
	log     *[]string
	initErr error
}

func (r *recorder) Init(context.Context) error {
	*r.log = append(*r.log, "init "+r.name)
	return r.initErr
}

func (r *recorder) Shutdown(context.Context) error {
	*r.log = append(*r.log, "shutdown "+r.name)
	return nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// =============================================================================
// Init and Shutdown
// =============================================================================

func TestRuntime_LifecycleOrder(t *testing.T) {
	var log []string
	rt := New()
	rt.AddLifecycle(&recorder{name: "store", log: &log})
	rt.AddLifecycle(&recorder{name: "metrics", log: &log})

	report, err := rt.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{PluginName}, report.Activated)
	assert.True(t, rt.Registry().EntityTypes.Has(ShutdownType))
	assert.Equal(t, []string{"init store", "init metrics"}, log)

	require.NoError(t, rt.Shutdown(context.Background()))
	assert.Equal(t, []string{"init store", "init metrics", "shutdown metrics", "shutdown store"}, log)
	assert.Equal(t, 0, rt.Registry().Len())
	assert.Equal(t, 0, rt.Registry().Namespaces.Len())
	assert.True(t, rt.ShuttingDown())
	assert.True(t, isClosed(rt.Done()))

	// Only the first Shutdown does anything.
	require.NoError(t, rt.Shutdown(context.Background()))
	assert.Len(t, log, 4)
}

func TestRuntime_CollaboratorFailureStopsStarted(t *testing.T) {
	var log []string
	rt := New()
	rt.AddLifecycle(&recorder{name: "store", log: &log})
	rt.AddLifecycle(&recorder{name: "metrics", log: &log, initErr: errors.New("port taken")})
	rt.AddLifecycle(&recorder{name: "never", log: &log})

	_, err := rt.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port taken")
	assert.Equal(t, []string{"init store", "init metrics", "shutdown store"}, log)
}

func TestRuntime_CycleFailsInit(t *testing.T) {
	var log []string
	rt := New()
	rt.AddLifecycle(&recorder{name: "store", log: &log})
	require.NoError(t, rt.Install(
		&plugin.Definition{Meta: plugin.Manifest{Name: "a", Dependencies: []string{"b"}}},
		&plugin.Definition{Meta: plugin.Manifest{Name: "b", Dependencies: []string{"a"}}},
	))

	_, err := rt.Init(context.Background())
	assert.True(t, plugin.IsCyclicDependency(err))
	assert.Equal(t, []string{"init store", "shutdown store"}, log)
	s, _ := rt.Resolver().State(PluginName)
	assert.Equal(t, plugin.StateInstalled, s)
}

func TestRuntime_ShutdownDeletesInstances(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	_, err = rt.Instances().CreateEntity(ShutdownType, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rt.Behaviours().Count())

	require.NoError(t, rt.Shutdown(context.Background()))
	ents, rels := rt.Instances().Count()
	assert.Zero(t, ents)
	assert.Zero(t, rels)
	assert.Zero(t, rt.Behaviours().Count())
	assert.Zero(t, rt.Graph().NodeCount())
	s, _ := rt.Resolver().State(PluginName)
	assert.Equal(t, plugin.StateInstalled, s)
}

// =============================================================================
// Shutdown entity
// =============================================================================

func TestShutdownEntity_Trigger(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	e, err := rt.Instances().CreateEntity(ShutdownType, map[string]value.Value{
		PropertyLabel: value.String("/runtime/shutdown"),
	})
	require.NoError(t, err)
	assert.False(t, isClosed(rt.Done()))

	require.NoError(t, e.Properties().Set(PropertyTrigger, value.Bool(false)))
	assert.False(t, isClosed(rt.Done()))

	require.NoError(t, e.Properties().Set(PropertyTrigger, value.Bool(true)))
	assert.True(t, isClosed(rt.Done()))
	assert.False(t, rt.ShuttingDown())

	require.NoError(t, rt.Shutdown(context.Background()))
}

func TestShutdownEntity_Delay(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	e, err := rt.Instances().CreateEntity(ShutdownType, map[string]value.Value{
		PropertyDelay: value.Float(0.02),
	})
	require.NoError(t, err)
	require.NoError(t, e.Properties().Set(PropertyTrigger, value.Bool(true)))

	assert.Eventually(t, func() bool { return isClosed(rt.Done()) }, time.Second, 5*time.Millisecond)
	require.NoError(t, rt.Shutdown(context.Background()))
}

func TestShutdownEntity_TicksDoNotRearmDelay(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	e, err := rt.Instances().CreateEntity(ShutdownType, map[string]value.Value{
		PropertyDelay: value.Float(0.05),
	})
	require.NoError(t, err)
	c := e.Properties()
	require.NoError(t, c.Set(PropertyTrigger, value.Bool(true)))

	// Forced re-evaluation, as another behaviour's connect would do.
	assert.Eventually(t, func() bool {
		_ = c.Tick()
		return isClosed(rt.Done())
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, rt.Shutdown(context.Background()))
}

func TestShutdownEntity_TriggeredBeforeConnectStaysQuiet(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	_, err = rt.Instances().CreateEntity(ShutdownType, map[string]value.Value{
		PropertyTrigger: value.Bool(true),
	})
	require.NoError(t, err)
	assert.False(t, isClosed(rt.Done()))
	require.NoError(t, rt.Shutdown(context.Background()))
}

func TestShutdownEntity_InvalidTriggerValue(t *testing.T) {
	rt := New()
	_, err := rt.Init(context.Background())
	require.NoError(t, err)

	_, err = rt.Instances().CreateEntity(ShutdownType, map[string]value.Value{
		PropertyTrigger: value.String("yes"),
	})
	assert.Error(t, err)
	assert.False(t, isClosed(rt.Done()))
}

// =============================================================================
// Run
// =============================================================================

func TestRuntime_RunStopsOnContext(t *testing.T) {
	rt := New()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- rt.Run(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		s, _ := rt.Resolver().State(PluginName)
		return s == plugin.StateActive
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, rt.ShuttingDown())
	assert.False(t, rt.Registry().EntityTypes.Has(types.NewTypeId(PluginName, "shutdown")))
}
