package behaviour

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

var (
	andType  = types.NewTypeId("logical", "and")
	gateComp = types.NewTypeId("logical", "gate")
)

func and(lhs, rhs value.Value) (value.Value, error) {
	return value.Bool(value.Truthy(lhs) && value.Truthy(rhs)), nil
}

func gateEntity(g *reactive.Graph, props ...string) *reactive.EntityInstance {
	if len(props) == 0 {
		props = []string{"lhs", "rhs", "result"}
	}
	init := map[string]value.Value{}
	for _, p := range props {
		init[p] = value.Bool(false)
	}
	return g.NewEntity(andType, []types.TypeId{gateComp}, init)
}

func newAndBehaviour(g *reactive.Graph, e *reactive.EntityInstance) *Behaviour {
	c := e.Properties()
	gate := g.NewGate("and", and).
		BindLhs(reactive.Endpoint{Container: c, Property: "lhs"}).
		BindRhs(reactive.Endpoint{Container: c, Property: "rhs"}).
		BindOutput(reactive.Endpoint{Container: c, Property: "result"})
	return New(andType, e, gate)
}

func result(t *testing.T, e *reactive.EntityInstance) value.Value {
	t.Helper()
	v, err := e.Properties().Get("result")
	require.NoError(t, err)
	return v
}

// =============================================================================
// Lifecycle ordering
// =============================================================================

func TestBehaviour_LifecycleInOrder(t *testing.T) {
	g := reactive.NewGraph()
	e := gateEntity(g)
	b := newAndBehaviour(g, e)
	assert.Equal(t, StateCreated, b.State())

	// Steps cannot be skipped.
	assert.True(t, IsInvalidTransition(b.Wire()))
	assert.True(t, IsInvalidTransition(b.Connect()))

	require.NoError(t, b.Validate())
	assert.Equal(t, StateValid, b.State())
	assert.True(t, IsInvalidTransition(b.Validate()))
	assert.True(t, IsInvalidTransition(b.Connect()))

	require.NoError(t, b.Wire())
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, 2, e.Properties().Subscriptions())

	// Ready does not propagate.
	require.NoError(t, e.Properties().Set("lhs", value.Bool(true)))
	require.NoError(t, e.Properties().Set("rhs", value.Bool(true)))
	assert.Equal(t, value.Bool(false), result(t, e))

	// Connect re-seeds from the current values.
	require.NoError(t, b.Connect())
	assert.Equal(t, StateConnected, b.State())
	assert.Equal(t, value.Bool(true), result(t, e))

	require.NoError(t, e.Properties().Set("rhs", value.Bool(false)))
	assert.Equal(t, value.Bool(false), result(t, e))

	require.NoError(t, b.Disconnect())
	assert.Equal(t, StateReady, b.State())
	require.NoError(t, e.Properties().Set("rhs", value.Bool(true)))
	assert.Equal(t, value.Bool(false), result(t, e))
	assert.True(t, IsInvalidTransition(b.Disconnect()))
}

func TestBehaviour_MissingProperty(t *testing.T) {
	g := reactive.NewGraph()
	e := gateEntity(g, "lhs", "result")
	b := newAndBehaviour(g, e)

	err := b.Validate()
	require.Error(t, err)
	assert.True(t, IsMissingProperty(err))
	assert.Contains(t, err.Error(), `"rhs"`)
	assert.Equal(t, StateCreated, b.State())

	// The behaviour is discarded without an explicit Destroy.
	assert.True(t, b.Destroyed())
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, e.Properties().Subscriptions())
	assert.True(t, IsInvalidTransition(b.Validate()))
	assert.True(t, IsInvalidTransition(b.Transition(StateConnected)))
}

func TestBehaviour_DestroyLeavesNoSubscriptions(t *testing.T) {
	for _, target := range []State{StateCreated, StateValid, StateReady, StateConnected} {
		t.Run(target.String(), func(t *testing.T) {
			g := reactive.NewGraph()
			e := gateEntity(g)
			b := newAndBehaviour(g, e)
			require.NoError(t, b.Transition(target))

			b.Destroy()
			b.Destroy()
			assert.True(t, b.Destroyed())
			assert.Equal(t, 0, e.Properties().Subscriptions())
			assert.Equal(t, 0, g.NodeCount())
			assert.True(t, IsInvalidTransition(b.Transition(StateConnected)))
		})
	}
}

func TestBehaviour_TransitionWalksIntermediateStates(t *testing.T) {
	g := reactive.NewGraph()
	e := gateEntity(g)
	b := newAndBehaviour(g, e)

	require.NoError(t, b.Transition(StateConnected))
	assert.Equal(t, StateConnected, b.State())

	require.NoError(t, b.Transition(StateReady))
	assert.Equal(t, StateReady, b.State())

	assert.True(t, IsInvalidTransition(b.Transition(StateCreated)))
	require.NoError(t, b.Transition(StateReady))
}

func TestBehaviour_TransitionStopsAtFailure(t *testing.T) {
	g := reactive.NewGraph()
	e := gateEntity(g, "lhs")
	b := newAndBehaviour(g, e)
	assert.True(t, IsMissingProperty(b.Transition(StateConnected)))
	assert.Equal(t, StateCreated, b.State())
}

func TestBehaviour_WireFailureUnwinds(t *testing.T) {
	g := reactive.NewGraph()
	e := gateEntity(g)
	c := e.Properties()
	ok := g.NewOperation("ok", func(v value.Value) (value.Value, error) { return v, nil }).
		BindInput(reactive.Endpoint{Container: c, Property: "lhs"}).
		BindOutput(reactive.Endpoint{Container: c, Property: "result"})
	bad := g.NewOperation("bad", func(v value.Value) (value.Value, error) { return v, nil }).
		BindInput(reactive.Endpoint{Container: c, Property: "rhs"}).
		BindOutput(reactive.Endpoint{Container: c, Property: "result"})
	b := New(andType, e, ok, bad)
	require.NoError(t, b.Validate())

	// Remove a required property between Validate and Wire.
	require.NoError(t, c.RemoveProperty("rhs"))
	err := b.Wire()
	require.Error(t, err)
	assert.True(t, reactive.IsUnknownProperty(err))
	assert.Equal(t, StateValid, b.State())
	assert.Equal(t, 0, c.Subscriptions())
}

func TestErrorMatchesThroughWrapping(t *testing.T) {
	err := &Error{Code: ErrCodeMissingProperty, Behaviour: andType, Message: "x"}
	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsMissingProperty(wrapped))
	assert.False(t, IsInvalidTransition(wrapped))
}
