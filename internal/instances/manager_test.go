package instances

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

var (
	labeled   = types.NewTypeId("test", "labeled")
	sensor    = types.NewTypeId("test", "sensor")
	display   = types.NewTypeId("test", "display")
	feeds     = types.NewTypeId("test", "feeds")
	anyLink   = types.NewTypeId("test", "any_link")
	compLink  = types.NewTypeId("test", "labeled_link")
	copyBeh   = types.NewTypeId("test", "copy")
	panelFlow = types.NewTypeId("test", "panel")
)

type fixture struct {
	reg        *types.Registry
	graph      *reactive.Graph
	behaviours *behaviour.Manager
	m          *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := types.NewRegistry()
	require.NoError(t, reg.Components.Register(types.Component{
		Id:         labeled,
		Properties: []types.PropertyType{types.NewProperty("label", types.DataTypeString)},
	}))
	require.NoError(t, reg.EntityTypes.Register(types.EntityType{
		Id:         sensor,
		Components: []types.TypeId{labeled},
		Properties: []types.PropertyType{
			types.OutputProperty("reading", types.DataTypeNumber),
		},
	}))
	require.NoError(t, reg.EntityTypes.Register(types.EntityType{
		Id: display,
		Properties: []types.PropertyType{
			types.InputProperty("shown", types.DataTypeNumber).WithDefault(value.Int(-1)),
		},
	}))
	require.NoError(t, reg.RelationTypes.Register(types.RelationType{
		Id: feeds, Outbound: sensor, Inbound: display,
	}))
	require.NoError(t, reg.RelationTypes.Register(types.RelationType{
		Id: anyLink, Outbound: types.Wildcard, Inbound: types.Wildcard,
	}))
	require.NoError(t, reg.RelationTypes.Register(types.RelationType{
		Id: compLink, Outbound: labeled, Inbound: types.Wildcard,
	}))

	g := reactive.NewGraph()
	bm := behaviour.NewManager()
	return &fixture{reg: reg, graph: g, behaviours: bm, m: NewManager(reg, g, bm)}
}

// copyFactory copies the outbound reading into the inbound shown property.
func copyFactory(g *reactive.Graph) behaviour.RelationFactory {
	return behaviour.NewRelationFactory(copyBeh, feeds, func(r *reactive.RelationInstance) (*behaviour.Behaviour, error) {
		op := g.NewOperation("copy", func(v value.Value) (value.Value, error) { return v, nil }).
			BindInput(reactive.Endpoint{Container: r.Outbound().Properties(), Property: "reading"}).
			BindOutput(reactive.Endpoint{Container: r.Inbound().Properties(), Property: "shown"})
		return behaviour.New(copyBeh, r, op), nil
	})
}

func get(t *testing.T, inst reactive.Instance, name string) value.Value {
	t.Helper()
	v, err := inst.Properties().Get(name)
	require.NoError(t, err)
	return v
}

// =============================================================================
// Entities
// =============================================================================

func TestCreateEntity_ResolvesDefaultsAndOverrides(t *testing.T) {
	f := newFixture(t)

	e, err := f.m.CreateEntity(sensor, map[string]value.Value{
		"label": value.String("kitchen"),
		"extra": value.Bool(true),
	})
	require.NoError(t, err)

	assert.Equal(t, sensor, e.Type())
	assert.True(t, e.HasComponent(labeled))
	assert.Equal(t, []string{"extra", "label", "reading"}, e.Properties().Names())
	assert.Equal(t, value.String("kitchen"), get(t, e, "label"))
	assert.Equal(t, value.Int(0), get(t, e, "reading"))

	d, err := f.m.CreateEntity(display, nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(-1), get(t, d, "shown"))
}

func TestCreateEntity_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.CreateEntity(types.NewTypeId("test", "missing"), nil)
	assert.True(t, types.IsUnknownType(err))

	_, err = f.m.CreateEntity(sensor, map[string]value.Value{"reading": value.String("high")})
	assert.True(t, IsInvalidValue(err))

	// Failed creations take no references.
	assert.Equal(t, int64(0), f.reg.EntityTypes.References(sensor))
	assert.Equal(t, int64(0), f.reg.Components.References(labeled))
}

func TestCreateEntity_HoldsTypeReferences(t *testing.T) {
	f := newFixture(t)
	e, err := f.m.CreateEntity(sensor, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.reg.EntityTypes.References(sensor))
	assert.True(t, types.IsTypeInUse(f.reg.EntityTypes.Unregister(sensor)))
	assert.True(t, types.IsTypeInUse(f.reg.Components.Unregister(labeled)))

	require.NoError(t, f.m.DeleteEntity(e.ID()))
	assert.Equal(t, int64(0), f.reg.EntityTypes.References(sensor))
	assert.NoError(t, f.reg.EntityTypes.Unregister(sensor))
}

// =============================================================================
// Relations
// =============================================================================

func TestCreateRelation_EndpointRules(t *testing.T) {
	f := newFixture(t)
	s, err := f.m.CreateEntity(sensor, nil)
	require.NoError(t, err)
	d, err := f.m.CreateEntity(display, nil)
	require.NoError(t, err)

	_, err = f.m.CreateRelation(s.ID(), feeds, d.ID(), nil)
	assert.NoError(t, err)

	_, err = f.m.CreateRelation(d.ID(), feeds, s.ID(), nil)
	assert.True(t, IsInvalidEndpoint(err))

	// Wildcard accepts anything.
	_, err = f.m.CreateRelation(d.ID(), anyLink, d.ID(), nil)
	assert.NoError(t, err)

	// A component constraint accepts any entity carrying the component.
	_, err = f.m.CreateRelation(s.ID(), compLink, d.ID(), nil)
	assert.NoError(t, err)
	_, err = f.m.CreateRelation(d.ID(), compLink, s.ID(), nil)
	assert.True(t, IsInvalidEndpoint(err))

	_, err = f.m.CreateRelation(uuid.New(), feeds, d.ID(), nil)
	assert.True(t, IsUnknownInstance(err))

	ents, rels := f.m.Count()
	assert.Equal(t, 2, ents)
	assert.Equal(t, 3, rels)
}

func TestCreateRelation_AttachesBehaviours(t *testing.T) {
	f := newFixture(t)
	f.behaviours.RegisterRelationFactory("test", copyFactory(f.graph))

	s, err := f.m.CreateEntity(sensor, map[string]value.Value{"reading": value.Int(7)})
	require.NoError(t, err)
	d, err := f.m.CreateEntity(display, nil)
	require.NoError(t, err)

	r, err := f.m.CreateRelation(s.ID(), feeds, d.ID(), nil)
	require.NoError(t, err)
	require.Len(t, f.behaviours.Behaviours(r.ID()), 1)

	// Connecting seeds the current reading.
	assert.Equal(t, value.Int(7), get(t, d, "shown"))

	require.NoError(t, s.Properties().Set("reading", value.Int(42)))
	assert.Equal(t, value.Int(42), get(t, d, "shown"))
}

func TestDeleteEntity_CascadesToRelations(t *testing.T) {
	f := newFixture(t)
	f.behaviours.RegisterRelationFactory("test", copyFactory(f.graph))

	var events []Event
	f.m.OnEvent(func(ev Event) { events = append(events, ev) })

	s, err := f.m.CreateEntity(sensor, nil)
	require.NoError(t, err)
	d, err := f.m.CreateEntity(display, nil)
	require.NoError(t, err)
	r, err := f.m.CreateRelation(s.ID(), feeds, d.ID(), nil)
	require.NoError(t, err)

	require.NoError(t, f.m.DeleteEntity(s.ID()))

	_, err = f.m.Relation(r.ID())
	assert.True(t, IsUnknownInstance(err))
	assert.Equal(t, 0, f.behaviours.Count())
	assert.Equal(t, 0, f.graph.NodeCount())
	assert.Equal(t, 0, d.Properties().Subscriptions())
	assert.Equal(t, int64(0), f.reg.RelationTypes.References(feeds))

	require.Len(t, events, 5)
	assert.Equal(t, EventDeleted, events[3].Kind)
	assert.True(t, events[3].Relation)
	assert.Equal(t, s.ID(), events[4].ID)

	assert.True(t, IsUnknownInstance(f.m.DeleteEntity(s.ID())))
}

func TestAttachOwner_ReachesExistingInstances(t *testing.T) {
	f := newFixture(t)
	s, err := f.m.CreateEntity(sensor, map[string]value.Value{"reading": value.Int(3)})
	require.NoError(t, err)
	d, err := f.m.CreateEntity(display, nil)
	require.NoError(t, err)
	_, err = f.m.CreateRelation(s.ID(), feeds, d.ID(), nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(-1), get(t, d, "shown"))

	f.behaviours.RegisterRelationFactory("late", copyFactory(f.graph))
	assert.Equal(t, 1, f.m.AttachOwner("late"))
	assert.Equal(t, value.Int(3), get(t, d, "shown"))
	assert.Equal(t, 0, f.m.AttachOwner("late"))
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	s, _ := f.m.CreateEntity(sensor, nil)
	d, _ := f.m.CreateEntity(display, nil)
	_, err := f.m.CreateRelation(s.ID(), feeds, d.ID(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, f.m.Clear())
	ents, rels := f.m.Count()
	assert.Zero(t, ents)
	assert.Zero(t, rels)
	assert.Equal(t, int64(0), f.reg.EntityTypes.References(display))
}

// =============================================================================
// Flows
// =============================================================================

func registerPanel(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.reg.FlowTypes.Register(types.FlowType{
		Id:      panelFlow,
		Wrapper: display,
		Entities: []types.EntityTemplate{
			{Key: "gauge", Type: sensor, Properties: map[string]value.Value{"reading": value.Int(5)}},
		},
		Relations: []types.RelationTemplate{
			{Outbound: "gauge", Type: feeds, Inbound: types.WrapperKey},
		},
	}))
}

func TestInstantiateFlow(t *testing.T) {
	f := newFixture(t)
	f.behaviours.RegisterRelationFactory("test", copyFactory(f.graph))
	registerPanel(t, f)

	fi, err := f.m.InstantiateFlow(panelFlow, nil)
	require.NoError(t, err)
	assert.Equal(t, panelFlow, fi.Type)
	require.Contains(t, fi.Entities, "gauge")
	require.Len(t, fi.Relations, 1)
	assert.Equal(t, value.Int(5), get(t, fi.Wrapper, "shown"))
}

func TestInstantiateFlow_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.FlowTypes.Register(types.FlowType{
		Id:      panelFlow,
		Wrapper: display,
		Entities: []types.EntityTemplate{
			{Key: "gauge", Type: sensor},
		},
		Relations: []types.RelationTemplate{
			// Reversed endpoints violate the relation type.
			{Outbound: types.WrapperKey, Type: feeds, Inbound: "gauge"},
		},
	}))

	_, err := f.m.InstantiateFlow(panelFlow, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidEndpoint(err))

	ents, rels := f.m.Count()
	assert.Zero(t, ents)
	assert.Zero(t, rels)
	assert.Equal(t, int64(0), f.reg.EntityTypes.References(display))
}

func flowEvents(m *Manager) *[]Event {
	var got []Event
	m.OnEvent(func(ev Event) {
		if ev.Flow {
			got = append(got, ev)
		}
	})
	return &got
}

func TestInstantiateFlow_EmitsCreatedAndHoldsFlowType(t *testing.T) {
	f := newFixture(t)
	registerPanel(t, f)
	events := flowEvents(f.m)

	fi, err := f.m.InstantiateFlow(panelFlow, nil)
	require.NoError(t, err)

	assert.Equal(t, []Event{{Kind: EventCreated, ID: fi.ID(), Type: panelFlow, Flow: true}}, *events)
	assert.Equal(t, int64(1), f.reg.FlowTypes.References(panelFlow))
	assert.True(t, types.IsTypeInUse(f.reg.FlowTypes.Unregister(panelFlow)))

	got, err := f.m.Flow(fi.ID())
	require.NoError(t, err)
	assert.Same(t, fi, got)
	assert.Equal(t, 1, f.m.FlowCount())
}

func TestInstantiateFlow_RollbackEmitsNoFlowEvent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.FlowTypes.Register(types.FlowType{
		Id:       panelFlow,
		Wrapper:  display,
		Entities: []types.EntityTemplate{{Key: "gauge", Type: types.NewTypeId("test", "missing")}},
	}))
	events := flowEvents(f.m)

	_, err := f.m.InstantiateFlow(panelFlow, nil)
	require.Error(t, err)
	assert.Empty(t, *events)
	assert.Equal(t, int64(0), f.reg.FlowTypes.References(panelFlow))
	assert.Zero(t, f.m.FlowCount())
}

func TestDeleteFlow(t *testing.T) {
	f := newFixture(t)
	registerPanel(t, f)
	fi, err := f.m.InstantiateFlow(panelFlow, nil)
	require.NoError(t, err)

	var kinds []string
	f.m.OnEvent(func(ev Event) {
		switch {
		case ev.Flow:
			kinds = append(kinds, "flow")
		case ev.Relation:
			kinds = append(kinds, "relation")
		default:
			kinds = append(kinds, "entity")
		}
	})

	require.NoError(t, f.m.DeleteFlow(fi.ID()))
	assert.Equal(t, []string{"relation", "entity", "entity", "flow"}, kinds)

	ents, rels := f.m.Count()
	assert.Zero(t, ents)
	assert.Zero(t, rels)
	assert.Equal(t, int64(0), f.reg.FlowTypes.References(panelFlow))
	require.NoError(t, f.reg.FlowTypes.Unregister(panelFlow))

	err = f.m.DeleteFlow(fi.ID())
	assert.True(t, IsUnknownInstance(err))
}

func TestDeleteEntity_WrapperEndsFlow(t *testing.T) {
	f := newFixture(t)
	registerPanel(t, f)
	fi, err := f.m.InstantiateFlow(panelFlow, nil)
	require.NoError(t, err)
	events := flowEvents(f.m)

	require.NoError(t, f.m.DeleteEntity(fi.ID()))
	assert.Equal(t, []Event{{Kind: EventDeleted, ID: fi.ID(), Type: panelFlow, Flow: true}}, *events)

	_, err = f.m.Flow(fi.ID())
	assert.True(t, IsUnknownInstance(err))
	ents, _ := f.m.Count()
	assert.Equal(t, 1, ents, "members outlive the wrapper")
}

func TestClear_EndsFlows(t *testing.T) {
	f := newFixture(t)
	registerPanel(t, f)
	_, err := f.m.InstantiateFlow(panelFlow, nil)
	require.NoError(t, err)
	events := flowEvents(f.m)

	f.m.Clear()
	require.Len(t, *events, 1)
	assert.Equal(t, EventDeleted, (*events)[0].Kind)
	assert.Zero(t, f.m.FlowCount())
}
