// Package base is the foundation plugin: shared components, a generic
// value entity and the connector relation. It also holds the helpers the
// other built-in plugins use to turn entities into gates.
package base

import (
	"fmt"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// PluginName is the plugin and namespace name.
const PluginName = "base"

// Gate and operation property names.
const (
	PropertyLHS    = "lhs"
	PropertyRHS    = "rhs"
	PropertyResult = "result"
	PropertyValue  = "value"
	PropertyLabel  = "label"
	PropertyName   = "name"
)

// Connector relation property names.
const (
	PropertyOutboundName = "outbound_property_name"
	PropertyInboundName  = "inbound_property_name"
)

var (
	LabeledComponent   = types.NewTypeId(PluginName, "labeled")
	NamedComponent     = types.NewTypeId(PluginName, "named")
	ValueType          = types.NewTypeId(PluginName, "value")
	ConnectorType      = types.NewTypeId(PluginName, "connector")
	ConnectorBehaviour = types.NewTypeId(PluginName, "connect")
)

// Plugin returns the base plugin.
func Plugin() plugin.Plugin {
	return &plugin.Definition{
		Meta: plugin.Manifest{
			Name:        PluginName,
			Version:     "1.0.0",
			Description: "Shared components, value entity and connector relation",
		},
		ComponentList: []types.Component{
			{
				Id:          LabeledComponent,
				Description: "Addressable by a hierarchical label",
				Properties:  []types.PropertyType{types.NewProperty(PropertyLabel, types.DataTypeString)},
			},
			{
				Id:          NamedComponent,
				Description: "Carries a human readable name",
				Properties:  []types.PropertyType{types.NewProperty(PropertyName, types.DataTypeString)},
			},
		},
		EntityList: []types.EntityType{{
			Id:          ValueType,
			Description: "Holds a single value of any type",
			Components:  []types.TypeId{LabeledComponent},
			Properties: []types.PropertyType{
				{Name: PropertyValue, DataType: types.DataTypeAny, SocketType: types.SocketOutput},
			},
		}},
		RelationList: []types.RelationType{{
			Id:          ConnectorType,
			Description: "Propagates an outbound property into an inbound property",
			Outbound:    types.Wildcard,
			Inbound:     types.Wildcard,
			Properties: []types.PropertyType{
				types.NewProperty(PropertyOutboundName, types.DataTypeString),
				types.NewProperty(PropertyInboundName, types.DataTypeString),
			},
		}},
		RelationBuild: func(g *reactive.Graph) []behaviour.RelationFactory {
			return []behaviour.RelationFactory{
				behaviour.NewRelationFactory(ConnectorBehaviour, ConnectorType, func(r *reactive.RelationInstance) (*behaviour.Behaviour, error) {
					return Connector(g, r)
				}),
			}
		},
	}
}

// Connector builds the behaviour that copies the relation's outbound
// property into its inbound property. The property names are read from the
// relation once, when the behaviour is built.
func Connector(g *reactive.Graph, r *reactive.RelationInstance) (*behaviour.Behaviour, error) {
	from, err := stringProperty(r, PropertyOutboundName)
	if err != nil {
		return nil, err
	}
	to, err := stringProperty(r, PropertyInboundName)
	if err != nil {
		return nil, err
	}
	op := g.NewOperation("connector", identity).
		BindInput(reactive.Endpoint{Container: r.Outbound().Properties(), Property: from}).
		BindOutput(reactive.Endpoint{Container: r.Inbound().Properties(), Property: to})
	return behaviour.New(ConnectorBehaviour, r, op), nil
}

func identity(v value.Value) (value.Value, error) { return v, nil }

func stringProperty(inst reactive.Instance, name string) (string, error) {
	v, err := inst.Properties().Get(name)
	if err != nil {
		return "", err
	}
	s, ok := value.AsString(v)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: property %q must be a non-empty string", inst.Type(), name)
	}
	return s, nil
}

// GateBehaviour computes fn(lhs, rhs) into result on the same instance.
func GateBehaviour(g *reactive.Graph, typ types.TypeId, inst reactive.Instance, fn reactive.BinaryFunc) *behaviour.Behaviour {
	c := inst.Properties()
	gate := g.NewGate(typ.String(), fn).
		BindLhs(reactive.Endpoint{Container: c, Property: PropertyLHS}).
		BindRhs(reactive.Endpoint{Container: c, Property: PropertyRHS}).
		BindOutput(reactive.Endpoint{Container: c, Property: PropertyResult})
	return behaviour.New(typ, inst, gate)
}

// OperationBehaviour computes fn(lhs) into result on the same instance.
func OperationBehaviour(g *reactive.Graph, typ types.TypeId, inst reactive.Instance, fn reactive.UnaryFunc) *behaviour.Behaviour {
	c := inst.Properties()
	op := g.NewOperation(typ.String(), fn).
		BindInput(reactive.Endpoint{Container: c, Property: PropertyLHS}).
		BindOutput(reactive.Endpoint{Container: c, Property: PropertyResult})
	return behaviour.New(typ, inst, op)
}

// GateFactory attaches a gate behaviour, named after the entity type, to
// every entity of that type.
func GateFactory(g *reactive.Graph, entityType types.TypeId, fn reactive.BinaryFunc) behaviour.EntityFactory {
	return behaviour.NewEntityFactory(entityType, entityType, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
		return GateBehaviour(g, entityType, e, fn), nil
	})
}

// OperationFactory is GateFactory for single-operand operations.
func OperationFactory(g *reactive.Graph, entityType types.TypeId, fn reactive.UnaryFunc) behaviour.EntityFactory {
	return behaviour.NewEntityFactory(entityType, entityType, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
		return OperationBehaviour(g, entityType, e, fn), nil
	})
}

// GateComponent declares lhs, rhs and result of one data type.
func GateComponent(id types.TypeId, dt types.DataType) types.Component {
	return types.Component{
		Id: id,
		Properties: []types.PropertyType{
			types.InputProperty(PropertyLHS, dt),
			types.InputProperty(PropertyRHS, dt),
			types.OutputProperty(PropertyResult, dt),
		},
	}
}

// OperationComponent declares lhs and result of one data type.
func OperationComponent(id types.TypeId, dt types.DataType) types.Component {
	return types.Component{
		Id: id,
		Properties: []types.PropertyType{
			types.InputProperty(PropertyLHS, dt),
			types.OutputProperty(PropertyResult, dt),
		},
	}
}
