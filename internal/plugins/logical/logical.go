// Package logical provides boolean gates: and, or, xor, nand, nor, not.
package logical

import (
	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// PluginName is the plugin and namespace name.
const PluginName = "logical"

var (
	GateComponent      = types.NewTypeId(PluginName, "gate")
	OperationComponent = types.NewTypeId(PluginName, "operation")
	NotType            = types.NewTypeId(PluginName, "not")
)

var gates = map[string]func(a, b bool) bool{
	"and":  func(a, b bool) bool { return a && b },
	"or":   func(a, b bool) bool { return a || b },
	"xor":  func(a, b bool) bool { return a != b },
	"nand": func(a, b bool) bool { return !(a && b) },
	"nor":  func(a, b bool) bool { return !(a || b) },
}

var gateOrder = []string{"and", "or", "xor", "nand", "nor"}

// GateType returns the entity type of a named gate.
func GateType(name string) types.TypeId { return types.NewTypeId(PluginName, name) }

func binary(f func(a, b bool) bool) reactive.BinaryFunc {
	return func(lhs, rhs value.Value) (value.Value, error) {
		return value.Bool(f(value.Truthy(lhs), value.Truthy(rhs))), nil
	}
}

func not(v value.Value) (value.Value, error) { return value.Bool(!value.Truthy(v)), nil }

// Plugin returns the logical plugin.
func Plugin() plugin.Plugin {
	entities := make([]types.EntityType, 0, len(gateOrder)+1)
	for _, name := range gateOrder {
		entities = append(entities, types.EntityType{
			Id:         GateType(name),
			Components: []types.TypeId{GateComponent, base.LabeledComponent},
		})
	}
	entities = append(entities, types.EntityType{
		Id:         NotType,
		Components: []types.TypeId{OperationComponent, base.LabeledComponent},
	})

	return &plugin.Definition{
		Meta: plugin.Manifest{
			Name:         PluginName,
			Version:      "1.0.0",
			Description:  "Boolean gates",
			Dependencies: []string{base.PluginName},
		},
		ComponentList: []types.Component{
			base.GateComponent(GateComponent, types.DataTypeBool),
			base.OperationComponent(OperationComponent, types.DataTypeBool),
		},
		EntityList: entities,
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			fs := make([]behaviour.EntityFactory, 0, len(gateOrder)+1)
			for _, name := range gateOrder {
				fs = append(fs, base.GateFactory(g, GateType(name), binary(gates[name])))
			}
			return append(fs, base.OperationFactory(g, NotType, not))
		},
	}
}
