// Package numeric provides arithmetic gates and operations over numbers.
package numeric

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// PluginName is the plugin and namespace name.
const PluginName = "numeric"

var (
	GateComponent      = types.NewTypeId(PluginName, "gate")
	OperationComponent = types.NewTypeId(PluginName, "operation")
)

// ErrDivisionByZero is returned by div with a zero divisor. The gate keeps
// its previous result.
var ErrDivisionByZero = errors.New("division by zero")

type binaryOp struct {
	name string
	fn   func(a, b float64) (float64, error)
}

type unaryOp struct {
	name string
	fn   func(a float64) float64
}

var binaryOps = []binaryOp{
	{"add", func(a, b float64) (float64, error) { return a + b, nil }},
	{"sub", func(a, b float64) (float64, error) { return a - b, nil }},
	{"mul", func(a, b float64) (float64, error) { return a * b, nil }},
	{"div", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}},
	{"min", func(a, b float64) (float64, error) { return math.Min(a, b), nil }},
	{"max", func(a, b float64) (float64, error) { return math.Max(a, b), nil }},
	{"pow", func(a, b float64) (float64, error) { return math.Pow(a, b), nil }},
}

var unaryOps = []unaryOp{
	{"abs", math.Abs},
	{"negate", func(a float64) float64 { return -a }},
}

// Type returns the entity type of a named gate or operation.
func Type(name string) types.TypeId { return types.NewTypeId(PluginName, name) }

func operand(v value.Value) (float64, error) {
	if value.IsNull(v) {
		return 0, nil
	}
	f, ok := value.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("not a number: %s", value.Kind(v))
	}
	return f, nil
}

func finite(f float64) (value.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("result is not finite: %v", f)
	}
	return value.Number(f), nil
}

func gate(fn func(a, b float64) (float64, error)) reactive.BinaryFunc {
	return func(lhs, rhs value.Value) (value.Value, error) {
		a, err := operand(lhs)
		if err != nil {
			return nil, err
		}
		b, err := operand(rhs)
		if err != nil {
			return nil, err
		}
		out, err := fn(a, b)
		if err != nil {
			return nil, err
		}
		return finite(out)
	}
}

func operation(fn func(a float64) float64) reactive.UnaryFunc {
	return func(lhs value.Value) (value.Value, error) {
		a, err := operand(lhs)
		if err != nil {
			return nil, err
		}
		return finite(fn(a))
	}
}

// Plugin returns the numeric plugin.
func Plugin() plugin.Plugin {
	var entities []types.EntityType
	for _, op := range binaryOps {
		entities = append(entities, types.EntityType{
			Id:         Type(op.name),
			Components: []types.TypeId{GateComponent, base.LabeledComponent},
		})
	}
	for _, op := range unaryOps {
		entities = append(entities, types.EntityType{
			Id:         Type(op.name),
			Components: []types.TypeId{OperationComponent, base.LabeledComponent},
		})
	}

	return &plugin.Definition{
		Meta: plugin.Manifest{
			Name:         PluginName,
			Version:      "1.0.0",
			Description:  "Arithmetic gates and operations",
			Dependencies: []string{base.PluginName},
		},
		ComponentList: []types.Component{
			base.GateComponent(GateComponent, types.DataTypeNumber),
			base.OperationComponent(OperationComponent, types.DataTypeNumber),
		},
		EntityList: entities,
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			var fs []behaviour.EntityFactory
			for _, op := range binaryOps {
				fs = append(fs, base.GateFactory(g, Type(op.name), gate(op.fn)))
			}
			for _, op := range unaryOps {
				fs = append(fs, base.OperationFactory(g, Type(op.name), operation(op.fn)))
			}
			return fs
		},
	}
}
