// Package expression provides a gate whose function is a CEL expression
// over its lhs and rhs inputs.
//
// The expression is read and compiled when the behaviour is built; an
// entity with an invalid expression gets no behaviour. Changing the
// expression property afterwards has no effect until the entity is
// recreated.
package expression

import (
	"fmt"

	"github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// PluginName is the plugin and namespace name.
const PluginName = "expression"

// PropertyExpression holds the CEL source.
const PropertyExpression = "expression"

var (
	GateType      = types.NewTypeId(PluginName, "gate")
	GateBehaviour = types.NewTypeId(PluginName, "evaluate")
)

// NewEnv returns the CEL environment expressions compile in: lhs and rhs
// are dynamically typed.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(base.PropertyLHS, cel.DynType),
		cel.Variable(base.PropertyRHS, cel.DynType),
	)
}

// Compile checks src and returns a gate function evaluating it.
func Compile(env *cel.Env, src string) (reactive.BinaryFunc, error) {
	ast, iss := env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", src, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", src, err)
	}
	return func(lhs, rhs value.Value) (value.Value, error) {
		out, _, err := prg.Eval(map[string]any{
			base.PropertyLHS: value.ToAny(lhs),
			base.PropertyRHS: value.ToAny(rhs),
		})
		if err != nil {
			return nil, err
		}
		return fromCEL(out)
	}, nil
}

// fromCEL converts a CEL result into a property value.
func fromCEL(v ref.Val) (value.Value, error) {
	switch v := v.(type) {
	case celtypes.Null:
		return value.Null{}, nil
	case celtypes.Bool:
		return value.Bool(v), nil
	case celtypes.Int:
		return value.Int(v), nil
	case celtypes.Uint:
		return value.Number(float64(v)), nil
	case celtypes.Double:
		return value.Number(float64(v)), nil
	case celtypes.String:
		return value.String(v), nil
	case traits.Mapper:
		obj := value.Object{}
		it := v.Iterator()
		for it.HasNext() == celtypes.True {
			k := it.Next()
			key, ok := k.(celtypes.String)
			if !ok {
				return nil, fmt.Errorf("map key must be a string, got %v", k.Type())
			}
			elem, err := fromCEL(v.Get(k))
			if err != nil {
				return nil, err
			}
			obj[string(key)] = elem
		}
		return obj, nil
	case traits.Lister:
		size, _ := v.Size().(celtypes.Int)
		arr := make(value.Array, 0, int(size))
		for i := celtypes.Int(0); i < size; i++ {
			elem, err := fromCEL(v.Get(i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	}
	return value.FromAny(v.Value())
}

// Plugin returns the expression plugin.
func Plugin() plugin.Plugin {
	return &plugin.Definition{
		Meta: plugin.Manifest{
			Name:         PluginName,
			Version:      "1.0.0",
			Description:  "CEL expression gates",
			Dependencies: []string{base.PluginName},
		},
		EntityList: []types.EntityType{{
			Id:          GateType,
			Description: "Computes result from lhs and rhs with a CEL expression",
			Components:  []types.TypeId{base.LabeledComponent},
			Properties: []types.PropertyType{
				types.NewProperty(PropertyExpression, types.DataTypeString),
				types.InputProperty(base.PropertyLHS, types.DataTypeAny),
				types.InputProperty(base.PropertyRHS, types.DataTypeAny),
				types.OutputProperty(base.PropertyResult, types.DataTypeAny),
			},
		}},
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			env, err := NewEnv()
			if err != nil {
				panic(fmt.Sprintf("cel environment: %v", err))
			}
			return []behaviour.EntityFactory{
				behaviour.NewEntityFactory(GateBehaviour, GateType, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
					v, err := e.Properties().Get(PropertyExpression)
					if err != nil {
						return nil, err
					}
					src, _ := value.AsString(v)
					fn, err := Compile(env, src)
					if err != nil {
						return nil, err
					}
					return base.GateBehaviour(g, GateBehaviour, e, fn), nil
				}),
			}
		},
	}
}
