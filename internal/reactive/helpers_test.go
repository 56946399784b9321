package reactive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

func newEntity(t *testing.T, g *Graph, props map[string]value.Value) *EntityInstance {
	t.Helper()
	return g.NewEntity(types.NewTypeId("test", "entity"), nil, props)
}

func get(t *testing.T, c *PropertyContainer, name string) value.Value {
	t.Helper()
	v, err := c.Get(name)
	require.NoError(t, err)
	return v
}

func and(lhs, rhs value.Value) (value.Value, error) {
	return value.Bool(value.Truthy(lhs) && value.Truthy(rhs)), nil
}

func saturatingIncrement(limit int64) UnaryFunc {
	return func(v value.Value) (value.Value, error) {
		n, _ := value.AsInt(v)
		return value.Int(min(n+1, limit)), nil
	}
}

func negate(v value.Value) (value.Value, error) {
	n, _ := value.AsInt(v)
	return value.Int(-n), nil
}
