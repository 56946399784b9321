package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"base", "expression", "logical", "numeric"}, Names())
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Manifest().Name)
	}

	_, err := Lookup("missing")
	assert.ErrorContains(t, err, "unknown built-in plugin")
}

func TestSelect(t *testing.T) {
	all, err := Select(nil, func(name string) bool { return name != "expression" })
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := Select([]string{"numeric", "base"}, nil)
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "numeric", some[0].Manifest().Name)

	_, err = Select([]string{"nope"}, nil)
	assert.Error(t, err)
}
