package testutil

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/plugins/numeric"
	"github.com/roach88/rgf/internal/value"
)

func TestSequentialGenerator(t *testing.T) {
	g := NewSequentialGenerator()

	assert.Equal(t, "00000000-0000-7000-8000-000000000001", g.Generate().String())
	assert.Equal(t, ID(2), g.Generate())
	assert.Equal(t, uuid.Version(7), ID(3).Version())

	g.Reset()
	assert.Equal(t, ID(1), g.Generate())
}

func TestSequentialGenerator_ThreadSafe(t *testing.T) {
	g := NewSequentialGenerator()
	const goroutines, calls = 20, 50

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]bool{}
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				id := g.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.True(t, seen[ID(goroutines*calls)])
}

func TestNewRuntime(t *testing.T) {
	rt := NewRuntime(t, base.Plugin(), numeric.Plugin())

	e, err := rt.Instances().CreateEntity(numeric.Type("add"), map[string]value.Value{
		base.PropertyLHS: value.Int(2),
		base.PropertyRHS: value.Int(3),
	})
	require.NoError(t, err)
	assert.Equal(t, ID(1), e.ID())

	got, err := e.Properties().Get(base.PropertyResult)
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), got)
}
