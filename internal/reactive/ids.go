package reactive

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator issues instance ids.
type IDGenerator interface {
	Generate() uuid.UUID
}

// UUIDv7Generator issues time-ordered UUIDv7 ids, so instance ids sort by
// creation time in the journal.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. It panics if the random source fails.
func (UUIDv7Generator) Generate() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined ids in order, for tests that compare
// traces byte for byte.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedGenerator creates a generator that yields ids in order.
func NewFixedGenerator(ids ...uuid.UUID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. It panics once the ids are exhausted so a
// misconfigured test fails loudly.
func (g *FixedGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
