// Package testutil provides deterministic building blocks for tests.
package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SequentialGenerator issues ids 1, 2, 3, ... formatted as UUIDv7-shaped
// values, so traces of the same scenario are byte-identical.
//
// Thread-safety: All methods are safe for concurrent use.
type SequentialGenerator struct {
	mu sync.Mutex
	n  uint64
}

// NewSequentialGenerator creates a generator whose first id is ID(1).
func NewSequentialGenerator() *SequentialGenerator {
	return &SequentialGenerator{}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ID(g.n)
}

// Reset restarts the sequence at ID(1).
func (g *SequentialGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// ID returns the nth id a SequentialGenerator issues.
func ID(n uint64) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012x", n))
}
