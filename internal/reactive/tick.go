package reactive

import (
	"github.com/roach88/rgf/internal/value"
)

// Tick is one logical propagation: the write that started it plus every
// write it caused. A tick belongs to the goroutine that opened it.
//
// The frontier is a FIFO of dirty nodes, deduplicated per pass. A node
// fed twice before the next pass is evaluated once with both operands.
type Tick struct {
	id     int64
	graph  *Graph
	passes int
	writes int

	frontier []NodeID
	queued   map[NodeID]bool
	forced   map[NodeID]bool
	deferred []deferredWrite
}

type deferredWrite struct {
	c    *PropertyContainer
	name string
	v    value.Value
}

func newTick(g *Graph, id int64) *Tick {
	return &Tick{
		id:     id,
		graph:  g,
		queued: make(map[NodeID]bool),
		forced: make(map[NodeID]bool),
	}
}

// ID returns the tick sequence number.
func (t *Tick) ID() int64 { return t.id }

// Passes returns the number of passes run so far.
func (t *Tick) Passes() int { return t.passes }

// Set queues a write for the next pass of this tick. Observers use it for
// follow-up writes: the write is applied by the pass loop rather than on
// the observer's stack, so it counts against the same pass cap and an
// observer that echoes forever ends in TickNotConverged instead of
// unbounded recursion.
func (t *Tick) Set(c *PropertyContainer, name string, v value.Value) error {
	if !c.Has(name) {
		return &PropertyError{Code: ErrCodeUnknownProperty, Owner: c.owner, Property: name}
	}
	t.deferred = append(t.deferred, deferredWrite{c: c, name: name, v: v})
	return nil
}

func (t *Tick) idle() bool {
	return len(t.frontier) == 0 && len(t.deferred) == 0
}

func (t *Tick) takeDeferred() []deferredWrite {
	d := t.deferred
	t.deferred = nil
	return d
}

func (t *Tick) enqueue(id NodeID, force bool) {
	if force {
		t.forced[id] = true
	}
	if t.queued[id] {
		return
	}
	t.queued[id] = true
	t.frontier = append(t.frontier, id)
}

// next hands out the current frontier and starts an empty one.
func (t *Tick) next() (batch []NodeID, forced map[NodeID]bool) {
	batch, forced = t.frontier, t.forced
	t.frontier = nil
	t.queued = make(map[NodeID]bool, len(batch))
	t.forced = make(map[NodeID]bool)
	return batch, forced
}

// pending describes the nodes and queued writes left when the cap hit.
func (t *Tick) pending() []string {
	names := make([]string, 0, len(t.frontier)+len(t.deferred))
	for _, id := range t.frontier {
		if n := t.graph.node(id); n != nil {
			names = append(names, n.name)
		}
	}
	for _, d := range t.deferred {
		names = append(names, "write "+Endpoint{Container: d.c, Property: d.name}.String())
	}
	return names
}
