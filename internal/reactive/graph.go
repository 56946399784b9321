package reactive

import (
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/observability"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// DefaultMaxPasses bounds the passes of a single tick.
const DefaultMaxPasses = 64

// WriteHook receives every applied write, after the value is stored and
// before subscribers run. Hooks must not block.
type WriteHook func(ch Change)

// Graph is the arena that owns nodes and instances and drives ticks.
type Graph struct {
	maxPasses int
	clock     *Clock
	ids       IDGenerator

	nextNode   atomic.Uint64
	nextHandle atomic.Uint64

	nodes     sync.Map // NodeID -> *node
	instances sync.Map // uuid.UUID -> Instance

	hooksMu sync.RWMutex
	hooks   []WriteHook

	running  atomic.Int32 // container Set and Tick calls in progress
	overflow atomic.Pointer[TickNotConvergedError]
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithMaxPasses sets the pass cap of a tick. Values below 1 are ignored.
func WithMaxPasses(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxPasses = n
		}
	}
}

// WithClock sets the clock used to stamp ticks and writes.
func WithClock(c *Clock) GraphOption {
	return func(g *Graph) {
		g.clock = c
	}
}

// WithIDGenerator sets the instance id generator.
func WithIDGenerator(gen IDGenerator) GraphOption {
	return func(g *Graph) {
		g.ids = gen
	}
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		maxPasses: DefaultMaxPasses,
		clock:     NewClock(),
		ids:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxPasses returns the pass cap.
func (g *Graph) MaxPasses() int { return g.maxPasses }

// Clock returns the graph clock.
func (g *Graph) Clock() *Clock { return g.clock }

// OnWrite registers a hook for every applied write.
func (g *Graph) OnWrite(h WriteHook) {
	g.hooksMu.Lock()
	defer g.hooksMu.Unlock()
	g.hooks = append(g.hooks, h)
}

func (g *Graph) recordWrite(ch Change) {
	g.hooksMu.RLock()
	hooks := g.hooks
	g.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ch)
	}
}

// =============================================================================
// Nodes
// =============================================================================

func (g *Graph) newNode(name string) *node {
	n := &node{
		id:      NodeID(g.nextNode.Add(1)),
		name:    name,
		graph:   g,
		lhs:     value.Null{},
		rhs:     value.Null{},
		result:  value.Null{},
		enabled: true,
	}
	g.nodes.Store(n.id, n)
	return n
}

// NewOperation adds a single-operand node. It starts enabled and unbound.
func (g *Graph) NewOperation(name string, fn UnaryFunc) *Operation {
	n := g.newNode(name)
	n.unary = fn
	return &Operation{n: n}
}

// NewGate adds a two-operand node. It starts enabled and unbound.
func (g *Graph) NewGate(name string, fn BinaryFunc) *Gate {
	n := g.newNode(name)
	n.binary = fn
	return &Gate{Operation: &Operation{n: n}}
}

func (g *Graph) node(id NodeID) *node {
	v, ok := g.nodes.Load(id)
	if !ok {
		return nil
	}
	return v.(*node)
}

// NodeCount returns the number of nodes in the arena.
func (g *Graph) NodeCount() int {
	n := 0
	g.nodes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// =============================================================================
// Ticks
// =============================================================================

func (g *Graph) begin() *Tick {
	return newTick(g, g.clock.Next())
}

// abandon closes a tick whose first write failed.
func (g *Graph) abandon(t *Tick) {
	t.frontier = nil
	t.deferred = nil
}

// feed delivers an operand from a property write. Disabled and removed
// nodes ignore it.
func (g *Graph) feed(t *Tick, id NodeID, port Port, v value.Value, force bool) {
	n := g.node(id)
	if n == nil {
		return
	}
	n.mu.Lock()
	if !n.enabled || n.removed {
		n.mu.Unlock()
		return
	}
	n.setOperand(port, v)
	n.mu.Unlock()
	t.enqueue(id, force)
}

// apply delivers an operand from a direct Lhs/Rhs call.
func (g *Graph) apply(n *node, port Port, v value.Value) error {
	n.mu.Lock()
	n.setOperand(port, v)
	n.mu.Unlock()

	t := g.begin()
	t.enqueue(n.id, false)
	return g.drain(t)
}

// drain runs passes until nothing is dirty or the cap is reached. A pass
// evaluates the current frontier, then applies the writes observers queued.
func (g *Graph) drain(t *Tick) error {
	for !t.idle() {
		if t.passes >= g.maxPasses {
			err := &TickNotConvergedError{
				Tick:    t.id,
				Passes:  t.passes,
				Limit:   g.maxPasses,
				Pending: t.pending(),
			}
			t.frontier = nil
			t.deferred = nil
			slog.Warn("tick did not converge",
				"tick", t.id,
				"passes", t.passes,
				"pending", err.Pending)
			observability.RecordTick(t.passes, t.writes, false)
			return err
		}
		t.passes++

		batch, forced := t.next()
		writes := t.takeDeferred()
		for _, id := range batch {
			n := g.node(id)
			if n == nil {
				continue
			}
			result, changed := n.evaluate()
			if !changed && !forced[id] {
				continue
			}
			for _, out := range n.outputSnapshot() {
				if err := out.Container.write(t, out.Property, result); err != nil {
					slog.Warn("node output write failed",
						"node", n.name,
						"output", out.String(),
						"error", err)
				}
			}
		}
		for _, w := range writes {
			if err := w.c.write(t, w.name, w.v); err != nil {
				slog.Warn("queued write failed", "property", w.name, "error", err)
			}
		}
	}
	if t.passes > 0 || t.writes > 0 {
		observability.RecordTick(t.passes, t.writes, true)
	}
	return nil
}

// =============================================================================
// Instances
// =============================================================================

// NewEntity creates an entity with the given initial properties and adds
// it to the arena.
func (g *Graph) NewEntity(typeID types.TypeId, components []types.TypeId, props map[string]value.Value) *EntityInstance {
	id := g.ids.Generate()
	e := &EntityInstance{instance: g.newInstance(id, typeID, components, props)}
	g.instances.Store(id, Instance(e))
	return e
}

// NewRelation creates a relation between two entities and adds it to the
// arena. The relation references its endpoints; it does not own them.
func (g *Graph) NewRelation(outbound *EntityInstance, typeID types.TypeId, inbound *EntityInstance, components []types.TypeId, props map[string]value.Value) *RelationInstance {
	id := g.ids.Generate()
	r := &RelationInstance{
		instance: g.newInstance(id, typeID, components, props),
		outbound: outbound,
		inbound:  inbound,
	}
	g.instances.Store(id, Instance(r))
	return r
}

func (g *Graph) newInstance(id uuid.UUID, typeID types.TypeId, components []types.TypeId, props map[string]value.Value) instance {
	c := newPropertyContainer(g, id)
	for name, v := range props {
		_ = c.AddProperty(name, v)
	}
	return instance{
		id:         id,
		typ:        typeID,
		components: append([]types.TypeId(nil), components...),
		props:      c,
	}
}

// Instance looks up an entity or relation by id.
func (g *Graph) Instance(id uuid.UUID) (Instance, bool) {
	v, ok := g.instances.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Instance), true
}

// Entity looks up an entity by id.
func (g *Graph) Entity(id uuid.UUID) (*EntityInstance, bool) {
	inst, ok := g.Instance(id)
	if !ok {
		return nil, false
	}
	e, ok := inst.(*EntityInstance)
	return e, ok
}

// Relation looks up a relation by id.
func (g *Graph) Relation(id uuid.UUID) (*RelationInstance, bool) {
	inst, ok := g.Instance(id)
	if !ok {
		return nil, false
	}
	r, ok := inst.(*RelationInstance)
	return r, ok
}

// Entities lazily yields the entities in the arena.
func (g *Graph) Entities() iter.Seq[*EntityInstance] {
	return func(yield func(*EntityInstance) bool) {
		g.instances.Range(func(_, v any) bool {
			if e, ok := v.(*EntityInstance); ok {
				return yield(e)
			}
			return true
		})
	}
}

// Relations lazily yields the relations in the arena.
func (g *Graph) Relations() iter.Seq[*RelationInstance] {
	return func(yield func(*RelationInstance) bool) {
		g.instances.Range(func(_, v any) bool {
			if r, ok := v.(*RelationInstance); ok {
				return yield(r)
			}
			return true
		})
	}
}

// RemoveInstance drops an instance from the arena. Callers tear down its
// behaviours first.
func (g *Graph) RemoveInstance(id uuid.UUID) bool {
	_, ok := g.instances.LoadAndDelete(id)
	return ok
}
