package reactive

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/value"
)

// Handle identifies one subscription on a property.
type Handle uint64

// Change describes one applied property write.
type Change struct {
	Seq      int64 // Graph clock value of the write
	Tick     int64 // Tick the write belongs to
	Owner    uuid.UUID
	Property string
	Value    value.Value
	Version  uint64
}

// Observer is notified synchronously after each write to a property.
// The tick is only valid for the duration of the call; writes made through
// it join the in-flight tick instead of starting a nested one.
type Observer func(t *Tick, ch Change)

type subscriber struct {
	handle  Handle
	node    NodeID
	port    Port
	observe Observer
}

type slot struct {
	mu      sync.Mutex
	value   value.Value
	version uint64
	subs    []subscriber
}

// PropertyContainer holds the named properties of one instance.
//
// Each slot carries a value, a version counter that increases on every
// write, and the list of subscribers. Reads and writes of different
// properties never contend.
type PropertyContainer struct {
	owner uuid.UUID
	graph *Graph

	mu    sync.Mutex   // serialises AddProperty/RemoveProperty
	slots sync.Map     // string -> *slot
	depth atomic.Int32 // Set and Tick calls in progress
}

func newPropertyContainer(g *Graph, owner uuid.UUID) *PropertyContainer {
	return &PropertyContainer{owner: owner, graph: g}
}

// Owner returns the id of the instance that owns the container.
func (c *PropertyContainer) Owner() uuid.UUID {
	return c.owner
}

func (c *PropertyContainer) slot(name string) (*slot, error) {
	v, ok := c.slots.Load(name)
	if !ok {
		return nil, &PropertyError{Code: ErrCodeUnknownProperty, Owner: c.owner, Property: name}
	}
	return v.(*slot), nil
}

// Get returns the current value of name.
func (c *PropertyContainer) Get(name string) (value.Value, error) {
	s, err := c.slot(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Version returns the write counter of name. It starts at 0 and increases
// by one on every Set, whether or not the value changed.
func (c *PropertyContainer) Version(name string) (uint64, error) {
	s, err := c.slot(name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

// Has reports whether the container has a property called name.
func (c *PropertyContainer) Has(name string) bool {
	_, ok := c.slots.Load(name)
	return ok
}

// Names returns the property names in lexical order.
func (c *PropertyContainer) Names() []string {
	var names []string
	c.slots.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	slices.Sort(names)
	return names
}

// Snapshot copies the current values.
func (c *PropertyContainer) Snapshot() map[string]value.Value {
	out := make(map[string]value.Value)
	c.slots.Range(func(k, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		out[k.(string)] = s.value
		s.mu.Unlock()
		return true
	})
	return out
}

// AddProperty creates name with an initial value. Creating a property does
// not notify anyone and does not bump a version.
func (c *PropertyContainer) AddProperty(name string, initial value.Value) error {
	if initial == nil {
		initial = value.Null{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, loaded := c.slots.LoadOrStore(name, &slot{value: initial}); loaded {
		return &PropertyError{Code: ErrCodeDuplicateProperty, Owner: c.owner, Property: name}
	}
	return nil
}

// RemoveProperty detaches every subscriber of name and then deletes it.
// Nodes that were bound to the property keep their last operand.
func (c *PropertyContainer) RemoveProperty(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slot(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
	c.slots.Delete(name)
	return nil
}

// Set writes v to name, notifies every subscriber and propagates until the
// graph is stable. Subscribers are notified even when v equals the current
// value.
//
// A *TickNotConvergedError means the write was applied but propagation hit
// the pass cap.
//
// An observer that calls Set or Tick instead of Tick.Set nests a new tick
// inside the running one. Nesting on one container is limited to the pass
// cap; the call past it is rejected, and the outermost call reports the
// *TickNotConvergedError even if the observer drops it.
func (c *PropertyContainer) Set(name string, v value.Value) error {
	return c.guard(name, func() error {
		t := c.graph.begin()
		if err := c.write(t, name, v); err != nil {
			c.graph.abandon(t)
			return err
		}
		return c.graph.drain(t)
	})
}

func (c *PropertyContainer) guard(name string, run func() error) (err error) {
	g := c.graph
	g.running.Add(1)
	depth := int(c.depth.Add(1))
	defer func() {
		c.depth.Add(-1)
		if g.running.Add(-1) == 0 {
			if nested := g.overflow.Swap(nil); nested != nil && err == nil {
				err = nested
			}
		}
	}()

	if depth > g.maxPasses {
		nested := &TickNotConvergedError{
			Tick:    g.clock.Current(),
			Passes:  depth - 1,
			Limit:   g.maxPasses,
			Pending: []string{c.owner.String() + "." + name},
		}
		g.overflow.CompareAndSwap(nil, nested)
		slog.Warn("nested tick rejected",
			"owner", c.owner.String(),
			"property", name,
			"depth", depth-1)
		return nested
	}
	return run()
}

// Tick re-evaluates every node subscribed to this container with the
// current property values, and pushes their results even when unchanged.
// Behaviours call it on connect to re-seed derived values.
func (c *PropertyContainer) Tick() error {
	return c.guard("*", c.tick)
}

func (c *PropertyContainer) tick() error {
	t := c.graph.begin()
	c.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		cur := s.value
		subs := slices.Clone(s.subs)
		s.mu.Unlock()
		for _, sub := range subs {
			if sub.observe == nil {
				c.graph.feed(t, sub.node, sub.port, cur, true)
			}
		}
		return true
	})
	return c.graph.drain(t)
}

// write applies v inside tick t.
func (c *PropertyContainer) write(t *Tick, name string, v value.Value) error {
	s, err := c.slot(name)
	if err != nil {
		return err
	}
	if v == nil {
		v = value.Null{}
	}

	s.mu.Lock()
	s.value = v
	s.version++
	version := s.version
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	ch := Change{
		Seq:      c.graph.clock.Next(),
		Tick:     t.id,
		Owner:    c.owner,
		Property: name,
		Value:    v,
		Version:  version,
	}
	t.writes++
	c.graph.recordWrite(ch)

	for _, sub := range subs {
		if sub.observe != nil {
			sub.observe(t, ch)
			continue
		}
		c.graph.feed(t, sub.node, sub.port, v, false)
	}
	return nil
}

// Subscribe registers fn for writes to name.
func (c *PropertyContainer) Subscribe(name string, fn Observer) (Handle, error) {
	return c.subscribe(name, subscriber{observe: fn})
}

func (c *PropertyContainer) subscribeNode(name string, id NodeID, port Port) (Handle, error) {
	return c.subscribe(name, subscriber{node: id, port: port})
}

func (c *PropertyContainer) subscribe(name string, sub subscriber) (Handle, error) {
	s, err := c.slot(name)
	if err != nil {
		return 0, err
	}
	sub.handle = Handle(c.graph.nextHandle.Add(1))
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub.handle, nil
}

// Unsubscribe removes the subscription h from name and reports whether it
// was found.
func (c *PropertyContainer) Unsubscribe(name string, h Handle) bool {
	s, err := c.slot(name)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.handle == h {
			s.subs = slices.Delete(s.subs, i, i+1)
			return true
		}
	}
	return false
}

// SubscriberCount returns the number of subscribers of name.
func (c *PropertyContainer) SubscriberCount(name string) int {
	s, err := c.slot(name)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscriptions returns the number of subscribers across all properties.
func (c *PropertyContainer) Subscriptions() int {
	n := 0
	c.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		n += len(s.subs)
		s.mu.Unlock()
		return true
	})
	return n
}
