package reactive

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/value"
)

// NodeID addresses a node in the graph arena. Zero is never issued.
type NodeID uint64

// Port selects an operand of a node.
type Port int

const (
	PortLHS Port = iota
	PortRHS
)

func (p Port) String() string {
	if p == PortRHS {
		return "rhs"
	}
	return "lhs"
}

// UnaryFunc computes an Operation's result from its operand.
// It must be free of side effects.
type UnaryFunc func(v value.Value) (value.Value, error)

// BinaryFunc computes a Gate's result from both operands.
// It must be free of side effects.
type BinaryFunc func(lhs, rhs value.Value) (value.Value, error)

// Endpoint names a property of a specific container.
type Endpoint struct {
	Container *PropertyContainer
	Property  string
}

func (e Endpoint) String() string {
	if e.Container == nil {
		return "<nil>." + e.Property
	}
	return e.Container.owner.String() + "." + e.Property
}

// Node is the behaviour-facing view shared by Operation, Gate and Watch.
type Node interface {
	ID() NodeID
	Name() string
	Result() value.Value
	Requirements() []Endpoint
	Inputs() []Endpoint
	Attach() error
	Detach()
	SetEnabled(enabled bool)
	Enabled() bool
	Remove()
}

type input struct {
	port   Port
	ep     Endpoint
	handle Handle
}

type node struct {
	id     NodeID
	name   string
	graph  *Graph
	unary  UnaryFunc
	binary BinaryFunc

	mu        sync.Mutex
	lhs, rhs  value.Value
	result    value.Value
	evaluated bool
	enabled   bool
	attached  bool
	removed   bool
	inputs    []input
	outputs   []Endpoint
}

func (n *node) setOperand(port Port, v value.Value) {
	if v == nil {
		v = value.Null{}
	}
	if port == PortRHS {
		n.rhs = v
	} else {
		n.lhs = v
	}
}

// evaluate recomputes the result and reports whether it differs from the
// previous one. The first evaluation always counts as a change. A failing
// function keeps the previous result.
func (n *node) evaluate() (value.Value, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out value.Value
	var err error
	if n.binary != nil {
		out, err = n.binary(n.lhs, n.rhs)
	} else {
		out, err = n.unary(n.lhs)
	}
	if err != nil {
		slog.Warn("node evaluation failed", "node", n.name, "node_id", n.id, "error", err)
		return n.result, false
	}
	if out == nil {
		out = value.Null{}
	}
	changed := !n.evaluated || !value.Equal(out, n.result)
	n.result = out
	n.evaluated = true
	return out, changed
}

func (n *node) outputSnapshot() []Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.outputs)
}

// Operation is a single-operand dataflow node.
type Operation struct {
	n *node
}

// ID returns the arena id.
func (o *Operation) ID() NodeID { return o.n.id }

// Name returns the diagnostic name given at construction.
func (o *Operation) Name() string { return o.n.name }

// Lhs stores the left operand, recomputes and propagates the result to the
// bound outputs. Direct operand calls work whether or not the node is
// enabled.
func (o *Operation) Lhs(v value.Value) error {
	return o.n.graph.apply(o.n, PortLHS, v)
}

// Result returns the last computed value without recomputing. Before the
// first evaluation it is Null.
func (o *Operation) Result() value.Value {
	o.n.mu.Lock()
	defer o.n.mu.Unlock()
	return o.n.result
}

// BindInput subscribes the left operand to ep once attached.
// Bindings must be declared before Attach.
func (o *Operation) BindInput(ep Endpoint) *Operation {
	o.bind(PortLHS, ep)
	return o
}

// BindOutput makes the node write its result to ep.
func (o *Operation) BindOutput(ep Endpoint) *Operation {
	o.n.mu.Lock()
	o.n.outputs = append(o.n.outputs, ep)
	o.n.mu.Unlock()
	return o
}

func (o *Operation) bind(port Port, ep Endpoint) {
	o.n.mu.Lock()
	o.n.inputs = append(o.n.inputs, input{port: port, ep: ep})
	o.n.mu.Unlock()
}

// Inputs returns the endpoints bound to operands.
func (o *Operation) Inputs() []Endpoint {
	o.n.mu.Lock()
	defer o.n.mu.Unlock()
	out := make([]Endpoint, 0, len(o.n.inputs))
	for _, in := range o.n.inputs {
		out = append(out, in.ep)
	}
	return out
}

// Requirements returns every endpoint the node reads or writes.
func (o *Operation) Requirements() []Endpoint {
	out := o.Inputs()
	return append(out, o.n.outputSnapshot()...)
}

// Attach subscribes the node to its input endpoints. Output endpoints must
// exist. On failure nothing stays subscribed.
func (o *Operation) Attach() error {
	n := o.n
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.removed {
		return fmt.Errorf("attach node %s: node removed", n.name)
	}
	if n.attached {
		return nil
	}
	for _, out := range n.outputs {
		if out.Container == nil || !out.Container.Has(out.Property) {
			return &PropertyError{Code: ErrCodeUnknownProperty, Owner: ownerOf(out), Property: out.Property}
		}
	}
	for i := range n.inputs {
		in := &n.inputs[i]
		if in.ep.Container == nil {
			n.detachLocked()
			return &PropertyError{Code: ErrCodeUnknownProperty, Property: in.ep.Property}
		}
		h, err := in.ep.Container.subscribeNode(in.ep.Property, n.id, in.port)
		if err != nil {
			n.detachLocked()
			return err
		}
		in.handle = h
	}
	n.attached = true
	return nil
}

// Detach removes every input subscription. The node keeps its operands and
// its last result.
func (o *Operation) Detach() {
	o.n.mu.Lock()
	defer o.n.mu.Unlock()
	o.n.detachLocked()
}

func (n *node) detachLocked() {
	for i := range n.inputs {
		in := &n.inputs[i]
		if in.handle != 0 {
			in.ep.Container.Unsubscribe(in.ep.Property, in.handle)
			in.handle = 0
		}
	}
	n.attached = false
}

// SetEnabled controls whether property writes reach the node.
func (o *Operation) SetEnabled(enabled bool) {
	o.n.mu.Lock()
	o.n.enabled = enabled
	o.n.mu.Unlock()
}

// Enabled reports whether property writes reach the node.
func (o *Operation) Enabled() bool {
	o.n.mu.Lock()
	defer o.n.mu.Unlock()
	return o.n.enabled
}

// Remove detaches the node and drops it from the arena. Removing twice is
// a no-op.
func (o *Operation) Remove() {
	n := o.n
	n.mu.Lock()
	if n.removed {
		n.mu.Unlock()
		return
	}
	n.detachLocked()
	n.enabled = false
	n.removed = true
	n.mu.Unlock()
	n.graph.nodes.Delete(n.id)
}

// Gate is a two-operand dataflow node.
type Gate struct {
	*Operation
}

// Rhs stores the right operand, recomputes and propagates the result.
func (g *Gate) Rhs(v value.Value) error {
	return g.n.graph.apply(g.n, PortRHS, v)
}

// BindLhs subscribes the left operand to ep once attached.
func (g *Gate) BindLhs(ep Endpoint) *Gate {
	g.bind(PortLHS, ep)
	return g
}

// BindRhs subscribes the right operand to ep once attached.
func (g *Gate) BindRhs(ep Endpoint) *Gate {
	g.bind(PortRHS, ep)
	return g
}

// BindOutput makes the gate write its result to ep.
func (g *Gate) BindOutput(ep Endpoint) *Gate {
	g.Operation.BindOutput(ep)
	return g
}

func ownerOf(ep Endpoint) uuid.UUID {
	if ep.Container != nil {
		return ep.Container.owner
	}
	return uuid.Nil
}
