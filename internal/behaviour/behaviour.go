package behaviour

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rgf/internal/observability"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// Behaviour binds one instance to the nodes that compute its derived
// properties.
type Behaviour struct {
	typ    types.TypeId
	target reactive.Instance
	nodes  []reactive.Node

	mu        sync.Mutex
	owner     string
	state     State
	destroyed bool
}

// New creates a behaviour in the Created state. Node bindings must already
// be declared; nothing is subscribed until Wire.
func New(typ types.TypeId, target reactive.Instance, nodes ...reactive.Node) *Behaviour {
	for _, n := range nodes {
		n.SetEnabled(false)
	}
	return &Behaviour{typ: typ, target: target, nodes: nodes, state: StateCreated}
}

// Type returns the behaviour type.
func (b *Behaviour) Type() types.TypeId { return b.typ }

// Target returns the instance the behaviour is bound to.
func (b *Behaviour) Target() reactive.Instance { return b.target }

// Nodes returns the nodes owned by the behaviour.
func (b *Behaviour) Nodes() []reactive.Node { return b.nodes }

// Owner returns the plugin whose factory created the behaviour.
func (b *Behaviour) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

func (b *Behaviour) setOwner(owner string) {
	b.mu.Lock()
	b.owner = owner
	b.mu.Unlock()
}

// State returns the current lifecycle state.
func (b *Behaviour) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Destroyed reports whether Destroy has run.
func (b *Behaviour) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

func (b *Behaviour) invalid(to State) error {
	msg := fmt.Sprintf("cannot move from %s to %s", b.state, to)
	if b.destroyed {
		msg = fmt.Sprintf("cannot move to %s: destroyed", to)
	}
	return &Error{Code: ErrCodeInvalidTransition, Behaviour: b.typ, Instance: b.target.ID(), Message: msg}
}

func (b *Behaviour) rejected(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invalid(to)
}

// expect checks the source state. Callers hold b.mu.
func (b *Behaviour) expect(from, to State) error {
	if b.destroyed || b.state != from {
		return b.invalid(to)
	}
	return nil
}

func (b *Behaviour) enter(s State) {
	b.state = s
	observability.RecordBehaviourTransition(b.typ.String(), s.String())
}

// Validate checks that every endpoint the nodes read or write exists.
// Created -> Valid. A behaviour that fails validation is destroyed: its
// nodes leave the graph and no later transition is allowed.
func (b *Behaviour) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.expect(StateCreated, StateValid); err != nil {
		return err
	}
	for _, n := range b.nodes {
		for _, ep := range n.Requirements() {
			if ep.Container == nil || !ep.Container.Has(ep.Property) {
				b.discard()
				return &Error{
					Code:      ErrCodeMissingProperty,
					Behaviour: b.typ,
					Instance:  b.target.ID(),
					Message:   fmt.Sprintf("node %s requires property %q", n.Name(), ep.Property),
				}
			}
		}
	}
	b.enter(StateValid)
	return nil
}

// Wire subscribes the nodes to their inputs while keeping them disabled.
// Valid -> Ready. On failure nothing stays subscribed.
func (b *Behaviour) Wire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.expect(StateValid, StateReady); err != nil {
		return err
	}
	for i, n := range b.nodes {
		n.SetEnabled(false)
		if err := n.Attach(); err != nil {
			for _, prev := range b.nodes[:i] {
				prev.Detach()
			}
			return fmt.Errorf("wire %s: %w", b.typ, err)
		}
	}
	b.enter(StateReady)
	return nil
}

// Connect enables the nodes and ticks every container they read from so
// derived values catch up with writes made while disconnected.
// Ready -> Connected.
func (b *Behaviour) Connect() error {
	b.mu.Lock()
	if err := b.expect(StateReady, StateConnected); err != nil {
		b.mu.Unlock()
		return err
	}
	for _, n := range b.nodes {
		n.SetEnabled(true)
	}
	b.enter(StateConnected)
	b.mu.Unlock()

	seen := make(map[*reactive.PropertyContainer]bool)
	for _, n := range b.nodes {
		for _, ep := range n.Inputs() {
			if ep.Container == nil || seen[ep.Container] {
				continue
			}
			seen[ep.Container] = true
			if err := ep.Container.Tick(); err != nil {
				slog.Warn("connect tick did not settle",
					"behaviour", b.typ.String(),
					"instance", b.target.ID().String(),
					"error", err)
			}
		}
	}
	return nil
}

// Disconnect stops propagation into the nodes. They stay subscribed.
// Connected -> Ready.
func (b *Behaviour) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.expect(StateConnected, StateReady); err != nil {
		return err
	}
	for _, n := range b.nodes {
		n.SetEnabled(false)
	}
	b.enter(StateReady)
	return nil
}

// Destroy detaches and removes every node. Allowed from any state;
// calling it again does nothing.
func (b *Behaviour) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.destroyed {
		b.discard()
	}
}

// discard removes the nodes. Callers hold b.mu.
func (b *Behaviour) discard() {
	for _, n := range b.nodes {
		n.Remove()
	}
	b.destroyed = true
	observability.RecordBehaviourTransition(b.typ.String(), "destroyed")
}

// Transition moves the behaviour to target. Moving forward passes through
// every intermediate state; the only backward move is Connected -> Ready.
func (b *Behaviour) Transition(target State) error {
	for {
		cur := b.State()
		if cur == target {
			if b.Destroyed() {
				return b.rejected(target)
			}
			return nil
		}
		if target < cur {
			if cur == StateConnected && target == StateReady {
				return b.Disconnect()
			}
			return b.rejected(target)
		}

		var err error
		switch cur {
		case StateCreated:
			err = b.Validate()
		case StateValid:
			err = b.Wire()
		case StateReady:
			err = b.Connect()
		}
		if err != nil {
			return err
		}
	}
}
