// Package instances creates and deletes typed reactive instances.
//
// The manager is the only place that turns registry types into live
// instances. It resolves effective properties, takes type references so
// the registry refuses to unregister types that are still in use, checks
// relation endpoints and hands new instances to the behaviour manager.
package instances

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// EventKind says what happened to an instance.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
)

// Event describes an instance lifecycle change. Flow events carry the
// wrapper entity's id and the flow type.
type Event struct {
	Kind     EventKind
	ID       uuid.UUID
	Type     types.TypeId
	Relation bool
	Flow     bool
}

// Observer receives instance events synchronously.
type Observer func(ev Event)

type typeRef struct {
	kind types.Kind
	id   types.TypeId
}

// Manager owns instance creation and deletion for one runtime.
type Manager struct {
	registry   *types.Registry
	graph      *reactive.Graph
	behaviours *behaviour.Manager

	mu        sync.Mutex
	refs      map[uuid.UUID][]typeRef
	flows     map[uuid.UUID]*FlowInstance // by wrapper id
	observers []Observer
}

// NewManager creates a manager over the given registry, graph and
// behaviour manager.
func NewManager(registry *types.Registry, graph *reactive.Graph, behaviours *behaviour.Manager) *Manager {
	return &Manager{
		registry:   registry,
		graph:      graph,
		behaviours: behaviours,
		refs:       make(map[uuid.UUID][]typeRef),
		flows:      make(map[uuid.UUID]*FlowInstance),
	}
}

// OnEvent registers an observer for instance events.
func (m *Manager) OnEvent(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	obs := slices.Clone(m.observers)
	m.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

// Graph returns the graph instances live in.
func (m *Manager) Graph() *reactive.Graph { return m.graph }

// CreateEntity builds an entity of typeID. Declared properties start at
// their defaults unless props overrides them; props may also add
// undeclared properties. Matching behaviours are attached and connected
// before the entity is returned.
func (m *Manager) CreateEntity(typeID types.TypeId, props map[string]value.Value) (*reactive.EntityInstance, error) {
	et, err := m.registry.EntityTypes.Get(typeID)
	if err != nil {
		return nil, err
	}
	declared, err := m.registry.EntityProperties(typeID)
	if err != nil {
		return nil, err
	}
	initial, err := initialValues(declared, props)
	if err != nil {
		return nil, err
	}
	refs, err := m.acquire(typeRef{types.KindEntityType, typeID}, et.Components)
	if err != nil {
		return nil, err
	}

	e := m.graph.NewEntity(typeID, et.Components, initial)
	m.track(e.ID(), refs)
	m.emit(Event{Kind: EventCreated, ID: e.ID(), Type: typeID})

	n := m.behaviours.AttachEntity(e, "")
	slog.Debug("entity created", "id", e.ID().String(), "type", typeID.String(), "behaviours", n)
	return e, nil
}

// CreateRelation connects two live entities with a relation of typeID.
func (m *Manager) CreateRelation(outbound uuid.UUID, typeID types.TypeId, inbound uuid.UUID, props map[string]value.Value) (*reactive.RelationInstance, error) {
	rt, err := m.registry.RelationTypes.Get(typeID)
	if err != nil {
		return nil, err
	}
	out, ok := m.graph.Entity(outbound)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownInstance, ID: outbound, Message: "outbound entity not found"}
	}
	in, ok := m.graph.Entity(inbound)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownInstance, ID: inbound, Message: "inbound entity not found"}
	}
	if !endpointMatches(rt.Outbound, out) {
		return nil, &Error{Code: ErrCodeInvalidEndpoint, ID: outbound,
			Message: fmt.Sprintf("%s outbound must be %s, got %s", typeID, rt.Outbound, out.Type())}
	}
	if !endpointMatches(rt.Inbound, in) {
		return nil, &Error{Code: ErrCodeInvalidEndpoint, ID: inbound,
			Message: fmt.Sprintf("%s inbound must be %s, got %s", typeID, rt.Inbound, in.Type())}
	}

	declared, err := m.registry.RelationProperties(typeID)
	if err != nil {
		return nil, err
	}
	initial, err := initialValues(declared, props)
	if err != nil {
		return nil, err
	}
	refs, err := m.acquire(typeRef{types.KindRelationType, typeID}, rt.Components)
	if err != nil {
		return nil, err
	}

	r := m.graph.NewRelation(out, typeID, in, rt.Components, initial)
	m.track(r.ID(), refs)
	m.emit(Event{Kind: EventCreated, ID: r.ID(), Type: typeID, Relation: true})

	n := m.behaviours.AttachRelation(r, "")
	slog.Debug("relation created", "id", r.ID().String(), "type", typeID.String(), "behaviours", n)
	return r, nil
}

// endpointMatches accepts the wildcard, the entity's own type or any of
// its components.
func endpointMatches(constraint types.TypeId, e *reactive.EntityInstance) bool {
	if constraint == types.Wildcard || constraint.IsZero() {
		return true
	}
	return e.Type() == constraint || e.HasComponent(constraint)
}

func initialValues(declared []types.PropertyType, props map[string]value.Value) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(declared)+len(props))
	for _, p := range declared {
		out[p.Name] = p.DefaultValue()
	}
	for _, p := range declared {
		v, ok := props[p.Name]
		if !ok {
			continue
		}
		if !p.DataType.Accepts(v) {
			return nil, &Error{Code: ErrCodeInvalidValue,
				Message: fmt.Sprintf("property %q is %s, got %s", p.Name, p.DataType, value.Kind(v))}
		}
	}
	for k, v := range props {
		out[k] = v
	}
	return out, nil
}

// acquire takes a reference on the instance type and its components,
// releasing everything on failure.
func (m *Manager) acquire(main typeRef, components []types.TypeId) ([]typeRef, error) {
	refs := []typeRef{main}
	for _, c := range components {
		refs = append(refs, typeRef{types.KindComponent, c})
	}
	for i, ref := range refs {
		if err := m.acquireOne(ref); err != nil {
			m.release(refs[:i])
			return nil, err
		}
	}
	return refs, nil
}

func (m *Manager) acquireOne(ref typeRef) error {
	switch ref.kind {
	case types.KindEntityType:
		return m.registry.EntityTypes.Acquire(ref.id)
	case types.KindRelationType:
		return m.registry.RelationTypes.Acquire(ref.id)
	case types.KindComponent:
		return m.registry.Components.Acquire(ref.id)
	case types.KindFlowType:
		return m.registry.FlowTypes.Acquire(ref.id)
	}
	return fmt.Errorf("cannot reference %s", ref.kind)
}

func (m *Manager) release(refs []typeRef) {
	for _, ref := range refs {
		switch ref.kind {
		case types.KindEntityType:
			m.registry.EntityTypes.Release(ref.id)
		case types.KindRelationType:
			m.registry.RelationTypes.Release(ref.id)
		case types.KindComponent:
			m.registry.Components.Release(ref.id)
		case types.KindFlowType:
			m.registry.FlowTypes.Release(ref.id)
		}
	}
}

func (m *Manager) track(id uuid.UUID, refs []typeRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[id] = refs
}

func (m *Manager) untrack(id uuid.UUID) []typeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.refs[id]
	delete(m.refs, id)
	return refs
}

// Entity returns a live entity.
func (m *Manager) Entity(id uuid.UUID) (*reactive.EntityInstance, error) {
	e, ok := m.graph.Entity(id)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownInstance, ID: id, Message: "entity not found"}
	}
	return e, nil
}

// Relation returns a live relation.
func (m *Manager) Relation(id uuid.UUID) (*reactive.RelationInstance, error) {
	r, ok := m.graph.Relation(id)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownInstance, ID: id, Message: "relation not found"}
	}
	return r, nil
}

// DeleteRelation tears down the relation's behaviours, then removes it.
func (m *Manager) DeleteRelation(id uuid.UUID) error {
	r, ok := m.graph.Relation(id)
	if !ok {
		return &Error{Code: ErrCodeUnknownInstance, ID: id, Message: "relation not found"}
	}
	m.behaviours.Detach(id)
	m.graph.RemoveInstance(id)
	m.release(m.untrack(id))
	m.emit(Event{Kind: EventDeleted, ID: id, Type: r.Type(), Relation: true})
	return nil
}

// DeleteEntity removes every relation touching the entity, tears down the
// entity's behaviours and removes it. Deleting a flow wrapper ends the
// flow; its other members stay.
func (m *Manager) DeleteEntity(id uuid.UUID) error {
	e, ok := m.graph.Entity(id)
	if !ok {
		return &Error{Code: ErrCodeUnknownInstance, ID: id, Message: "entity not found"}
	}
	for r := range m.graph.Relations() {
		if r.Outbound().ID() == id || r.Inbound().ID() == id {
			if err := m.DeleteRelation(r.ID()); err != nil && !IsUnknownInstance(err) {
				return err
			}
		}
	}
	m.behaviours.Detach(id)
	m.graph.RemoveInstance(id)
	m.release(m.untrack(id))
	m.emit(Event{Kind: EventDeleted, ID: id, Type: e.Type()})
	m.endFlow(id)
	return nil
}

// AttachOwner gives every live instance the behaviours of owner's
// factories. The resolver calls it after activating a plugin so instances
// created earlier pick up the new behaviours.
func (m *Manager) AttachOwner(owner string) int {
	n := 0
	for e := range m.graph.Entities() {
		n += m.behaviours.AttachEntity(e, owner)
	}
	for r := range m.graph.Relations() {
		n += m.behaviours.AttachRelation(r, owner)
	}
	return n
}

// Count returns the number of live entities and relations.
func (m *Manager) Count() (entities, relations int) {
	for range m.graph.Entities() {
		entities++
	}
	for range m.graph.Relations() {
		relations++
	}
	return entities, relations
}

// Clear deletes every instance, relations first.
func (m *Manager) Clear() int {
	n := 0
	for r := range m.graph.Relations() {
		if m.DeleteRelation(r.ID()) == nil {
			n++
		}
	}
	for e := range m.graph.Entities() {
		if m.DeleteEntity(e.ID()) == nil {
			n++
		}
	}
	return n
}
