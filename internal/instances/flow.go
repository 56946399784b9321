package instances

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// FlowInstance is the set of instances created from one flow type.
type FlowInstance struct {
	Type      types.TypeId
	Wrapper   *reactive.EntityInstance
	Entities  map[string]*reactive.EntityInstance
	Relations []*reactive.RelationInstance
}

// ID returns the wrapper entity's id, which identifies the flow.
func (fi *FlowInstance) ID() uuid.UUID {
	return fi.Wrapper.ID()
}

// InstantiateFlow creates the wrapper entity (with props), then every
// entity template, then every relation template. If any step fails the
// instances created so far are deleted again. The flow type stays
// referenced until the flow ends.
func (m *Manager) InstantiateFlow(flowType types.TypeId, props map[string]value.Value) (*FlowInstance, error) {
	ft, err := m.registry.FlowTypes.Get(flowType)
	if err != nil {
		return nil, err
	}
	ref := typeRef{types.KindFlowType, flowType}
	if err := m.acquireOne(ref); err != nil {
		return nil, err
	}

	var created []uuid.UUID
	rollback := func() {
		defer m.release([]typeRef{ref})
		for _, id := range slices.Backward(created) {
			if _, ok := m.graph.Relation(id); ok {
				_ = m.DeleteRelation(id)
				continue
			}
			_ = m.DeleteEntity(id)
		}
	}

	wrapper, err := m.CreateEntity(ft.Wrapper, props)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("flow %s wrapper: %w", flowType, err)
	}
	created = append(created, wrapper.ID())

	fi := &FlowInstance{
		Type:     flowType,
		Wrapper:  wrapper,
		Entities: map[string]*reactive.EntityInstance{types.WrapperKey: wrapper},
	}
	for _, tmpl := range ft.Entities {
		if _, dup := fi.Entities[tmpl.Key]; dup {
			rollback()
			return nil, fmt.Errorf("flow %s: duplicate entity key %q", flowType, tmpl.Key)
		}
		e, err := m.CreateEntity(tmpl.Type, tmpl.Properties)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("flow %s entity %q: %w", flowType, tmpl.Key, err)
		}
		created = append(created, e.ID())
		fi.Entities[tmpl.Key] = e
	}
	for _, tmpl := range ft.Relations {
		out, ok := fi.Entities[tmpl.Outbound]
		if !ok {
			rollback()
			return nil, fmt.Errorf("flow %s: unknown outbound key %q", flowType, tmpl.Outbound)
		}
		in, ok := fi.Entities[tmpl.Inbound]
		if !ok {
			rollback()
			return nil, fmt.Errorf("flow %s: unknown inbound key %q", flowType, tmpl.Inbound)
		}
		r, err := m.CreateRelation(out.ID(), tmpl.Type, in.ID(), tmpl.Properties)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("flow %s relation %s->%s: %w", flowType, tmpl.Outbound, tmpl.Inbound, err)
		}
		created = append(created, r.ID())
		fi.Relations = append(fi.Relations, r)
	}

	m.mu.Lock()
	m.flows[fi.ID()] = fi
	m.mu.Unlock()
	m.emit(Event{Kind: EventCreated, ID: fi.ID(), Type: flowType, Flow: true})
	return fi, nil
}

// Flow returns a live flow by its wrapper id.
func (m *Manager) Flow(id uuid.UUID) (*FlowInstance, error) {
	m.mu.Lock()
	fi, ok := m.flows[id]
	m.mu.Unlock()
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownInstance, ID: id, Message: "flow not found"}
	}
	return fi, nil
}

// FlowCount returns the number of live flows.
func (m *Manager) FlowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

// DeleteFlow deletes the flow's relations, its member entities and
// finally the wrapper. Members already deleted elsewhere are skipped.
func (m *Manager) DeleteFlow(id uuid.UUID) error {
	fi, err := m.Flow(id)
	if err != nil {
		return err
	}
	for _, r := range slices.Backward(fi.Relations) {
		if err := m.DeleteRelation(r.ID()); err != nil && !IsUnknownInstance(err) {
			return err
		}
	}
	for key, e := range fi.Entities {
		if key == types.WrapperKey {
			continue
		}
		if err := m.DeleteEntity(e.ID()); err != nil && !IsUnknownInstance(err) {
			return err
		}
	}
	return m.DeleteEntity(id)
}

// endFlow forgets the flow wrapped by id, if any, and releases its type.
func (m *Manager) endFlow(id uuid.UUID) {
	m.mu.Lock()
	fi, ok := m.flows[id]
	delete(m.flows, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.release([]typeRef{{types.KindFlowType, fi.Type}})
	m.emit(Event{Kind: EventDeleted, ID: id, Type: fi.Type, Flow: true})
}
