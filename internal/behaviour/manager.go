package behaviour

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

type entityRegistration struct {
	owner   string
	factory EntityFactory
}

type relationRegistration struct {
	owner   string
	factory RelationFactory
}

// Manager holds the registered factories and the live behaviours of every
// instance.
//
// Factory calls and lifecycle transitions run without the manager lock, so
// a behaviour that reacts to its own connect tick cannot deadlock the
// manager.
type Manager struct {
	mu        sync.RWMutex
	entities  []entityRegistration
	relations []relationRegistration
	live      map[uuid.UUID][]*Behaviour
	claims    map[claim]struct{} // attachments in progress
}

// claim reserves one behaviour type on one instance while its factory and
// lifecycle run outside the lock.
type claim struct {
	instance uuid.UUID
	typ      types.TypeId
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		live:   make(map[uuid.UUID][]*Behaviour),
		claims: make(map[claim]struct{}),
	}
}

// RegisterEntityFactory adds a factory on behalf of owner.
func (m *Manager) RegisterEntityFactory(owner string, f EntityFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = append(m.entities, entityRegistration{owner: owner, factory: f})
}

// RegisterRelationFactory adds a factory on behalf of owner.
func (m *Manager) RegisterRelationFactory(owner string, f RelationFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations = append(m.relations, relationRegistration{owner: owner, factory: f})
}

// UnregisterOwner drops every factory registered by owner and returns how
// many were removed. Live behaviours are left alone.
func (m *Manager) UnregisterOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.entities) + len(m.relations)
	m.entities = slices.DeleteFunc(m.entities, func(r entityRegistration) bool { return r.owner == owner })
	m.relations = slices.DeleteFunc(m.relations, func(r relationRegistration) bool { return r.owner == owner })
	return before - len(m.entities) - len(m.relations)
}

// FactoryCount returns the number of registered factories.
func (m *Manager) FactoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities) + len(m.relations)
}

func matches(inst reactive.Instance, target types.TypeId) bool {
	return inst.Type() == target || inst.HasComponent(target)
}

type candidate struct {
	owner  string
	typ    types.TypeId
	create func() (*Behaviour, error)
}

// AttachEntity creates and connects the behaviours of every matching
// factory. When owner is non-empty only that plugin's factories are used.
// Behaviour types already live on the entity are skipped. It returns the
// number of behaviours connected.
func (m *Manager) AttachEntity(e *reactive.EntityInstance, owner string) int {
	m.mu.RLock()
	var cands []candidate
	for _, reg := range m.entities {
		if (owner != "" && reg.owner != owner) || !matches(e, reg.factory.Target()) {
			continue
		}
		f := reg.factory
		cands = append(cands, candidate{
			owner:  reg.owner,
			typ:    f.BehaviourType(),
			create: func() (*Behaviour, error) { return f.Create(e) },
		})
	}
	m.mu.RUnlock()
	return m.attach(e, cands)
}

// AttachRelation is AttachEntity for relations.
func (m *Manager) AttachRelation(r *reactive.RelationInstance, owner string) int {
	m.mu.RLock()
	var cands []candidate
	for _, reg := range m.relations {
		if (owner != "" && reg.owner != owner) || !matches(r, reg.factory.Target()) {
			continue
		}
		f := reg.factory
		cands = append(cands, candidate{
			owner:  reg.owner,
			typ:    f.BehaviourType(),
			create: func() (*Behaviour, error) { return f.Create(r) },
		})
	}
	m.mu.RUnlock()
	return m.attach(r, cands)
}

func (m *Manager) attach(inst reactive.Instance, cands []candidate) int {
	connected := 0
	for _, c := range cands {
		key := claim{instance: inst.ID(), typ: c.typ}
		if !m.claim(key) {
			continue
		}
		b, err := c.create()
		if err != nil {
			m.release(key, nil)
			slog.Warn("behaviour factory failed",
				"behaviour", c.typ.String(),
				"instance", inst.ID().String(),
				"error", err)
			continue
		}
		b.setOwner(c.owner)
		if err := b.Transition(StateConnected); err != nil {
			b.Destroy()
			m.release(key, nil)
			slog.Warn("behaviour discarded",
				"behaviour", c.typ.String(),
				"instance", inst.ID().String(),
				"error", err)
			continue
		}

		m.release(key, b)
		connected++
		slog.Debug("behaviour connected",
			"behaviour", c.typ.String(),
			"instance", inst.ID().String(),
			"owner", c.owner)
	}
	return connected
}

// claim reserves key unless the behaviour type is already live on the
// instance or another caller is attaching it.
func (m *Manager) claim(key claim) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.claims[key]; busy {
		return false
	}
	for _, b := range m.live[key.instance] {
		if b.Type() == key.typ {
			return false
		}
	}
	m.claims[key] = struct{}{}
	return true
}

// release drops the reservation and records b, if any, as live.
func (m *Manager) release(key claim, b *Behaviour) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	if b != nil {
		m.live[key.instance] = append(m.live[key.instance], b)
	}
}

// Add tracks a behaviour that was connected outside the factories, for
// example by a test or an embedding application.
func (m *Manager) Add(owner string, b *Behaviour) {
	b.setOwner(owner)
	m.mu.Lock()
	defer m.mu.Unlock()
	id := b.Target().ID()
	m.live[id] = append(m.live[id], b)
}

// Detach tears down every behaviour of an instance: connected ones are
// disconnected first, then all are destroyed. It returns how many were
// removed.
func (m *Manager) Detach(id uuid.UUID) int {
	m.mu.Lock()
	bs := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()

	for _, b := range bs {
		teardown(b)
	}
	return len(bs)
}

func teardown(b *Behaviour) {
	if b.State() == StateConnected {
		if err := b.Disconnect(); err != nil {
			slog.Warn("behaviour disconnect failed", "behaviour", b.Type().String(), "error", err)
		}
	}
	b.Destroy()
}

// DisconnectOwner moves every connected behaviour created by owner's
// factories back to Ready. It returns how many were disconnected.
func (m *Manager) DisconnectOwner(owner string) int {
	n := 0
	for _, b := range m.byOwner(owner) {
		if b.State() == StateConnected {
			if err := b.Disconnect(); err == nil {
				n++
			}
		}
	}
	return n
}

// ReconnectOwner connects every Ready behaviour created by owner's
// factories. It returns how many were connected.
func (m *Manager) ReconnectOwner(owner string) int {
	n := 0
	for _, b := range m.byOwner(owner) {
		if b.State() == StateReady {
			if err := b.Connect(); err == nil {
				n++
			}
		}
	}
	return n
}

func (m *Manager) byOwner(owner string) []*Behaviour {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Behaviour
	for _, bs := range m.live {
		for _, b := range bs {
			if b.Owner() == owner {
				out = append(out, b)
			}
		}
	}
	return out
}

// Behaviours returns the live behaviours of an instance.
func (m *Manager) Behaviours(id uuid.UUID) []*Behaviour {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.live[id])
}

// Count returns the number of live behaviours.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, bs := range m.live {
		n += len(bs)
	}
	return n
}

// CountOwner returns the number of live behaviours created by owner.
func (m *Manager) CountOwner(owner string) int {
	return len(m.byOwner(owner))
}
