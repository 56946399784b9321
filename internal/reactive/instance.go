package reactive

import (
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/types"
)

// Instance is the common view of entities and relations.
type Instance interface {
	ID() uuid.UUID
	Type() types.TypeId
	Components() []types.TypeId
	HasComponent(id types.TypeId) bool
	Properties() *PropertyContainer
}

type instance struct {
	id         uuid.UUID
	typ        types.TypeId
	components []types.TypeId
	props      *PropertyContainer
}

// ID returns the instance id.
func (i *instance) ID() uuid.UUID { return i.id }

// Type returns the entity or relation type the instance was built from.
func (i *instance) Type() types.TypeId { return i.typ }

// Components returns the components the instance's type composes.
func (i *instance) Components() []types.TypeId { return slices.Clone(i.components) }

// HasComponent reports whether the instance composes id.
func (i *instance) HasComponent(id types.TypeId) bool {
	return slices.Contains(i.components, id)
}

// Properties returns the instance's property container.
func (i *instance) Properties() *PropertyContainer { return i.props }

// EntityInstance is a node of the graph.
type EntityInstance struct {
	instance
}

// RelationInstance is an edge of the graph.
type RelationInstance struct {
	instance
	outbound *EntityInstance
	inbound  *EntityInstance
}

// Outbound returns the source entity.
func (r *RelationInstance) Outbound() *EntityInstance { return r.outbound }

// Inbound returns the target entity.
func (r *RelationInstance) Inbound() *EntityInstance { return r.inbound }
