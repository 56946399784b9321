package behaviour

import (
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// EntityFactory builds a behaviour for entities whose type, or one of whose
// components, equals Target.
type EntityFactory interface {
	BehaviourType() types.TypeId
	Target() types.TypeId
	Create(e *reactive.EntityInstance) (*Behaviour, error)
}

// RelationFactory builds a behaviour for relations matching Target.
type RelationFactory interface {
	BehaviourType() types.TypeId
	Target() types.TypeId
	Create(r *reactive.RelationInstance) (*Behaviour, error)
}

type entityFactory struct {
	typ, target types.TypeId
	fn          func(e *reactive.EntityInstance) (*Behaviour, error)
}

func (f entityFactory) BehaviourType() types.TypeId { return f.typ }
func (f entityFactory) Target() types.TypeId        { return f.target }
func (f entityFactory) Create(e *reactive.EntityInstance) (*Behaviour, error) {
	return f.fn(e)
}

// NewEntityFactory adapts a function to EntityFactory.
func NewEntityFactory(behaviourType, target types.TypeId, fn func(e *reactive.EntityInstance) (*Behaviour, error)) EntityFactory {
	return entityFactory{typ: behaviourType, target: target, fn: fn}
}

type relationFactory struct {
	typ, target types.TypeId
	fn          func(r *reactive.RelationInstance) (*Behaviour, error)
}

func (f relationFactory) BehaviourType() types.TypeId { return f.typ }
func (f relationFactory) Target() types.TypeId        { return f.target }
func (f relationFactory) Create(r *reactive.RelationInstance) (*Behaviour, error) {
	return f.fn(r)
}

// NewRelationFactory adapts a function to RelationFactory.
func NewRelationFactory(behaviourType, target types.TypeId, fn func(r *reactive.RelationInstance) (*Behaviour, error)) RelationFactory {
	return relationFactory{typ: behaviourType, target: target, fn: fn}
}
