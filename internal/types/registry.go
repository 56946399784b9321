package types

import "fmt"

// Registry is the process-wide type registry of one runtime. It is empty
// when created and emptied by Reset at runtime shutdown.
type Registry struct {
	Namespaces    *NamespaceSet
	Components    *Partition[Component]
	EntityTypes   *Partition[EntityType]
	RelationTypes *Partition[RelationType]
	FlowTypes     *Partition[FlowType]

	feed *changeFeed
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	ns := NewNamespaceSet()
	feed := &changeFeed{}
	return &Registry{
		Namespaces:    ns,
		Components:    newPartition[Component](KindComponent, ns, feed),
		EntityTypes:   newPartition[EntityType](KindEntityType, ns, feed),
		RelationTypes: newPartition[RelationType](KindRelationType, ns, feed),
		FlowTypes:     newPartition[FlowType](KindFlowType, ns, feed),
		feed:          feed,
	}
}

// OnChange registers fn for every Register and Unregister on any
// partition. Reset does not notify.
func (r *Registry) OnChange(fn ChangeObserver) {
	r.feed.add(fn)
}

// EntityProperties resolves the effective property set of an entity type:
// component properties first, then the type's own.
func (r *Registry) EntityProperties(id TypeId) ([]PropertyType, error) {
	et, err := r.EntityTypes.Get(id)
	if err != nil {
		return nil, err
	}
	groups, err := r.componentProperties(et.Components)
	if err != nil {
		return nil, fmt.Errorf("entity type %s: %w", id, err)
	}
	return mergeProperties(append(groups, et.Properties)...), nil
}

// RelationProperties resolves the effective property set of a relation
// type.
func (r *Registry) RelationProperties(id TypeId) ([]PropertyType, error) {
	rt, err := r.RelationTypes.Get(id)
	if err != nil {
		return nil, err
	}
	groups, err := r.componentProperties(rt.Components)
	if err != nil {
		return nil, fmt.Errorf("relation type %s: %w", id, err)
	}
	return mergeProperties(append(groups, rt.Properties)...), nil
}

func (r *Registry) componentProperties(ids []TypeId) ([][]PropertyType, error) {
	groups := make([][]PropertyType, 0, len(ids)+1)
	for _, cid := range ids {
		c, err := r.Components.Get(cid)
		if err != nil {
			return nil, err
		}
		groups = append(groups, c.Properties)
	}
	return groups, nil
}

// EntityHasComponent reports whether the entity type composes component.
func (r *Registry) EntityHasComponent(entityType, component TypeId) bool {
	et, err := r.EntityTypes.Get(entityType)
	if err != nil {
		return false
	}
	for _, c := range et.Components {
		if c == component {
			return true
		}
	}
	return false
}

// Len returns the total number of registered definitions.
func (r *Registry) Len() int {
	return r.Components.Len() + r.EntityTypes.Len() + r.RelationTypes.Len() + r.FlowTypes.Len()
}

// Reset empties every partition and the namespace set. The runtime calls
// it once, after all plugins are stopped.
func (r *Registry) Reset() {
	r.FlowTypes.reset()
	r.RelationTypes.reset()
	r.EntityTypes.reset()
	r.Components.reset()
	r.Namespaces.reset()
}
