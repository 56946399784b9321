package types

import "github.com/roach88/rgf/internal/value"

// Type is implemented by every definition stored in the registry.
type Type interface {
	TypeID() TypeId
}

// Component is a reusable bundle of properties that entity and relation
// types compose.
type Component struct {
	Id          TypeId
	Description string
	Properties  []PropertyType
	Extensions  Extensions
}

func (c Component) TypeID() TypeId { return c.Id }

// EntityType describes a node kind: its components and own properties.
type EntityType struct {
	Id          TypeId
	Description string
	Components  []TypeId
	Properties  []PropertyType
	Extensions  Extensions
}

func (e EntityType) TypeID() TypeId { return e.Id }

// RelationType describes an edge kind. Outbound and Inbound constrain the
// endpoints: each names an entity type, a component the entity must carry,
// or Wildcard.
type RelationType struct {
	Id          TypeId
	Description string
	Outbound    TypeId
	Inbound     TypeId
	Components  []TypeId
	Properties  []PropertyType
	Extensions  Extensions
}

func (r RelationType) TypeID() TypeId { return r.Id }

// WrapperKey addresses a flow's wrapper entity inside relation templates.
const WrapperKey = "@wrapper"

// EntityTemplate is one entity a flow instantiates.
type EntityTemplate struct {
	Key        string
	Type       TypeId
	Properties map[string]value.Value
}

// RelationTemplate connects two entity templates of the same flow by key.
type RelationTemplate struct {
	Outbound   string
	Type       TypeId
	Inbound    string
	Properties map[string]value.Value
}

// FlowType is a reusable subgraph: a wrapper entity plus the entities and
// relations created with it.
type FlowType struct {
	Id          TypeId
	Description string
	Wrapper     TypeId
	Entities    []EntityTemplate
	Relations   []RelationTemplate
	Extensions  Extensions
}

func (f FlowType) TypeID() TypeId { return f.Id }
