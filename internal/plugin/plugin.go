package plugin

import (
	"context"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// Manifest is the static description of a plugin.
type Manifest struct {
	Name         string   `json:"name" yaml:"name" mapstructure:"name"`
	Version      string   `json:"version,omitempty" yaml:"version" mapstructure:"version"`
	Description  string   `json:"description,omitempty" yaml:"description" mapstructure:"description"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies" mapstructure:"dependencies"`
}

// Plugin is the one method every plugin implements. Capabilities are
// discovered through the provider interfaces below.
type Plugin interface {
	Manifest() Manifest
}

// ComponentProvider contributes components.
type ComponentProvider interface {
	Components() []types.Component
}

// EntityTypeProvider contributes entity types.
type EntityTypeProvider interface {
	EntityTypes() []types.EntityType
}

// RelationTypeProvider contributes relation types.
type RelationTypeProvider interface {
	RelationTypes() []types.RelationType
}

// FlowTypeProvider contributes flow types.
type FlowTypeProvider interface {
	FlowTypes() []types.FlowType
}

// EntityBehaviourProvider contributes entity behaviour factories. The graph
// is the one the factories build nodes in.
type EntityBehaviourProvider interface {
	EntityFactories(g *reactive.Graph) []behaviour.EntityFactory
}

// RelationBehaviourProvider contributes relation behaviour factories.
type RelationBehaviourProvider interface {
	RelationFactories(g *reactive.Graph) []behaviour.RelationFactory
}

// Env gives activators access to the runtime they are activated in.
type Env struct {
	Registry   *types.Registry
	Graph      *reactive.Graph
	Behaviours *behaviour.Manager
	Instances  *instances.Manager
}

// Activator is implemented by plugins with work to do after their types
// and factories are registered, and before they are removed.
type Activator interface {
	Activate(ctx context.Context, env *Env) error
	Deactivate(ctx context.Context, env *Env) error
}
