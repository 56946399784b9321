package plugin

import (
	"context"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// Definition is a plugin assembled from plain values. Built-in plugins and
// declarative manifests both produce one.
type Definition struct {
	Meta          Manifest
	ComponentList []types.Component
	EntityList    []types.EntityType
	RelationList  []types.RelationType
	FlowList      []types.FlowType
	EntityBuild   func(g *reactive.Graph) []behaviour.EntityFactory
	RelationBuild func(g *reactive.Graph) []behaviour.RelationFactory
	OnActivate    func(ctx context.Context, env *Env) error
	OnDeactivate  func(ctx context.Context, env *Env) error
}

var (
	_ Plugin                    = (*Definition)(nil)
	_ ComponentProvider         = (*Definition)(nil)
	_ EntityTypeProvider        = (*Definition)(nil)
	_ RelationTypeProvider      = (*Definition)(nil)
	_ FlowTypeProvider          = (*Definition)(nil)
	_ EntityBehaviourProvider   = (*Definition)(nil)
	_ RelationBehaviourProvider = (*Definition)(nil)
	_ Activator                 = (*Definition)(nil)
)

func (d *Definition) Manifest() Manifest                  { return d.Meta }
func (d *Definition) Components() []types.Component       { return d.ComponentList }
func (d *Definition) EntityTypes() []types.EntityType     { return d.EntityList }
func (d *Definition) RelationTypes() []types.RelationType { return d.RelationList }
func (d *Definition) FlowTypes() []types.FlowType         { return d.FlowList }

func (d *Definition) EntityFactories(g *reactive.Graph) []behaviour.EntityFactory {
	if d.EntityBuild == nil {
		return nil
	}
	return d.EntityBuild(g)
}

func (d *Definition) RelationFactories(g *reactive.Graph) []behaviour.RelationFactory {
	if d.RelationBuild == nil {
		return nil
	}
	return d.RelationBuild(g)
}

func (d *Definition) Activate(ctx context.Context, env *Env) error {
	if d.OnActivate == nil {
		return nil
	}
	return d.OnActivate(ctx, env)
}

func (d *Definition) Deactivate(ctx context.Context, env *Env) error {
	if d.OnDeactivate == nil {
		return nil
	}
	return d.OnDeactivate(ctx, env)
}
