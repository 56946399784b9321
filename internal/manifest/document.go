package manifest

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/plugins/expression"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// Document is the decoded form shared by the YAML and CUE loaders.
type Document struct {
	Name          string         `mapstructure:"name"`
	Version       string         `mapstructure:"version"`
	Description   string         `mapstructure:"description"`
	Dependencies  []string       `mapstructure:"dependencies"`
	Components    []TypeDoc      `mapstructure:"components"`
	EntityTypes   []TypeDoc      `mapstructure:"entity_types"`
	RelationTypes []TypeDoc      `mapstructure:"relation_types"`
	FlowTypes     []FlowDoc      `mapstructure:"flow_types"`
	Behaviours    []BehaviourDoc `mapstructure:"behaviours"`
}

// TypeDoc describes a component, entity type or relation type. Outbound
// and Inbound only apply to relation types, Components not to components.
type TypeDoc struct {
	ID          string         `mapstructure:"id"`
	Description string         `mapstructure:"description"`
	Components  []string       `mapstructure:"components"`
	Outbound    string         `mapstructure:"outbound"`
	Inbound     string         `mapstructure:"inbound"`
	Properties  []PropertyDoc  `mapstructure:"properties"`
	Extensions  map[string]any `mapstructure:"extensions"`
}

type PropertyDoc struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	DataType    string         `mapstructure:"data_type"`
	SocketType  string         `mapstructure:"socket_type"`
	Mutability  string         `mapstructure:"mutability"`
	Default     any            `mapstructure:"default"`
	Extensions  map[string]any `mapstructure:"extensions"`
}

type FlowDoc struct {
	ID          string              `mapstructure:"id"`
	Description string              `mapstructure:"description"`
	Wrapper     string              `mapstructure:"wrapper"`
	Entities    []EntityTemplateDoc `mapstructure:"entities"`
	Relations   []RelationTemplDoc  `mapstructure:"relations"`
}

type EntityTemplateDoc struct {
	Key        string         `mapstructure:"key"`
	Type       string         `mapstructure:"type"`
	Properties map[string]any `mapstructure:"properties"`
}

type RelationTemplDoc struct {
	Outbound   string         `mapstructure:"outbound"`
	Type       string         `mapstructure:"type"`
	Inbound    string         `mapstructure:"inbound"`
	Properties map[string]any `mapstructure:"properties"`
}

// BehaviourDoc declares a CEL gate behaviour: result = expression(lhs, rhs)
// on every entity whose type or component is Target.
type BehaviourDoc struct {
	ID         string `mapstructure:"id"`
	Target     string `mapstructure:"target"`
	Expression string `mapstructure:"expression"`
}

// Decode turns a generic map, as produced by yaml.v3 or cue.Value.Decode,
// into a Document. Unknown fields are rejected.
func Decode(raw any) (*Document, error) {
	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &doc,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return &doc, nil
}

// Build validates the document and assembles the plugin.
func (d *Document) Build() (*plugin.Definition, error) {
	if d.Name == "" {
		return nil, invalid("name", "plugin name is required")
	}
	def := &plugin.Definition{
		Meta: plugin.Manifest{
			Name:         d.Name,
			Version:      d.Version,
			Description:  d.Description,
			Dependencies: d.Dependencies,
		},
	}

	for i, c := range d.Components {
		field := fmt.Sprintf("components[%d]", i)
		id, props, ext, err := c.common(field)
		if err != nil {
			return nil, err
		}
		def.ComponentList = append(def.ComponentList, types.Component{
			Id: id, Description: c.Description, Properties: props, Extensions: ext,
		})
	}
	for i, e := range d.EntityTypes {
		field := fmt.Sprintf("entity_types[%d]", i)
		id, props, ext, err := e.common(field)
		if err != nil {
			return nil, err
		}
		comps, err := parseIDs(field+".components", e.Components)
		if err != nil {
			return nil, err
		}
		def.EntityList = append(def.EntityList, types.EntityType{
			Id: id, Description: e.Description, Components: comps, Properties: props, Extensions: ext,
		})
	}
	for i, r := range d.RelationTypes {
		field := fmt.Sprintf("relation_types[%d]", i)
		id, props, ext, err := r.common(field)
		if err != nil {
			return nil, err
		}
		comps, err := parseIDs(field+".components", r.Components)
		if err != nil {
			return nil, err
		}
		out, err := parseEndpoint(field+".outbound", r.Outbound)
		if err != nil {
			return nil, err
		}
		in, err := parseEndpoint(field+".inbound", r.Inbound)
		if err != nil {
			return nil, err
		}
		def.RelationList = append(def.RelationList, types.RelationType{
			Id: id, Description: r.Description, Outbound: out, Inbound: in,
			Components: comps, Properties: props, Extensions: ext,
		})
	}
	for i, f := range d.FlowTypes {
		ft, err := f.build(fmt.Sprintf("flow_types[%d]", i))
		if err != nil {
			return nil, err
		}
		def.FlowList = append(def.FlowList, ft)
	}

	if len(d.Behaviours) > 0 {
		build, err := d.behaviours()
		if err != nil {
			return nil, err
		}
		def.EntityBuild = build
	}
	return def, nil
}

func (t TypeDoc) common(field string) (types.TypeId, []types.PropertyType, types.Extensions, error) {
	id, err := types.ParseTypeId(t.ID)
	if err != nil || id == types.Wildcard {
		return types.TypeId{}, nil, nil, invalid(field+".id", "invalid type id %q", t.ID)
	}
	var props []types.PropertyType
	for i, p := range t.Properties {
		pt, err := p.build(fmt.Sprintf("%s.properties[%d]", field, i))
		if err != nil {
			return types.TypeId{}, nil, nil, err
		}
		props = append(props, pt)
	}
	ext, err := extensions(field+".extensions", t.Extensions)
	if err != nil {
		return types.TypeId{}, nil, nil, err
	}
	return id, props, ext, nil
}

func (p PropertyDoc) build(field string) (types.PropertyType, error) {
	if p.Name == "" {
		return types.PropertyType{}, invalid(field+".name", "property name is required")
	}
	dt, err := types.ParseDataType(p.DataType)
	if err != nil {
		return types.PropertyType{}, invalid(field+".data_type", "%v", err)
	}
	st, err := types.ParseSocketType(p.SocketType)
	if err != nil {
		return types.PropertyType{}, invalid(field+".socket_type", "%v", err)
	}
	mu, err := types.ParseMutability(p.Mutability)
	if err != nil {
		return types.PropertyType{}, invalid(field+".mutability", "%v", err)
	}
	pt := types.PropertyType{
		Name:        p.Name,
		Description: p.Description,
		DataType:    dt,
		SocketType:  st,
		Mutability:  mu,
	}
	if p.Default != nil {
		v, err := value.FromAny(p.Default)
		if err != nil {
			return types.PropertyType{}, invalid(field+".default", "%v", err)
		}
		if !dt.Accepts(v) {
			return types.PropertyType{}, invalid(field+".default", "%s default for %s property", value.Kind(v), dt)
		}
		pt.Default = v
	}
	if pt.Extensions, err = extensions(field+".extensions", p.Extensions); err != nil {
		return types.PropertyType{}, err
	}
	return pt, nil
}

func (f FlowDoc) build(field string) (types.FlowType, error) {
	id, err := types.ParseTypeId(f.ID)
	if err != nil || id == types.Wildcard {
		return types.FlowType{}, invalid(field+".id", "invalid type id %q", f.ID)
	}
	wrapper, err := types.ParseTypeId(f.Wrapper)
	if err != nil || wrapper == types.Wildcard {
		return types.FlowType{}, invalid(field+".wrapper", "invalid type id %q", f.Wrapper)
	}
	ft := types.FlowType{Id: id, Description: f.Description, Wrapper: wrapper}
	for i, e := range f.Entities {
		ef := fmt.Sprintf("%s.entities[%d]", field, i)
		if e.Key == "" || e.Key == types.WrapperKey {
			return types.FlowType{}, invalid(ef+".key", "invalid entity key %q", e.Key)
		}
		typ, err := types.ParseTypeId(e.Type)
		if err != nil {
			return types.FlowType{}, invalid(ef+".type", "invalid type id %q", e.Type)
		}
		props, err := valueMap(ef+".properties", e.Properties)
		if err != nil {
			return types.FlowType{}, err
		}
		ft.Entities = append(ft.Entities, types.EntityTemplate{Key: e.Key, Type: typ, Properties: props})
	}
	for i, r := range f.Relations {
		rf := fmt.Sprintf("%s.relations[%d]", field, i)
		typ, err := types.ParseTypeId(r.Type)
		if err != nil {
			return types.FlowType{}, invalid(rf+".type", "invalid type id %q", r.Type)
		}
		props, err := valueMap(rf+".properties", r.Properties)
		if err != nil {
			return types.FlowType{}, err
		}
		ft.Relations = append(ft.Relations, types.RelationTemplate{
			Outbound: r.Outbound, Type: typ, Inbound: r.Inbound, Properties: props,
		})
	}
	return ft, nil
}

// behaviours compiles every expression up front so a bad manifest fails
// to load instead of failing per instance.
func (d *Document) behaviours() (func(g *reactive.Graph) []behaviour.EntityFactory, error) {
	env, err := expression.NewEnv()
	if err != nil {
		return nil, err
	}
	type compiled struct {
		id, target types.TypeId
		fn         reactive.BinaryFunc
	}
	var all []compiled
	for i, b := range d.Behaviours {
		field := fmt.Sprintf("behaviours[%d]", i)
		id, err := types.ParseTypeId(b.ID)
		if err != nil || id == types.Wildcard {
			return nil, invalid(field+".id", "invalid type id %q", b.ID)
		}
		target, err := types.ParseTypeId(b.Target)
		if err != nil || target == types.Wildcard {
			return nil, invalid(field+".target", "invalid type id %q", b.Target)
		}
		fn, err := expression.Compile(env, b.Expression)
		if err != nil {
			return nil, invalid(field+".expression", "%v", err)
		}
		all = append(all, compiled{id: id, target: target, fn: fn})
	}
	return func(g *reactive.Graph) []behaviour.EntityFactory {
		fs := make([]behaviour.EntityFactory, 0, len(all))
		for _, c := range all {
			fs = append(fs, behaviour.NewEntityFactory(c.id, c.target, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
				return base.GateBehaviour(g, c.id, e, c.fn), nil
			}))
		}
		return fs
	}, nil
}

func parseIDs(field string, ss []string) ([]types.TypeId, error) {
	out := make([]types.TypeId, 0, len(ss))
	for i, s := range ss {
		id, err := types.ParseTypeId(s)
		if err != nil || id == types.Wildcard {
			return nil, invalid(fmt.Sprintf("%s[%d]", field, i), "invalid type id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

// parseEndpoint treats an empty endpoint as the wildcard.
func parseEndpoint(field, s string) (types.TypeId, error) {
	if s == "" {
		return types.Wildcard, nil
	}
	id, err := types.ParseTypeId(s)
	if err != nil {
		return types.TypeId{}, invalid(field, "invalid type id %q", s)
	}
	return id, nil
}

func valueMap(field string, m map[string]any) (map[string]value.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(m))
	for k, raw := range m {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, invalid(field+"."+k, "%v", err)
		}
		out[k] = v
	}
	return out, nil
}

func extensions(field string, m map[string]any) (types.Extensions, error) {
	vals, err := valueMap(field, m)
	if err != nil || vals == nil {
		return nil, err
	}
	return types.Extensions(vals), nil
}
