package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/runtime"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// =============================================================================
// YAML
// =============================================================================

func TestLoadYAML(t *testing.T) {
	def, err := LoadYAML("testdata/thermostat.yaml")
	require.NoError(t, err)

	assert.Equal(t, plugin.Manifest{
		Name:         "thermostat",
		Version:      "0.1.0",
		Description:  "Heating control built from expression gates",
		Dependencies: []string{"base"},
	}, def.Manifest())

	require.Len(t, def.ComponentList, 1)
	props := def.ComponentList[0].Properties
	require.Len(t, props, 3)
	assert.Equal(t, types.SocketInput, props[1].SocketType)
	assert.Equal(t, value.Int(20), props[1].Default)
	assert.Equal(t, types.DataTypeBool, props[2].DataType)

	require.Len(t, def.EntityList, 1)
	et := def.EntityList[0]
	assert.Equal(t, types.MustParseTypeId("thermostat/controller"), et.Id)
	assert.Equal(t, []types.TypeId{types.MustParseTypeId("thermostat/gate"), base.LabeledComponent}, et.Components)
	assert.Equal(t, value.String("flame"), et.Extensions["icon"])

	require.Len(t, def.RelationList, 1)
	assert.Equal(t, types.Wildcard, def.RelationList[0].Inbound)

	require.Len(t, def.FlowList, 1)
	assert.Equal(t, types.WrapperKey, def.FlowList[0].Relations[0].Inbound)
	assert.NotNil(t, def.EntityBuild)
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(error) bool
	}{
		{"syntax", "name: [", IsSyntax},
		{"missing name", "version: 1.0.0", IsInvalid},
		{"unknown field", "name: x\ncolour: red", IsInvalid},
		{"bad type id", "name: x\ncomponents: [{id: nonamespace}]", IsInvalid},
		{"bad data type", "name: x\ncomponents: [{id: x/c, properties: [{name: p, data_type: decimal}]}]", IsInvalid},
		{"default mismatch", "name: x\ncomponents: [{id: x/c, properties: [{name: p, data_type: bool, default: 3}]}]", IsInvalid},
		{"bad expression", "name: x\nbehaviours: [{id: x/b, target: x/t, expression: 'lhs +'}]", IsInvalid},
		{"wrapper key reused", "name: x\nflow_types: [{id: x/f, wrapper: x/w, entities: [{key: '@wrapper', type: x/e}]}]", IsInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML("inline.yaml", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Contains(t, err.Error(), "inline.yaml")
		})
	}
}

// =============================================================================
// CUE
// =============================================================================

func TestLoadCUEDir(t *testing.T) {
	defs, err := LoadCUEDir("testdata/cue")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	counter, labels := defs[0], defs[1]
	assert.Equal(t, "counter", counter.Meta.Name)
	assert.Equal(t, []string{"base"}, counter.Meta.Dependencies)
	require.Len(t, counter.EntityList, 1)
	assert.Equal(t, value.Int(1), counter.EntityList[0].Properties[1].Default)

	assert.Equal(t, "labels", labels.Meta.Name)
	require.Len(t, labels.ComponentList, 1)
	assert.Equal(t, value.Array{value.String("a"), value.String("b")}, labels.ComponentList[0].Properties[0].Default)
}

func TestParseCUE_Errors(t *testing.T) {
	_, err := ParseCUE("bad.cue", "plugin: x: {")
	require.Error(t, err)
	assert.True(t, IsSyntax(err))
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.True(t, me.Pos.IsValid())

	_, err = ParseCUE("empty.cue", `other: 1`)
	assert.Error(t, err)

	_, err = ParseCUE("field.cue", `plugin: x: components: [{id: "x/c", extra: true}]`)
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "plugin.x")
}

// =============================================================================
// Runtime integration
// =============================================================================

func TestLoader_InstallsBeforeActivation(t *testing.T) {
	rt := runtime.New()
	require.NoError(t, rt.Install(base.Plugin()))
	loader := NewLoader(rt, "testdata/thermostat.yaml", "testdata/cue")
	rt.AddLifecycle(loader)

	report, err := rt.Init(context.Background())
	require.NoError(t, err)
	defer func() { _ = rt.Shutdown(context.Background()) }()

	assert.ElementsMatch(t, []string{"thermostat", "counter", "labels"}, loader.Loaded())
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Unsatisfied)
	for _, name := range loader.Loaded() {
		s, ok := rt.Resolver().State(name)
		require.True(t, ok)
		assert.Equal(t, plugin.StateActive, s, name)
	}
}

func TestLoader_Filter(t *testing.T) {
	rt := runtime.New()
	require.NoError(t, rt.Install(base.Plugin()))
	loader := NewLoader(rt, "testdata/cue").Filter(func(name string) bool { return name != "labels" })
	rt.AddLifecycle(loader)

	_, err := rt.Init(context.Background())
	require.NoError(t, err)
	defer func() { _ = rt.Shutdown(context.Background()) }()

	assert.Equal(t, []string{"counter"}, loader.Loaded())
	_, ok := rt.Resolver().State("labels")
	assert.False(t, ok)
}

func TestManifestPlugins_Behave(t *testing.T) {
	rt := runtime.New()
	require.NoError(t, rt.Install(base.Plugin()))
	rt.AddLifecycle(NewLoader(rt, "testdata/thermostat.yaml", "testdata/cue"))
	_, err := rt.Init(context.Background())
	require.NoError(t, err)
	defer func() { _ = rt.Shutdown(context.Background()) }()
	im := rt.Instances()

	ctrl, err := im.CreateEntity(types.MustParseTypeId("thermostat/controller"), map[string]value.Value{
		"lhs": value.Int(18),
	})
	require.NoError(t, err)
	got, _ := ctrl.Properties().Get("result")
	assert.Equal(t, value.Bool(true), got)
	require.NoError(t, ctrl.Properties().Set("lhs", value.Float(22.5)))
	got, _ = ctrl.Properties().Get("result")
	assert.Equal(t, value.Bool(false), got)

	step, err := im.CreateEntity(types.MustParseTypeId("counter/step"), map[string]value.Value{"lhs": value.Int(41)})
	require.NoError(t, err)
	got, _ = step.Properties().Get("result")
	assert.Equal(t, value.Int(42), got)

	room, err := im.InstantiateFlow(types.MustParseTypeId("thermostat/room"), nil)
	require.NoError(t, err)
	got, _ = room.Wrapper.Properties().Get(base.PropertyValue)
	assert.Equal(t, value.Bool(true), got)

	require.NoError(t, room.Entities["controller"].Properties().Set("lhs", value.Int(30)))
	got, _ = room.Wrapper.Properties().Get(base.PropertyValue)
	assert.Equal(t, value.Bool(false), got)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("doc.go")
	assert.True(t, IsInvalid(err))

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)
}
