package runtime

import (
	"log/slog"
	"time"

	"github.com/roach88/rgf/internal/behaviour"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// PluginName is the name of the built-in runtime plugin.
const PluginName = "runtime"

var (
	// ShutdownType is the entity type that stops the runtime when its
	// trigger property becomes true.
	ShutdownType = types.NewTypeId(PluginName, "shutdown")

	// ShutdownBehaviour watches the trigger of a shutdown entity.
	ShutdownBehaviour = types.NewTypeId(PluginName, "shutdown_trigger")
)

// Shutdown entity properties.
const (
	PropertyTrigger = "trigger"
	PropertyDelay   = "delay"
	PropertyLabel   = "label"
)

func newRuntimePlugin(rt *Runtime) plugin.Plugin {
	return &plugin.Definition{
		Meta: plugin.Manifest{
			Name:        PluginName,
			Description: "Runtime control entities",
		},
		EntityList: []types.EntityType{{
			Id:          ShutdownType,
			Description: "Requests runtime shutdown when triggered",
			Properties: []types.PropertyType{
				types.InputProperty(PropertyTrigger, types.DataTypeBool),
				types.NewProperty(PropertyDelay, types.DataTypeNumber),
				types.NewProperty(PropertyLabel, types.DataTypeString),
			},
		}},
		EntityBuild: func(g *reactive.Graph) []behaviour.EntityFactory {
			return []behaviour.EntityFactory{
				behaviour.NewEntityFactory(ShutdownBehaviour, ShutdownType, func(e *reactive.EntityInstance) (*behaviour.Behaviour, error) {
					return newShutdownBehaviour(rt, g, e), nil
				}),
			}
		},
	}
}

// newShutdownBehaviour requests shutdown, after delay seconds, on every
// truthy trigger write. Connect ticks do not count as writes.
func newShutdownBehaviour(rt *Runtime, g *reactive.Graph, e *reactive.EntityInstance) *behaviour.Behaviour {
	c := e.Properties()
	w := g.NewWatch("shutdown", reactive.Endpoint{Container: c, Property: PropertyTrigger}, func(_ *reactive.Tick, ch reactive.Change) {
		if !value.Truthy(ch.Value) {
			return
		}
		var delay time.Duration
		if v, err := c.Get(PropertyDelay); err == nil {
			if secs, ok := value.AsFloat(v); ok && secs > 0 {
				delay = time.Duration(secs * float64(time.Second))
			}
		}
		slog.Info("shutdown entity triggered", "entity", e.ID().String(), "delay", delay)
		rt.RequestShutdownAfter(delay)
	})
	return behaviour.New(ShutdownBehaviour, e, w)
}
