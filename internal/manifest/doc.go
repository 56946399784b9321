// Package manifest builds plugins from declarative documents.
//
// A manifest names a plugin, its dependencies and the components, entity,
// relation and flow types it provides. It may also declare expression
// behaviours: CEL gates attached to every instance of a target type.
// Manifests are written in YAML (one plugin per file) or CUE (any number
// of plugins under a top-level plugin struct):
//
//	plugin: demo: {
//		dependencies: ["base"]
//		entity_types: [{
//			id: "demo/doubler"
//			properties: [{name: "lhs", data_type: "number", socket_type: "input"}]
//		}]
//	}
//
// Both formats decode into the same document shape with mapstructure, so
// they accept exactly the same fields.
package manifest
