// Package plugin extends the runtime vocabulary through plugins.
//
// A plugin declares a [Manifest] (name and dependencies) and implements any
// of the provider interfaces: components, entity/relation/flow types, and
// behaviour factories. The [Resolver] activates plugins in dependency
// order and deactivates them in reverse.
//
// # Activation
//
// Start first rejects dependency cycles among the plugins that are not yet
// active (CYCLIC_DEPENDENCY, nothing is activated). It then runs passes: a
// pass activates every pending plugin whose dependencies were all active
// when the pass began, in name order. A failing plugin is rolled back,
// marked Failed and skipped; the rest of the pass continues. Passes repeat
// until one changes nothing.
//
// # Deactivation
//
// Stop deactivates a plugin once no active plugin depends on it. Its
// behaviour factories are removed and its live behaviours disconnected
// before its types are unregistered. A type still referenced by a live
// instance (TYPE_IN_USE) leaves the plugin Stopping until a later run.
//
// Start and Stop hold one resolver-wide lock; no two runs overlap.
package plugin
