// Package reactive implements the propagation engine: property containers,
// reactive instances and the operation/gate dataflow nodes that connect
// them.
//
// # Propagation
//
// Every property write opens a Tick (or joins the one already in flight).
// Writing a property stores the value, bumps its version and notifies all
// subscribers synchronously. Node subscribers do not recompute on the spot;
// they take the new operand and enqueue themselves on the tick's frontier.
//
// The tick then runs passes. A pass evaluates every node on the frontier
// once, so each pass advances propagation by one hop. A node whose result
// changed writes it to its output properties, which enqueues the next hop.
// The tick ends at a fixed point (empty frontier) or after MaxPasses passes,
// in which case a *TickNotConvergedError is returned and the last computed
// values stay in place. Cyclic subgraphs are allowed; the pass cap is what
// bounds them.
//
// # Arena
//
// Nodes and instances live in a Graph and are addressed by NodeID and UUID.
// Property slots hold NodeIDs, never node pointers, so removing a node from
// the arena is enough to stop it receiving operands.
//
// # Thread safety
//
// Containers use one mutex per property slot and a sync.Map for the slot
// table. No lock is held while subscribers run. Independent writers on
// different goroutines each drive their own tick.
package reactive
