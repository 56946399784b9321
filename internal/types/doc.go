// Package types holds the type registry of the reactive graph.
//
// The registry is partitioned by kind: components, entity types, relation
// types and flow types. Each partition maps a TypeId to its definition and
// is read lock-free; writers are serialised per partition. Registering any
// type records its namespace in the append-only NamespaceSet.
//
// Instances hold references to the types they were built from (Acquire and
// Release). A referenced type cannot be unregistered until the last
// reference goes away, which is how plugin deactivation is deferred while
// instances are still alive.
package types
