// Package behaviour binds reactive instances to dataflow subgraphs.
//
// A Behaviour owns the operation and gate nodes it was built with and
// walks a fixed lifecycle:
//
//	Created --Validate--> Valid --Wire--> Ready --Connect--> Connected
//	                                        ^                   |
//	                                        +----Disconnect-----+
//
// Only a Connected behaviour lets property writes reach its nodes.
// Destroy is allowed from any state, detaches every node and is
// idempotent. Factories create behaviours for matching instances and the
// Manager keeps track of the live ones per instance and per owning plugin.
package behaviour
