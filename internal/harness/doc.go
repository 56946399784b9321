// Package harness runs YAML scenarios against a real runtime and checks
// the resulting write trace.
//
// # Scenario Format
//
//	name: adder_chain
//	description: "Connected adders propagate"
//	plugins: [base, numeric]
//	manifests: [../manifests/thermostat.yaml]
//	setup:
//	  - create: a
//	    type: numeric/add
//	    properties: { lhs: 1, rhs: 2 }
//	  - connect: link
//	    outbound: a
//	    type: base/connector
//	    inbound: b
//	    properties: { outbound_property_name: result, inbound_property_name: lhs }
//	flow:
//	  - set: a.lhs
//	    value: 5
//	    expect: { a.result: 7 }
//	assertions:
//	  - type: trace_count
//	    property: b.result
//	    count: 1
//
// Every step does exactly one of create, connect, flow (instantiate a
// flow type), set, delete or tick. Instances are referred to by alias; a
// flow instantiated as "room" names its wrapper "room" and its entities
// "room.<key>". Property references are "<alias>.<property>".
//
// # Assertion Types
//
//   - trace_contains: a write to property (with value, if given) is in the trace
//   - trace_order: the first writes to the listed properties appear in order
//   - trace_count: property is written exactly count times
//   - final_value: property holds value after the flow
//   - plugin_state: plugin is in state after the flow
//
// # Deterministic Testing
//
// Each scenario gets a fresh runtime with sequential instance ids and a
// fresh logical clock, and only writes and instance events made by flow
// steps are traced. The same scenario always produces the same trace,
// which RunWithGolden compares against testdata/golden.
package harness
