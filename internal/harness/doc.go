// Package harness runs scripted scenarios against a cortex graph.
//
// A scenario names a CUE graph file, trains the graph on a repeating input
// stream, then runs a list of process and resolve steps, checking each
// reply against an optional expect clause.
//
// # Scenario Format
//
//	name: chain_recall
//	description: "Resolving the bottom output recovers the input"
//	graph: graphs/chain.cue
//	seed: 7
//	train:
//	  ticks: 200
//	  stream:
//	    sensor: [[0.1], [0.9]]
//	steps:
//	  - process:
//	      inputs: { sensor: [0.9] }
//	      request: classify
//	    expect:
//	      outputs_active: [bottom, top]
//	  - resolve:
//	      at_output: bottom
//	    expect:
//	      resolved: true
//	      resolution:
//	        sensor: { active: true, steps: 1, values: [[0.9]], tolerance: 0.2 }
//
// Graph paths are relative to the scenario file. A resolve step either
// gives row and col or names an output of the most recent successful
// process step, whose published coordinates are used.
//
// # Determinism
//
// Each scenario builds its graph from its own seed, records into a fresh
// in-memory store, and uses the scenario name as session id. The same
// scenario always produces the same trace, which is compared against a
// golden file. Traces carry only ints, strings and flags so they can be
// canonically encoded.
package harness
