// Package engine builds a cortex graph from its description and runs it.
//
// ARCHITECTURE:
//
// A Cortex owns one vector map per section, one integration queue per
// receptor slot, and the wiring between them. Nodes are addressed by index;
// the Kind tag (input channel or section) is resolved once at Build.
//
// Forward pass (Process), once per tick:
//  1. Inputs are validated against the declared channels
//  2. Each input is copied into every receptor slot it feeds
//  3. Sections run in the declared execution order; a section whose slots
//     are all ready learns (or classifies) the concatenation of their
//     abstractions
//  4. Classifying propagate-mode sections enqueue their normalized best
//     match to every downstream slot
//  5. Sections bound to output channels publish a 6-dim location vector
//
// Reverse pass (Resolve): a wavefront walks the DAG from a queried grid
// point back to the input channels. Each node collects views until its
// fan-in count is met, merges them by centroid join, and (if a section)
// expands its single view into one view per receptor slot, pushed to the
// slot's source. Expanded nodes are never reactivated in the same call.
//
// Runner serializes Process and Resolve requests from any goroutine onto a
// single-writer loop and records each one.
//
// Errors: configuration faults (unknown ids, dimension mismatches, missing
// fan-in entries) and resolver invariant violations are returned as
// *RuntimeError. There is no retry path; the engine performs no I/O.
package engine
