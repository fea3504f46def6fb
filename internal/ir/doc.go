// Package ir provides the graph description types shared by the compiler,
// the engine and the store.
//
// This package imports nothing internal. Everything in it is float-free so
// a graph description has exactly one canonical JSON encoding and therefore
// one content hash (see GraphHash). Runtime vectors live in package vector.
//
// Key design constraints:
//   - NO float types in descriptions; grid sizes, dimensions and counts are ints
//   - Node ids share one namespace across input channels and sections
//   - All JSON tags use snake_case
package ir
