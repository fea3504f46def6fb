// Package store provides SQLite-backed storage for cortex session history.
//
// A session is one run of a built graph. The store keeps an append-only
// log of what the session did:
//   - Sessions: graph name and content hash, seed, versions
//   - Ticks: the request and output table of every Process call
//   - Resolutions: the resolution table of every Resolve call
//
// Trained map cells are not persisted. A session can be re-run
// bit-for-bit from its graph, seed and recorded input stream instead.
//
// # Ordering
//
// Every row carries seq, the runner's logical clock. Reads order by seq,
// never by wall time, so two runs of the same session read back
// identically.
//
// # Idempotency
//
// Writes use ON CONFLICT DO NOTHING: re-recording a tick or resolution
// with the same key is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Ticks and resolutions must reference a session
package store
