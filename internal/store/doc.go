// Package store provides SQLite-backed durable storage for the vault.
//
// The store is the durable twin of the in-memory State Index:
//   - transactions: one row per recorded transaction
//   - vault_states: one row per vault entry, in insertion order (pos)
//   - state_parties: participants of each entry
//   - vault_meta: the last committed sequence number
//
// # Critical Patterns
//
// Atomic batches
//   - All writes of one recording batch run in one SQL transaction (WithTx)
//   - The caller publishes its in-memory changes only after Commit succeeds
//
// Logical identity and time
//   - Ordering uses seq and pos, NEVER timestamps
//   - Rebuilding the index from the store yields an identical snapshot
//
// Deterministic query results
//   - All reads ORDER BY pos ASC or seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SQL failures surface as *ledger.StorageError. Constraint violations on
// state references surface as *ledger.ConflictError.
package store
