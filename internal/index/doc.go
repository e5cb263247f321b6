// Package index implements the vault's State Index.
//
// The index holds every vault entry ever created, keyed by state reference,
// with secondary indices by status, by kind and by linking identifier.
// Readers take an immutable Snapshot with a single atomic load and never
// block. Writers go through a Batch: exactly one batch is open at a time,
// mutations are staged on a private copy, and Commit publishes the copy
// atomically. A discarded batch leaves no trace.
//
// Entries are never removed. Status moves UNCONSUMED -> CONSUMED once.
package index
