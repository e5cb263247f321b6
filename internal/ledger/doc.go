// Package ledger provides the foundational vault data model.
//
// This package contains the types every other internal package shares:
// state references, consumption status, kind tags, linking identifiers,
// parties, records, vault entries and validated transactions. It also owns
// the kind registry, canonical JSON encoding and content hashing. ledger
// imports nothing internal, so it stays the bottom layer of the module.
//
// Key design constraints:
//   - NO float types in payloads - amounts are int64 minor units
//   - Status moves UNCONSUMED -> CONSUMED exactly once; ALL is query-only
//   - Capabilities (linking id, participants) are resolved when a Record is
//     built through the Registry, never at query time
//   - Record payloads are stored as canonical JSON so identical states
//     always produce identical bytes and identical transaction ids
package ledger
