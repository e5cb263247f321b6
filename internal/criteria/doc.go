// Package criteria defines the vault query criteria algebra.
//
// Criteria is a sealed interface: Vault (status, kinds and soft-lock
// filters), Linking (linking-identifier and party filters) and Composite
// (AND/OR over two criteria). Values are immutable. And and Or always return
// a new Composite and never touch their operands.
//
// There is exactly one representation per variant. Builders are the
// canonical construction path; the Set* methods are thin adapters that
// rebuild the value through the builder, so a value reached field by field
// is bit-for-bit equal to one reached through a builder with the same
// logical fields. Fingerprint exposes that equality as a content hash.
//
// Validate rejects criteria that can never match, for example an exact
// linking filter with no identifiers. The query executor validates again at
// compile time, so criteria assembled through setters are checked before
// any work is done.
package criteria
