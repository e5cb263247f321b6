// Package query implements the Query Executor.
//
// Compile turns a criteria tree into a Plan. AND chains are flattened and
// reordered so that vault (status) filters come first: the first child
// produces the candidate positions from a secondary index, and every other
// child only filters them. OR nodes union their children. Leaves are
// evaluated against one immutable index snapshot, so a query never sees a
// half-applied batch.
//
// Results are in index insertion order with no duplicates.
package query
