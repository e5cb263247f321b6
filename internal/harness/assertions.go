package harness

import (
	"fmt"
	"slices"
	"strings"
)

// checkQuery compares a query result with the query's expectations.
func checkQuery(q Query, qr QueryResult, result *Result) {
	if q.ExpectCount != nil && *q.ExpectCount != qr.Count {
		result.AddError(fmt.Sprintf("query %s: expected %d results, got %d %v", q.Name, *q.ExpectCount, qr.Count, qr.States))
	}
	if q.ExpectStates != nil && !slices.Equal(q.ExpectStates, qr.States) {
		result.AddError(fmt.Sprintf("query %s: expected states [%s], got [%s]",
			q.Name, strings.Join(q.ExpectStates, " "), strings.Join(qr.States, " ")))
	}
}

// sameSet reports whether a and b hold the same labels, ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
