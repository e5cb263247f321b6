package query

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
)

// ctxCheckInterval is how many entries a filter scans between
// cancellation checks.
const ctxCheckInterval = 1024

// node is one compiled criteria node.
type node interface {
	// eval returns matching positions in ascending order.
	eval(ctx context.Context, snap *index.Snapshot) ([]int, error)

	// match tests a single entry.
	match(e ledger.Entry) bool

	// rank orders AND children: lower ranks produce candidates first.
	rank() int

	describe(b *strings.Builder)
}

// vaultNode filters by status, kind set and soft-lock policy. Its status
// filter is answered by the status index.
type vaultNode struct {
	status     ledger.Status
	kinds      map[ledger.Kind]struct{} // nil = every kind
	softLocked criteria.SoftLockPolicy
}

func (n *vaultNode) eval(ctx context.Context, snap *index.Snapshot) ([]int, error) {
	return filter(ctx, snap, snap.ByStatus(n.status), n.match)
}

func (n *vaultNode) match(e ledger.Entry) bool {
	if !e.Status.Matches(n.status) {
		return false
	}
	if n.kinds != nil {
		if _, ok := n.kinds[e.Record.Kind]; !ok {
			return false
		}
	}
	switch n.softLocked {
	case criteria.SoftLockExclude:
		return e.LockID == ""
	case criteria.SoftLockOnly:
		return e.LockID != ""
	}
	return true
}

func (n *vaultNode) rank() int { return 0 }

func (n *vaultNode) describe(b *strings.Builder) {
	kinds := make([]string, 0, len(n.kinds))
	for k := range n.kinds {
		kinds = append(kinds, string(k))
	}
	slices.Sort(kinds)
	fmt.Fprintf(b, "status[%s] kinds%v softLocked=%s", n.status, kinds, n.softLocked)
}

// linkingNode filters by linking identifier and participants.
type linkingNode struct {
	linearIDs   []ledger.LinkingID
	externalIDs map[string]struct{}
	parties     []ledger.Party
	exact       bool
}

func (n *linkingNode) selective() bool {
	return len(n.linearIDs) > 0 || len(n.externalIDs) > 0
}

func (n *linkingNode) eval(ctx context.Context, snap *index.Snapshot) ([]int, error) {
	if !n.selective() {
		return filter(ctx, snap, snap.Linkable(), n.match)
	}
	var candidates []int
	for _, id := range n.linearIDs {
		if id.External != "" && !n.exact {
			candidates = union(candidates, snap.ByExternal(id.External))
		} else {
			candidates = union(candidates, snap.ByLinking(id.Key()))
		}
	}
	for ext := range n.externalIDs {
		candidates = union(candidates, snap.ByExternal(ext))
	}
	return filter(ctx, snap, candidates, n.match)
}

func (n *linkingNode) match(e ledger.Entry) bool {
	l := e.Record.Linking
	if l == nil {
		return false
	}
	if n.selective() && !n.named(*l) {
		return false
	}
	if len(n.parties) > 0 && !e.Record.HasParticipant(n.parties) {
		return false
	}
	return true
}

func (n *linkingNode) named(l ledger.LinkingID) bool {
	for _, id := range n.linearIDs {
		switch {
		case n.exact:
			if id == l {
				return true
			}
		case id.External != "":
			if id.External == l.External {
				return true
			}
		default:
			if id.ID == l.ID {
				return true
			}
		}
	}
	if l.External != "" {
		if _, ok := n.externalIDs[l.External]; ok {
			return true
		}
	}
	return false
}

func (n *linkingNode) rank() int {
	if n.selective() {
		return 1
	}
	return 2
}

func (n *linkingNode) describe(b *strings.Builder) {
	fmt.Fprintf(b, "linking[ids=%d externals=%d parties=%d exact=%t]",
		len(n.linearIDs), len(n.externalIDs), len(n.parties), n.exact)
}

// andNode intersects its children.
type andNode struct {
	children []node // sorted by rank
}

func (n *andNode) eval(ctx context.Context, snap *index.Snapshot) ([]int, error) {
	candidates, err := n.children[0].eval(ctx, snap)
	if err != nil {
		return nil, err
	}
	rest := n.children[1:]
	return filter(ctx, snap, candidates, func(e ledger.Entry) bool {
		for _, c := range rest {
			if !c.match(e) {
				return false
			}
		}
		return true
	})
}

func (n *andNode) match(e ledger.Entry) bool {
	for _, c := range n.children {
		if !c.match(e) {
			return false
		}
	}
	return true
}

func (n *andNode) rank() int { return n.children[0].rank() }

func (n *andNode) describe(b *strings.Builder) {
	describeChildren(b, "AND", n.children)
}

// orNode unions its children.
type orNode struct {
	children []node
}

func (n *orNode) eval(ctx context.Context, snap *index.Snapshot) ([]int, error) {
	var out []int
	for _, c := range n.children {
		res, err := c.eval(ctx, snap)
		if err != nil {
			return nil, err
		}
		out = union(out, res)
	}
	return out, nil
}

func (n *orNode) match(e ledger.Entry) bool {
	for _, c := range n.children {
		if c.match(e) {
			return true
		}
	}
	return false
}

func (n *orNode) rank() int { return 3 }

func (n *orNode) describe(b *strings.Builder) {
	describeChildren(b, "OR", n.children)
}

func describeChildren(b *strings.Builder, op string, children []node) {
	b.WriteString(op)
	b.WriteString("(")
	for i, c := range children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.describe(b)
	}
	b.WriteString(")")
}

// filter keeps the candidate positions whose entries satisfy keep.
func filter(ctx context.Context, snap *index.Snapshot, candidates []int, keep func(ledger.Entry) bool) ([]int, error) {
	out := make([]int, 0, len(candidates))
	for i, pos := range candidates {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if keep(snap.At(pos)) {
			out = append(out, pos)
		}
	}
	return out, nil
}

// union merges two ascending position lists without duplicates.
func union(a, b []int) []int {
	if len(a) == 0 {
		return slices.Clone(b)
	}
	if len(b) == 0 {
		return a
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := cmp.Compare(a[i], b[j]); {
		case c < 0:
			out = append(out, a[i])
			i++
		case c > 0:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
