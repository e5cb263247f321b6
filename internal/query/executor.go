package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
)

// Executor compiles and runs criteria against index snapshots.
// It holds no mutable state and is safe for concurrent use.
type Executor struct {
	registry *ledger.Registry
}

// NewExecutor creates an executor. The registry resolves kind filters to
// their descendant kinds; with a nil registry kinds match exactly.
func NewExecutor(registry *ledger.Registry) *Executor {
	return &Executor{registry: registry}
}

// Plan is a compiled criteria tree.
type Plan struct {
	root node
}

// String renders the evaluation order, for debugging.
func (p *Plan) String() string {
	var b strings.Builder
	p.root.describe(&b)
	return b.String()
}

// Run evaluates the plan against snap and returns matching entries in
// insertion order.
func (p *Plan) Run(ctx context.Context, snap *index.Snapshot) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := p.root.eval(ctx, snap)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, len(positions))
	for i, pos := range positions {
		out[i] = snap.At(pos)
	}
	return out, nil
}

// Compile validates c and builds its plan. Invalid criteria fail here,
// before any entry is read.
func (x *Executor) Compile(c criteria.Criteria) (*Plan, error) {
	if err := criteria.Validate(c); err != nil {
		return nil, err
	}
	root, err := x.compile(c)
	if err != nil {
		return nil, err
	}
	return &Plan{root: root}, nil
}

// QueryBy compiles c and runs it against snap.
func (x *Executor) QueryBy(ctx context.Context, snap *index.Snapshot, c criteria.Criteria) ([]ledger.Entry, error) {
	plan, err := x.Compile(c)
	if err != nil {
		return nil, err
	}
	return plan.Run(ctx, snap)
}

func (x *Executor) compile(c criteria.Criteria) (node, error) {
	switch n := c.(type) {
	case criteria.Vault:
		kinds, err := x.expandKinds(n.Kinds())
		if err != nil {
			return nil, err
		}
		return &vaultNode{status: n.Status(), kinds: kinds, softLocked: n.SoftLocked()}, nil
	case criteria.Linking:
		ln := &linkingNode{
			linearIDs: n.LinearIDs(),
			parties:   n.Parties(),
			exact:     n.ExactMatch(),
		}
		if ext := n.ExternalIDs(); len(ext) > 0 {
			ln.externalIDs = make(map[string]struct{}, len(ext))
			for _, e := range ext {
				ln.externalIDs[e] = struct{}{}
			}
		}
		return ln, nil
	case criteria.Composite:
		var leaves []criteria.Criteria
		flatten(n.Operator(), n, &leaves)
		children := make([]node, 0, len(leaves))
		for _, leaf := range leaves {
			child, err := x.compile(leaf)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if n.Operator() == criteria.OpOr {
			return &orNode{children: children}, nil
		}
		slices.SortStableFunc(children, func(a, b node) int { return a.rank() - b.rank() })
		return &andNode{children: children}, nil
	default:
		return nil, &ledger.ValidationError{Field: "criteria", Message: fmt.Sprintf("unknown criteria type %T", c)}
	}
}

// flatten collects the operands of a chain of composites sharing op.
func flatten(op criteria.Operator, c criteria.Criteria, out *[]criteria.Criteria) {
	if comp, ok := c.(criteria.Composite); ok && comp.Operator() == op {
		flatten(op, comp.Left(), out)
		flatten(op, comp.Right(), out)
		return
	}
	*out = append(*out, c)
}

// expandKinds resolves a kind filter to the set of matching concrete kinds.
// Nil means every kind.
func (x *Executor) expandKinds(kinds []ledger.Kind) (map[ledger.Kind]struct{}, error) {
	if len(kinds) == 0 || slices.Contains(kinds, ledger.KindAny) {
		return nil, nil
	}
	set := make(map[ledger.Kind]struct{})
	for _, k := range kinds {
		if x.registry == nil {
			set[k] = struct{}{}
			continue
		}
		if !x.registry.Known(k) {
			return nil, &ledger.ValidationError{Field: "kinds", Message: fmt.Sprintf("kind %s not registered", k)}
		}
		for _, d := range x.registry.Descendants(k) {
			set[d] = struct{}{}
		}
	}
	return set, nil
}
