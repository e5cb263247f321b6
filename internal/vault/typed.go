package vault

import (
	"context"
	"fmt"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/notify"
)

// StateAndRef is a typed query result.
type StateAndRef[T ledger.ContractState] struct {
	Ref    ledger.StateRef
	State  T
	Status ledger.Status
}

// QueryTyped runs c restricted to T's kind (and its descendants) and
// returns decoded T values. T is resolved through the registry's type
// table; an unregistered T is a ValidationError.
func QueryTyped[T ledger.ContractState](ctx context.Context, v *Vault, c criteria.Criteria) ([]StateAndRef[T], error) {
	kind, err := ledger.KindOf[T](v.registry)
	if err != nil {
		return nil, err
	}
	restrict := criteria.NewVault().Status(ledger.StatusAll).Kinds(kind).MustBuild()
	if c == nil {
		c = criteria.NewVault().Kinds(kind).MustBuild()
	} else {
		c = criteria.And(c, restrict)
	}

	entries, err := v.QueryBy(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]StateAndRef[T], 0, len(entries))
	for _, e := range entries {
		s, ok := e.Record.State.(T)
		if !ok {
			// A descendant kind with a different Go type.
			continue
		}
		out = append(out, StateAndRef[T]{Ref: e.Ref, State: s, Status: e.Status})
	}
	return out, nil
}

// TrackBy returns the entries matching c together with a subscription
// that receives every update committed after them. Updates already
// reflected in the returned entries are not delivered.
func (v *Vault) TrackBy(ctx context.Context, name string, c criteria.Criteria, obs notify.Observer) ([]ledger.Entry, *notify.Subscription, error) {
	plan, err := v.executor.Compile(c)
	if err != nil {
		return nil, nil, err
	}

	// Holding the writer role pins the snapshot until the subscription
	// exists, so no commit falls between the two.
	b, err := v.index.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("track %s: %w", name, err)
	}
	snap := v.index.Snapshot()
	sub, err := v.Subscribe(name, notify.ObserverFunc(func(ctx context.Context, u ledger.Update) error {
		if u.Seq <= snap.Seq() {
			return nil
		}
		return obs.OnUpdate(ctx, u)
	}))
	b.Discard()
	if err != nil {
		return nil, nil, fmt.Errorf("track %s: %w", name, err)
	}

	entries, err := plan.Run(ctx, snap)
	if err != nil {
		sub.Unsubscribe()
		return nil, nil, err
	}
	return entries, sub, nil
}
