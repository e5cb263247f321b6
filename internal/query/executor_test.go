package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
)

const megaCorp ledger.Party = "O=MegaCorp, L=London, C=GB"

type fixture struct {
	t   *testing.T
	reg *ledger.Registry
	ix  *index.Index
	x   *Executor
	n   int
}

func newFixture(t *testing.T) *fixture {
	reg := contracts.NewRegistry()
	return &fixture{t: t, reg: reg, ix: index.New(), x: NewExecutor(reg)}
}

// add inserts states as the outputs of one transaction.
func (f *fixture) add(states ...ledger.ContractState) []ledger.StateRef {
	f.t.Helper()
	f.n++
	tx := fmt.Sprintf("tx%03d", f.n)
	b, err := f.ix.Begin(context.Background())
	require.NoError(f.t, err)
	refs := make([]ledger.StateRef, len(states))
	for i, s := range states {
		rec, err := f.reg.NewRecord(s)
		require.NoError(f.t, err)
		refs[i] = ledger.StateRef{TxID: tx, Index: i}
		_, err = b.Insert(refs[i], rec)
		require.NoError(f.t, err)
	}
	b.Commit()
	return refs
}

func (f *fixture) consume(refs ...ledger.StateRef) {
	f.t.Helper()
	b, err := f.ix.Begin(context.Background())
	require.NoError(f.t, err)
	for _, r := range refs {
		_, _, err := b.MarkConsumed(r)
		require.NoError(f.t, err)
	}
	b.Commit()
}

func (f *fixture) lock(id string, refs ...ledger.StateRef) {
	f.t.Helper()
	b, err := f.ix.Begin(context.Background())
	require.NoError(f.t, err)
	for _, r := range refs {
		require.NoError(f.t, b.Lock(r, id))
	}
	b.Commit()
}

func (f *fixture) query(c criteria.Criteria) []ledger.StateRef {
	f.t.Helper()
	entries, err := f.x.QueryBy(context.Background(), f.ix.Snapshot(), c)
	require.NoError(f.t, err)
	refs := make([]ledger.StateRef, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref
	}
	return refs
}

func cash(amount int64) contracts.Cash {
	return contracts.Cash{Amount: amount, Currency: "USD", Issuer: "Bank", Owner: megaCorp}
}

func linear(participants ...ledger.Party) contracts.Linear {
	return contracts.Linear{LinearID: ledger.NewLinkingID(""), Participants: participants}
}

func unconsumed(kinds ...ledger.Kind) criteria.Vault {
	return criteria.NewVault().Kinds(kinds...).MustBuild()
}

func TestQueryCashByKind(t *testing.T) {
	f := newFixture(t)
	f.add(cash(100), cash(200), cash(300))
	f.add(linear(megaCorp))

	assert.Len(t, f.query(unconsumed(contracts.KindCash)), 3)
}

func TestEmptyKindsMatchesAll(t *testing.T) {
	f := newFixture(t)
	f.add(cash(1), linear(megaCorp), contracts.NewDeal("123", megaCorp))

	assert.Len(t, f.query(unconsumed()), 3)
	assert.Len(t, f.query(unconsumed(ledger.KindAny)), 3)
}

func TestKindHierarchy(t *testing.T) {
	f := newFixture(t)
	f.add(linear(megaCorp), contracts.NewDeal("123", megaCorp), cash(5))

	assert.Len(t, f.query(unconsumed(contracts.KindLinear)), 2, "deals are linear states")
	assert.Len(t, f.query(unconsumed(contracts.KindDeal)), 1)
}

func TestUnknownKindInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.x.Compile(unconsumed("Bond"))
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

func TestStatusMonotonic(t *testing.T) {
	f := newFixture(t)
	refs := f.add(cash(1), cash(2))
	f.consume(refs[0])

	consumed := criteria.NewVault().Status(ledger.StatusConsumed).MustBuild()
	all := criteria.NewVault().Status(ledger.StatusAll).MustBuild()

	assert.Equal(t, []ledger.StateRef{refs[1]}, f.query(unconsumed()))
	assert.Equal(t, []ledger.StateRef{refs[0]}, f.query(consumed))
	assert.Equal(t, refs, f.query(all))
}

func TestTrackedDealScenario(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.add(linear(megaCorp))
	}
	tracked := ledger.NewLinkingID("")
	f.add(contracts.Deal{LinearID: tracked, Participants: []ledger.Party{megaCorp}})
	f.add(
		contracts.NewDeal("123", megaCorp),
		contracts.NewDeal("456", megaCorp),
		contracts.NewDeal("789", megaCorp),
	)

	dealCriteria := criteria.NewLinking().
		LinearIDs(tracked).
		ExternalIDs("123", "456", "789").
		Parties(megaCorp).
		MustBuild()

	refs := f.query(dealCriteria.And(unconsumed(contracts.KindDeal)))
	assert.Len(t, refs, 4)
}

func TestLinkingExactMatch(t *testing.T) {
	f := newFixture(t)
	deal := contracts.NewDeal("123", megaCorp)
	other := contracts.NewDeal("123", megaCorp) // same external, new internal
	refs := f.add(deal, other)

	exact := criteria.NewLinking().LinearIDs(deal.LinearID).ExactMatch(true).MustBuild()
	assert.Equal(t, []ledger.StateRef{refs[0]}, f.query(exact))

	loose := criteria.NewLinking().LinearIDs(deal.LinearID).MustBuild()
	assert.Equal(t, refs, f.query(loose), "non-exact compares the external component")

	byExternal := criteria.NewLinking().LinearIDs(ledger.ExternalLinkingID("123")).MustBuild()
	assert.Equal(t, refs, f.query(byExternal))
}

func TestLinkingWithoutSelectorsMatchesLinkable(t *testing.T) {
	f := newFixture(t)
	f.add(cash(1), linear("Alice"), linear(megaCorp))

	assert.Len(t, f.query(criteria.NewLinking().MustBuild()), 2)
	assert.Len(t, f.query(criteria.NewLinking().Parties(megaCorp).MustBuild()), 1)
}

func TestSoftLockFilter(t *testing.T) {
	f := newFixture(t)
	refs := f.add(cash(1), cash(2), cash(3))
	f.lock("reservation", refs[1])

	exclude := criteria.NewVault().SoftLocked(criteria.SoftLockExclude).MustBuild()
	only := criteria.NewVault().SoftLocked(criteria.SoftLockOnly).MustBuild()

	assert.Len(t, f.query(unconsumed()), 3)
	assert.Equal(t, []ledger.StateRef{refs[0], refs[2]}, f.query(exclude))
	assert.Equal(t, []ledger.StateRef{refs[1]}, f.query(only))
}

func TestAndOrLaws(t *testing.T) {
	f := newFixture(t)
	cashRefs := f.add(cash(1), cash(2))
	f.add(linear(megaCorp), linear("Alice"))
	f.add(contracts.NewDeal("123", megaCorp), contracts.NewDeal("456", "Alice"))
	f.consume(cashRefs[0])

	all := []criteria.Criteria{
		unconsumed(),
		unconsumed(contracts.KindCash),
		unconsumed(contracts.KindLinear),
		criteria.NewVault().Status(ledger.StatusConsumed).MustBuild(),
		criteria.NewLinking().Parties(megaCorp).MustBuild(),
		criteria.NewLinking().ExternalIDs("456").MustBuild(),
	}

	for i, c1 := range all {
		for j, c2 := range all {
			t.Run(fmt.Sprintf("%d_%d", i, j), func(t *testing.T) {
				r1 := toSet(f.query(c1))
				r2 := toSet(f.query(c2))

				and := toSet(f.query(c1.And(c2)))
				or := toSet(f.query(c1.Or(c2)))

				assert.Equal(t, intersect(r1, r2), and)
				assert.Equal(t, unionSet(r1, r2), or)
				assert.Equal(t, and, toSet(f.query(c2.And(c1))), "AND is commutative")
			})
		}
	}
}

func TestNestedCompositeNoDuplicates(t *testing.T) {
	f := newFixture(t)
	f.add(cash(1), linear(megaCorp))

	c := unconsumed().Or(unconsumed(contracts.KindCash)).Or(criteria.NewLinking().MustBuild())
	refs := f.query(c)
	assert.Len(t, refs, 2)
	assert.Len(t, toSet(refs), 2)
}

func TestPlanOrdersStatusFirst(t *testing.T) {
	x := NewExecutor(contracts.NewRegistry())
	plan, err := x.Compile(criteria.NewLinking().Parties(megaCorp).MustBuild().And(unconsumed(contracts.KindDeal)))
	require.NoError(t, err)
	assert.Equal(t, "AND(status[UNCONSUMED] kinds[Deal] softLocked=INCLUDE, linking[ids=0 externals=0 parties=1 exact=false])", plan.String())
}

func TestQueryCancelled(t *testing.T) {
	f := newFixture(t)
	f.add(cash(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.x.QueryBy(ctx, f.ix.Snapshot(), unconsumed())
	require.ErrorIs(t, err, context.Canceled)
}

func TestInvalidCriteriaFailsBeforeWork(t *testing.T) {
	f := newFixture(t)
	var c criteria.Linking
	c.SetExactMatch(true)

	_, err := f.x.QueryBy(context.Background(), f.ix.Snapshot(), c)
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
}

func toSet(refs []ledger.StateRef) map[ledger.StateRef]struct{} {
	out := make(map[ledger.StateRef]struct{}, len(refs))
	for _, r := range refs {
		out[r] = struct{}{}
	}
	return out
}

func intersect(a, b map[ledger.StateRef]struct{}) map[ledger.StateRef]struct{} {
	out := make(map[ledger.StateRef]struct{})
	for r := range a {
		if _, ok := b[r]; ok {
			out[r] = struct{}{}
		}
	}
	return out
}

func unionSet(a, b map[ledger.StateRef]struct{}) map[ledger.StateRef]struct{} {
	out := make(map[ledger.StateRef]struct{}, len(a)+len(b))
	for r := range a {
		out[r] = struct{}{}
	}
	for r := range b {
		out[r] = struct{}{}
	}
	return out
}
