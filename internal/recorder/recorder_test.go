package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/metrics"
	"github.com/codeaudit/corda/internal/notify"
	"github.com/codeaudit/corda/internal/store"
)

var registry = contracts.NewRegistry()

func cashTx(t *testing.T, salt string, inputs []ledger.StateRef, amounts ...int64) ledger.Transaction {
	t.Helper()
	outputs := make([]ledger.Record, len(amounts))
	for i, amt := range amounts {
		rec, err := registry.NewRecord(contracts.Cash{Amount: amt, Currency: "USD", Issuer: "Bank", Owner: "Alice"})
		require.NoError(t, err)
		outputs[i] = rec
	}
	tx, err := ledger.NewTransaction(inputs, outputs, "Notary", salt)
	require.NoError(t, err)
	return tx
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_ConsumesAndProduces(t *testing.T) {
	ix := index.New()
	r := New(ix, WithStore(openStore(t)))
	ctx := context.Background()

	issue := cashTx(t, "issue", nil, 100, 200, 300)
	snap, err := r.Record(ctx, issue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq())
	assert.Len(t, snap.ByStatus(ledger.StatusUnconsumed), 3)

	move := cashTx(t, "move", []ledger.StateRef{issue.OutputRef(0), issue.OutputRef(1)}, 300)
	snap, err = r.Record(ctx, move)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Seq())
	assert.Len(t, snap.ByStatus(ledger.StatusUnconsumed), 2)
	assert.Len(t, snap.ByStatus(ledger.StatusConsumed), 2)

	e, ok := snap.Get(issue.OutputRef(0))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusConsumed, e.Status)
	assert.Equal(t, int64(2), e.SpentAt)
}

func TestRecord_ChainWithinBatch(t *testing.T) {
	r := New(index.New())
	issue := cashTx(t, "issue", nil, 10)
	move := cashTx(t, "move", []ledger.StateRef{issue.OutputRef(0)}, 10)

	snap, err := r.Record(context.Background(), issue, move)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq(), "one batch, one commit")
	assert.Len(t, snap.ByStatus(ledger.StatusUnconsumed), 1)
	assert.Len(t, snap.ByStatus(ledger.StatusConsumed), 1)
}

func TestRecord_DoubleSpendLeavesStateUnchanged(t *testing.T) {
	ix := index.New()
	s := openStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := New(ix, WithStore(s), WithMetrics(m))
	ctx := context.Background()

	issue := cashTx(t, "issue", nil, 100)
	_, err := r.Record(ctx, issue)
	require.NoError(t, err)
	spend := cashTx(t, "spend", []ledger.StateRef{issue.OutputRef(0)}, 100)
	_, err = r.Record(ctx, spend)
	require.NoError(t, err)

	before := ix.Snapshot().Fingerprint()
	beforeSummary, err := s.Summary(ctx)
	require.NoError(t, err)

	// A fresh output plus a second spend of the consumed input.
	again := cashTx(t, "again", []ledger.StateRef{issue.OutputRef(0)}, 100)
	fresh := cashTx(t, "fresh", nil, 1)
	_, err = r.Record(ctx, fresh, again)
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err))

	assert.Equal(t, before, ix.Snapshot().Fingerprint())
	afterSummary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeSummary, afterSummary)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordFailures.WithLabelValues("CONFLICT")))
}

func TestRecord_DoubleSpendInsideBatch(t *testing.T) {
	ix := index.New()
	r := New(ix)
	ctx := context.Background()

	issue := cashTx(t, "issue", nil, 5)
	_, err := r.Record(ctx, issue)
	require.NoError(t, err)
	before := ix.Snapshot().Fingerprint()

	a := cashTx(t, "a", []ledger.StateRef{issue.OutputRef(0)}, 5)
	b := cashTx(t, "b", []ledger.StateRef{issue.OutputRef(0)}, 5)
	_, err = r.Record(ctx, a, b)
	assert.True(t, ledger.IsConflict(err))
	assert.Equal(t, before, ix.Snapshot().Fingerprint())
}

func TestRecord_UnknownInput(t *testing.T) {
	r := New(index.New())
	tx := cashTx(t, "x", []ledger.StateRef{{TxID: "missing", Index: 0}}, 1)
	_, err := r.Record(context.Background(), tx)
	assert.True(t, ledger.IsNotFound(err))
}

func TestRecord_CancelledRollsBack(t *testing.T) {
	ix := index.New()
	s := openStore(t)
	r := New(ix, WithStore(s))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Record(ctx, cashTx(t, "issue", nil, 1))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, ix.Snapshot().Len())
	states, err := s.ReadStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)

	// The writer role was released.
	_, err = r.Record(context.Background(), cashTx(t, "issue", nil, 1))
	assert.NoError(t, err)
}

func TestRecord_PublishesUpdatesInOrder(t *testing.T) {
	bus := notify.New()
	var mu sync.Mutex
	var got []ledger.Update
	_, err := bus.Subscribe("test", notify.ObserverFunc(func(_ context.Context, u ledger.Update) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
		return nil
	}))
	require.NoError(t, err)

	r := New(index.New(), WithBus(bus))
	issue := cashTx(t, "issue", nil, 1, 2)
	move := cashTx(t, "move", []ledger.StateRef{issue.OutputRef(0)}, 1)
	_, err = r.Record(context.Background(), issue, move)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, issue.ID, got[0].TxID)
	assert.Len(t, got[0].Produced, 2)
	assert.Empty(t, got[0].Consumed)
	assert.Equal(t, move.ID, got[1].TxID)
	require.Len(t, got[1].Consumed, 1)
	assert.Equal(t, issue.OutputRef(0), got[1].Consumed[0].Ref)
	assert.Len(t, got[1].Produced, 1)
}

func TestRecord_ConcurrentWritersPublishInCommitOrder(t *testing.T) {
	const writers, perWriter = 8, 100

	bus := notify.New(notify.WithCapacity(writers * perWriter))
	var mu sync.Mutex
	var seqs []int64
	_, err := bus.Subscribe("order", notify.ObserverFunc(func(_ context.Context, u ledger.Update) error {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, u.Seq)
		return nil
	}))
	require.NoError(t, err)

	r := New(index.New(), WithBus(bus))
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tx := cashTx(t, fmt.Sprintf("w%d-%d", w, i), nil, 1)
				if _, err := r.Record(ctx, tx); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(closeCtx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, writers*perWriter)
	for i := 1; i < len(seqs); i++ {
		require.Greater(t, seqs[i], seqs[i-1], "seq %d delivered after seq %d", seqs[i], seqs[i-1])
	}
}

func TestRecord_StorageFailureLeavesStateUnchanged(t *testing.T) {
	ix := index.New()
	s := openStore(t)
	m := metrics.New(prometheus.NewRegistry())
	r := New(ix, WithStore(s), WithMetrics(m))
	ctx := context.Background()

	issue := cashTx(t, "issue", nil, 100)
	_, err := r.Record(ctx, issue)
	require.NoError(t, err)

	before := ix.Snapshot().Fingerprint()
	beforeSummary, err := s.Summary(ctx)
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, "DROP TABLE state_parties")
	require.NoError(t, err)

	spend := cashTx(t, "spend", []ledger.StateRef{issue.OutputRef(0)}, 60, 40)
	_, err = r.Record(ctx, spend)
	require.Error(t, err)
	assert.True(t, ledger.IsStorage(err), "got %v", err)
	assert.Equal(t, ledger.CodeStorage, ledger.CodeOf(err))

	assert.Equal(t, before, ix.Snapshot().Fingerprint())
	assert.Equal(t, int64(1), ix.Snapshot().Seq())
	e, ok := ix.Snapshot().Get(issue.OutputRef(0))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusUnconsumed, e.Status)

	afterSummary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeSummary, afterSummary)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordFailures.WithLabelValues("STORAGE")))
}

func TestRecord_FailedBatchPublishesNothing(t *testing.T) {
	bus := notify.New()
	var calls int
	var mu sync.Mutex
	_, err := bus.Subscribe("test", notify.ObserverFunc(func(context.Context, ledger.Update) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	r := New(index.New(), WithBus(bus))
	tx := cashTx(t, "x", []ledger.StateRef{{TxID: "missing"}}, 1)
	_, err = r.Record(context.Background(), tx)
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))
	assert.Zero(t, calls)
}

func TestRecord_ConcurrentReadersSeeWholeBatches(t *testing.T) {
	ix := index.New()
	r := New(ix)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			// Every batch adds exactly three entries.
			n := ix.Snapshot().Len()
			if n%3 != 0 {
				t.Errorf("observed partial batch: %d entries", n)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := r.Record(ctx, cashTx(t, fmt.Sprintf("b%d", i), nil, 1, 2, 3))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 150, ix.Snapshot().Len())
}

func TestReserveAndRelease(t *testing.T) {
	ix := index.New()
	s := openStore(t)
	r := New(ix, WithStore(s))
	ctx := context.Background()

	issue := cashTx(t, "issue", nil, 1, 2)
	_, err := r.Record(ctx, issue)
	require.NoError(t, err)
	a, b := issue.OutputRef(0), issue.OutputRef(1)

	require.NoError(t, r.Reserve(ctx, "lock-1", a))
	assert.Equal(t, 1, ix.Snapshot().Locked())
	assert.Equal(t, int64(2), ix.Snapshot().Seq(), "lock commits advance seq")

	err = r.Reserve(ctx, "lock-2", a, b)
	assert.True(t, ledger.IsConflict(err))
	e, _ := ix.Snapshot().Get(b)
	assert.Empty(t, e.LockID, "failed reserve is all-or-nothing")

	row, err := s.ReadState(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "lock-1", row.LockID)

	require.NoError(t, r.Release(ctx, "lock-2"))
	assert.Equal(t, 1, ix.Snapshot().Locked())

	require.NoError(t, r.Release(ctx, "lock-1"))
	assert.Equal(t, 0, ix.Snapshot().Locked())
	row, err = s.ReadState(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, row.LockID)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, ix.Snapshot().Seq(), seq)
}

func TestReserve_EmptyLockID(t *testing.T) {
	r := New(index.New())
	assert.True(t, ledger.IsValidation(r.Reserve(context.Background(), "")))
	assert.True(t, ledger.IsValidation(r.Release(context.Background(), "")))
}
