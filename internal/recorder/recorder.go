// Package recorder implements the Transaction Recorder.
//
// A Recorder applies batches of already-validated transactions to the
// State Index, and to the durable store when one is configured, as one
// atomic unit. Batches serialize on the index's writer role. Staged index
// mutations become visible only after the SQL transaction commits; any
// failure or cancellation before that point discards them, leaving both
// the index and the store exactly as they were.
//
// After a successful commit, and before the writer role is released, one
// ledger.Update per transaction is handed to the notification bus in
// transaction order. Publishing never blocks on observers.
package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/metrics"
	"github.com/codeaudit/corda/internal/notify"
	"github.com/codeaudit/corda/internal/store"
)

// Recorder is the single entry point for vault mutations.
//
// Thread-safety: all methods are safe for concurrent use; batches are
// serialized by the index writer role.
type Recorder struct {
	index   *index.Index
	store   *store.Store
	bus     *notify.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStore makes every batch durable in s before it becomes visible.
func WithStore(s *store.Store) Option {
	return func(r *Recorder) {
		r.store = s
	}
}

// WithBus publishes committed updates to b.
func WithBus(b *notify.Bus) Option {
	return func(r *Recorder) {
		r.bus = b
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// New creates a Recorder that mutates ix.
func New(ix *index.Index, opts ...Option) *Recorder {
	r := &Recorder{
		index:  ix,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// staged is one transaction's effect inside a batch.
type staged struct {
	tx       ledger.Transaction
	consumed []ledger.Entry
	produced []ledger.Entry
}

// Record applies txs, in order, as one atomic batch and returns the
// snapshot it published.
//
// For each transaction every input is marked consumed, then every output
// is inserted. An input that is already consumed, whether before the batch
// or by an earlier transaction in it, is a double-spend ConflictError. An
// unknown input is a NotFoundError. On any error nothing is applied.
func (r *Recorder) Record(ctx context.Context, txs ...ledger.Transaction) (*index.Snapshot, error) {
	if len(txs) == 0 {
		return r.index.Snapshot(), nil
	}
	start := time.Now()

	snap, err := r.apply(ctx, txs)
	if err != nil {
		r.fail(err, len(txs))
		return nil, err
	}

	r.metrics.ObserveRecord(start, len(txs))
	r.metrics.SetStateGauges(len(snap.ByStatus(ledger.StatusUnconsumed)), snap.Locked())
	r.logger.Debug("recorded batch", "seq", snap.Seq(), "transactions", len(txs))
	return snap, nil
}

// publish hands one update per staged transaction to the bus. It runs
// while the writer role is still held, so updates reach the bus in
// commit order.
func (r *Recorder) publish(snap *index.Snapshot, stages []staged) {
	if r.bus == nil {
		return
	}
	updates := make([]ledger.Update, len(stages))
	for i, st := range stages {
		updates[i] = ledger.Update{
			Seq:      snap.Seq(),
			TxID:     st.tx.ID,
			Consumed: st.consumed,
			Produced: st.produced,
		}
	}
	r.bus.Publish(updates...)
}

func (r *Recorder) apply(ctx context.Context, txs []ledger.Transaction) (*index.Snapshot, error) {
	b, err := r.index.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Discard()

	stages := make([]staged, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := stage(b, tx)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}

	if r.store != nil {
		err := r.store.WithTx(ctx, func(ctx context.Context, w *store.Writer) error {
			for _, st := range stages {
				if err := w.WriteTransaction(ctx, st.tx, b.Seq(), st.produced); err != nil {
					return err
				}
			}
			return w.SetSeq(ctx, b.Seq())
		})
		if err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.CommitThen(func(snap *index.Snapshot) {
		r.publish(snap, stages)
	}), nil
}

// stage applies one transaction to the batch.
func stage(b *index.Batch, tx ledger.Transaction) (staged, error) {
	if tx.ID == "" {
		return staged{}, &ledger.ValidationError{Field: "transaction.id", Message: "must not be empty"}
	}
	st := staged{tx: tx}

	for _, ref := range tx.Inputs {
		e, changed, err := b.MarkConsumed(ref)
		if err != nil {
			return staged{}, fmt.Errorf("record %s: %w", tx.ID, err)
		}
		if !changed {
			return staged{}, ledger.NewDoubleSpendError(ref, tx.ID)
		}
		st.consumed = append(st.consumed, e)
	}

	for i, rec := range tx.Outputs {
		e, err := b.Insert(tx.OutputRef(i), rec)
		if err != nil {
			return staged{}, fmt.Errorf("record %s: %w", tx.ID, err)
		}
		st.produced = append(st.produced, e)
	}
	return st, nil
}

// Reserve soft-locks refs for lockID as one atomic unit. Fails with a
// ConflictError if any ref is consumed or held by another id.
func (r *Recorder) Reserve(ctx context.Context, lockID string, refs ...ledger.StateRef) error {
	if lockID == "" {
		return &ledger.ValidationError{Field: "lockId", Message: "must not be empty"}
	}
	return r.locks(ctx, "reserve", func(b *index.Batch) ([]ledger.StateRef, error) {
		var changed []ledger.StateRef
		for _, ref := range refs {
			before, _ := b.Get(ref)
			if err := b.Lock(ref, lockID); err != nil {
				return nil, err
			}
			if before.LockID != lockID {
				changed = append(changed, ref)
			}
		}
		return changed, nil
	}, lockID)
}

// Release clears the soft locks lockID holds on refs, or every lock it
// holds when refs is empty. Locks held by other ids are left alone.
func (r *Recorder) Release(ctx context.Context, lockID string, refs ...ledger.StateRef) error {
	if lockID == "" {
		return &ledger.ValidationError{Field: "lockId", Message: "must not be empty"}
	}
	return r.locks(ctx, "release", func(b *index.Batch) ([]ledger.StateRef, error) {
		targets := refs
		if len(targets) == 0 {
			targets = b.LockedBy(lockID)
		}
		var changed []ledger.StateRef
		for _, ref := range targets {
			ok, err := b.Unlock(ref, lockID)
			if err != nil {
				return nil, err
			}
			if ok {
				changed = append(changed, ref)
			}
		}
		return changed, nil
	}, "")
}

// locks runs a soft-lock mutation under the writer role and persists the
// refs it changed with lockValue.
func (r *Recorder) locks(ctx context.Context, op string, mutate func(*index.Batch) ([]ledger.StateRef, error), lockValue string) error {
	b, err := r.index.Begin(ctx)
	if err != nil {
		return err
	}
	defer b.Discard()

	changed, err := mutate(b)
	if err != nil {
		r.logger.Info("soft lock "+op+" rejected", "error", err)
		return err
	}
	if len(changed) == 0 {
		b.Commit()
		return nil
	}

	if r.store != nil {
		err := r.store.WithTx(ctx, func(ctx context.Context, w *store.Writer) error {
			for _, ref := range changed {
				if err := w.SetLock(ctx, ref, lockValue); err != nil {
					return err
				}
			}
			return w.SetSeq(ctx, b.Seq())
		})
		if err != nil {
			r.logger.Error("soft lock "+op+" failed", "error", err)
			return err
		}
	}

	snap := b.Commit()
	r.metrics.SetStateGauges(len(snap.ByStatus(ledger.StatusUnconsumed)), snap.Locked())
	r.logger.Debug("soft lock "+op, "seq", snap.Seq(), "states", len(changed))
	return nil
}

// fail logs and counts a rolled-back batch.
func (r *Recorder) fail(err error, n int) {
	code := ledger.CodeOf(err)
	r.metrics.IncrementRecordFailure(string(code))
	switch code {
	case ledger.CodeStorage:
		r.logger.Error("record failed", "transactions", n, "error", err)
	default:
		r.logger.Info("record rejected", "transactions", n, "code", code, "error", err)
	}
}
