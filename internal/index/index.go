package index

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/codeaudit/corda/internal/ledger"
)

// Index is the State Index. Safe for concurrent use: any number of readers,
// one writer at a time.
type Index struct {
	current atomic.Pointer[Snapshot]
	writer  chan struct{} // single-writer semaphore
}

// New creates an empty index.
func New() *Index {
	ix := &Index{writer: make(chan struct{}, 1)}
	ix.current.Store(emptySnapshot())
	return ix
}

// Snapshot returns the latest committed snapshot.
func (ix *Index) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Begin acquires the writer role and opens a batch. It blocks until the
// previous batch commits or is discarded, or until ctx is done.
func (ix *Index) Begin(ctx context.Context) (*Batch, error) {
	select {
	case ix.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin batch: %w", ctx.Err())
	}
	base := ix.current.Load()
	return &Batch{ix: ix, base: base, seq: base.seq + 1}, nil
}

// Batch stages index mutations. Nothing is visible to readers until Commit.
// A Batch must end with exactly one Commit or Discard; calling Discard after
// Commit is a no-op, so `defer b.Discard()` is safe.
type Batch struct {
	ix   *Index
	base *Snapshot
	work *Snapshot // lazily cloned from base
	seq  int64
	done bool
}

// Seq returns the commit sequence number this batch will publish.
func (b *Batch) Seq() int64 { return b.seq }

// view returns the staged state without cloning.
func (b *Batch) view() *Snapshot {
	if b.work != nil {
		return b.work
	}
	return b.base
}

func (b *Batch) mutable() *Snapshot {
	if b.work == nil {
		b.work = b.base.clone()
	}
	return b.work
}

// Get returns the staged entry for ref.
func (b *Batch) Get(ref ledger.StateRef) (ledger.Entry, bool) {
	return b.view().Get(ref)
}

// Insert adds a new UNCONSUMED entry produced at this batch's seq.
// A reference that is already present is a ConflictError.
func (b *Batch) Insert(ref ledger.StateRef, rec ledger.Record) (ledger.Entry, error) {
	if _, dup := b.view().pos[ref]; dup {
		return ledger.Entry{}, ledger.NewDuplicateRefError(ref, ref.TxID)
	}
	e := ledger.Entry{Ref: ref, Record: rec, Status: ledger.StatusUnconsumed, Seq: b.seq}
	b.mutable().insert(e)
	return e, nil
}

// Load adds an entry as-is, keeping its status, lock and sequence numbers.
// Used to rebuild the index from durable storage.
func (b *Batch) Load(e ledger.Entry) error {
	if _, dup := b.view().pos[e.Ref]; dup {
		return ledger.NewDuplicateRefError(e.Ref, "")
	}
	w := b.mutable()
	w.insert(e)
	if e.Seq > b.seq {
		b.seq = e.Seq
	}
	if e.SpentAt > b.seq {
		b.seq = e.SpentAt
	}
	return nil
}

// AdvanceTo raises the batch's seq to at least seq. Restore uses it when
// commits that only touched soft locks left the durable seq ahead of every
// entry.
func (b *Batch) AdvanceTo(seq int64) {
	if seq <= b.seq {
		return
	}
	b.mutable()
	b.seq = seq
}

// MarkConsumed moves ref to CONSUMED and clears any soft lock. It reports
// whether the status changed: marking an already consumed entry is a no-op.
// An unknown ref is a NotFoundError.
func (b *Batch) MarkConsumed(ref ledger.StateRef) (ledger.Entry, bool, error) {
	i, ok := b.view().pos[ref]
	if !ok {
		return ledger.Entry{}, false, &ledger.NotFoundError{Ref: ref}
	}
	if e := b.view().entries[i]; e.Status == ledger.StatusConsumed {
		return e, false, nil
	}
	w := b.mutable()
	w.setStatus(i, ledger.StatusConsumed)
	w.setLock(i, "")
	w.entries[i].SpentAt = b.seq
	return w.entries[i], true, nil
}

// Lock soft-locks an unconsumed entry for lockID. Locking an entry already
// held by lockID is a no-op; an entry held by another id, or consumed, is a
// ConflictError.
func (b *Batch) Lock(ref ledger.StateRef, lockID string) error {
	i, ok := b.view().pos[ref]
	if !ok {
		return &ledger.NotFoundError{Ref: ref}
	}
	e := b.view().entries[i]
	switch {
	case e.Status == ledger.StatusConsumed:
		return &ledger.ConflictError{Ref: ref, Message: "cannot soft-lock a consumed state"}
	case e.LockID == lockID:
		return nil
	case e.LockID != "":
		return &ledger.ConflictError{Ref: ref, Message: fmt.Sprintf("soft-locked by %s", e.LockID)}
	}
	b.mutable().setLock(i, lockID)
	return nil
}

// Unlock releases a soft lock held by lockID. Entries held by another id
// are left alone. It reports whether a lock was released.
func (b *Batch) Unlock(ref ledger.StateRef, lockID string) (bool, error) {
	i, ok := b.view().pos[ref]
	if !ok {
		return false, &ledger.NotFoundError{Ref: ref}
	}
	if b.view().entries[i].LockID != lockID || lockID == "" {
		return false, nil
	}
	b.mutable().setLock(i, "")
	return true, nil
}

// LockedBy returns the refs currently soft-locked by lockID.
func (b *Batch) LockedBy(lockID string) []ledger.StateRef {
	var out []ledger.StateRef
	for _, e := range b.view().entries {
		if lockID != "" && e.LockID == lockID {
			out = append(out, e.Ref)
		}
	}
	return out
}

// Commit publishes the staged snapshot and releases the writer role.
// A batch with no mutations publishes nothing.
func (b *Batch) Commit() *Snapshot {
	return b.CommitThen(nil)
}

// CommitThen is Commit, but calls fn with the resulting snapshot before
// the writer role is released. Work done in fn is ordered with the
// commits themselves; fn must not block.
func (b *Batch) CommitThen(fn func(*Snapshot)) *Snapshot {
	if b.done {
		panic("index: batch already finished")
	}
	b.done = true
	defer b.release()

	snap := b.base
	if b.work != nil {
		b.work.seq = b.seq
		b.ix.current.Store(b.work)
		snap = b.work
	}
	if fn != nil {
		fn(snap)
	}
	return snap
}

// Discard drops the staged mutations and releases the writer role.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	b.release()
}

func (b *Batch) release() {
	<-b.ix.writer
}
