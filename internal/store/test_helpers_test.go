package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/codeaudit/corda/internal/ledger"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntry creates an unconsumed entry with minimal required fields.
func testEntry(txID string, index int, kind ledger.Kind, seq int64) ledger.Entry {
	return ledger.Entry{
		Ref:    ledger.StateRef{TxID: txID, Index: index},
		Record: ledger.Record{Kind: kind, Payload: []byte(fmt.Sprintf(`{"n":%d}`, index))},
		Status: ledger.StatusUnconsumed,
		Seq:    seq,
	}
}

// writeTx records a transaction producing entries at seq.
func writeTx(t *testing.T, s *Store, tx ledger.Transaction, seq int64, produced ...ledger.Entry) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, w *Writer) error {
		if err := w.WriteTransaction(ctx, tx, seq, produced); err != nil {
			return err
		}
		return w.SetSeq(ctx, seq)
	})
	if err != nil {
		t.Fatalf("writeTx(%s) failed: %v", tx.ID, err)
	}
}
