package store

import (
	"context"
	"testing"

	"github.com/codeaudit/corda/internal/ledger"
)

func TestReadStates_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	states, err := s.ReadStates(context.Background())
	if err != nil {
		t.Fatalf("ReadStates() failed: %v", err)
	}
	if states == nil {
		t.Error("expected empty slice, got nil")
	}

	txs, err := s.ReadTransactions(context.Background())
	if err != nil {
		t.Fatalf("ReadTransactions() failed: %v", err)
	}
	if txs == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestReadStates_InsertionOrder(t *testing.T) {
	s := createTestStore(t)

	// Refs sort differently from insertion order.
	writeTx(t, s, ledger.Transaction{ID: "zz"}, 1, testEntry("zz", 0, "Cash", 1))
	writeTx(t, s, ledger.Transaction{ID: "aa"}, 2, testEntry("aa", 1, "Cash", 2), testEntry("aa", 0, "Cash", 2))

	states, err := s.ReadStates(context.Background())
	if err != nil {
		t.Fatalf("ReadStates() failed: %v", err)
	}
	want := []ledger.StateRef{{TxID: "zz", Index: 0}, {TxID: "aa", Index: 1}, {TxID: "aa", Index: 0}}
	for i, st := range states {
		if st.Ref != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, st.Ref, want[i])
		}
	}
}

func TestReadTransactions_Ordered(t *testing.T) {
	s := createTestStore(t)
	writeTx(t, s, ledger.Transaction{ID: "b", Notary: "N"}, 1)
	writeTx(t, s, ledger.Transaction{ID: "a", Notary: "N"}, 2)

	txs, err := s.ReadTransactions(context.Background())
	if err != nil {
		t.Fatalf("ReadTransactions() failed: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != "b" || txs[1].ID != "a" {
		t.Errorf("unexpected order: %+v", txs)
	}
	if txs[0].Notary != "N" {
		t.Errorf("Notary = %q, want N", txs[0].Notary)
	}
}

func TestLastSeq_NewStore(t *testing.T) {
	s := createTestStore(t)
	seq, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() = %d, want 0", seq)
	}
}

func TestSummary(t *testing.T) {
	s := createTestStore(t)
	writeTx(t, s, ledger.Transaction{ID: "t1"}, 1, testEntry("t1", 0, "Cash", 1), testEntry("t1", 1, "Cash", 1))
	writeTx(t, s, ledger.Transaction{ID: "t2", Inputs: []ledger.StateRef{{TxID: "t1", Index: 0}}}, 2)

	summary, err := s.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if summary != "seq=2 unconsumed=1 consumed=1" {
		t.Errorf("Summary() = %q", summary)
	}
}
