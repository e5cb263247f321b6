package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codeaudit/corda/internal/ledger"
)

// Writer stages writes inside one SQL transaction. Obtain one through
// WithTx; it is invalid once fn returns.
type Writer struct {
	tx *sql.Tx
}

// WithTx runs fn inside a SQL transaction. The transaction commits only if
// fn returns nil; any error, including cancellation of ctx, rolls it back.
// Errors returned by fn are passed through unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, w *Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(ctx, &Writer{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}

// InsertTransaction records a transaction header at commit seq.
// Recording the same transaction id twice is a ConflictError.
func (w *Writer) InsertTransaction(ctx context.Context, tx ledger.Transaction, seq int64) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, seq, notary, input_count, output_count)
		VALUES (?, ?, ?, ?, ?)
	`, tx.ID, seq, string(tx.Notary), len(tx.Inputs), len(tx.Outputs))
	if err != nil {
		if isConstraint(err) {
			return &ledger.ConflictError{Ref: ledger.StateRef{TxID: tx.ID}, TxID: tx.ID, Message: "transaction already recorded"}
		}
		return storageErr("write transaction", err)
	}
	return nil
}

// InsertState appends a vault entry and its participants.
// A duplicate state reference is a ConflictError.
func (w *Writer) InsertState(ctx context.Context, e ledger.Entry) error {
	var linearID any
	external := ""
	if l := e.Record.Linking; l != nil {
		linearID = l.Key()
		external = l.External
	}

	result, err := w.tx.ExecContext(ctx, `
		INSERT INTO vault_states
		(tx_id, output_index, kind, payload, status, lock_id, linear_id, external_id, seq, spent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Ref.TxID,
		e.Ref.Index,
		string(e.Record.Kind),
		string(e.Record.Payload),
		string(e.Status),
		e.LockID,
		linearID,
		external,
		e.Seq,
		e.SpentAt,
	)
	if err != nil {
		if isConstraint(err) {
			return ledger.NewDuplicateRefError(e.Ref, e.Ref.TxID)
		}
		return storageErr("write state", err)
	}

	pos, err := result.LastInsertId()
	if err != nil {
		return storageErr("write state: last insert id", err)
	}

	for _, p := range e.Record.Participants {
		if _, err := w.tx.ExecContext(ctx, `
			INSERT INTO state_parties (pos, party) VALUES (?, ?)
		`, pos, string(p)); err != nil {
			return storageErr("write state parties", err)
		}
	}
	return nil
}

// MarkConsumed moves an unconsumed state to CONSUMED and clears its soft
// lock. A missing state is a NotFoundError; a state already consumed is a
// ConflictError naming the spending transaction.
func (w *Writer) MarkConsumed(ctx context.Context, ref ledger.StateRef, spentAt int64, spentBy string) error {
	result, err := w.tx.ExecContext(ctx, `
		UPDATE vault_states
		SET status = 'CONSUMED', lock_id = '', spent_at = ?, spent_by = ?
		WHERE tx_id = ? AND output_index = ? AND status = 'UNCONSUMED'
	`, spentAt, spentBy, ref.TxID, ref.Index)
	if err != nil {
		return storageErr("mark consumed", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("mark consumed: rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = w.tx.QueryRowContext(ctx, `
		SELECT status FROM vault_states WHERE tx_id = ? AND output_index = ?
	`, ref.TxID, ref.Index).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Ref: ref}
	}
	if err != nil {
		return storageErr("mark consumed: lookup", err)
	}
	return ledger.NewDoubleSpendError(ref, spentBy)
}

// SetLock sets or clears (lockID == "") the soft lock of a state.
func (w *Writer) SetLock(ctx context.Context, ref ledger.StateRef, lockID string) error {
	result, err := w.tx.ExecContext(ctx, `
		UPDATE vault_states SET lock_id = ?
		WHERE tx_id = ? AND output_index = ?
	`, lockID, ref.TxID, ref.Index)
	if err != nil {
		return storageErr("set lock", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("set lock: rows affected", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Ref: ref}
	}
	return nil
}

// SetSeq records the last committed sequence number.
func (w *Writer) SetSeq(ctx context.Context, seq int64) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO vault_meta (key, value) VALUES ('last_seq', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, seq)
	if err != nil {
		return storageErr("set seq", err)
	}
	return nil
}

// WriteTransaction writes one recorded transaction: its header, the
// entries it consumed and the entries it produced, all at commit seq.
func (w *Writer) WriteTransaction(ctx context.Context, tx ledger.Transaction, seq int64, produced []ledger.Entry) error {
	if err := w.InsertTransaction(ctx, tx, seq); err != nil {
		return fmt.Errorf("write transaction %s: %w", tx.ID, err)
	}
	for _, ref := range tx.Inputs {
		if err := w.MarkConsumed(ctx, ref, seq, tx.ID); err != nil {
			return fmt.Errorf("write transaction %s: %w", tx.ID, err)
		}
	}
	for _, e := range produced {
		if err := w.InsertState(ctx, e); err != nil {
			return fmt.Errorf("write transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}
