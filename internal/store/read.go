package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codeaudit/corda/internal/ledger"
)

// StateRow is a stored vault entry before its payload is decoded.
type StateRow struct {
	Ref     ledger.StateRef
	Kind    ledger.Kind
	Payload []byte
	Status  ledger.Status
	LockID  string
	Seq     int64
	SpentAt int64
	SpentBy string
}

// TxRow is a stored transaction header.
type TxRow struct {
	ID      string
	Seq     int64
	Notary  ledger.Party
	Inputs  int
	Outputs int
}

const stateColumns = `tx_id, output_index, kind, payload, status, lock_id, seq, spent_at, spent_by`

// ReadStates returns every stored entry in insertion order.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ReadStates(ctx context.Context) ([]StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stateColumns+`
		FROM vault_states
		ORDER BY pos ASC
	`)
	if err != nil {
		return nil, storageErr("query states", err)
	}
	defer rows.Close()

	states := []StateRow{}
	for rows.Next() {
		row, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate states", err)
	}
	return states, nil
}

// ReadState returns one stored entry, or a NotFoundError.
func (s *Store) ReadState(ctx context.Context, ref ledger.StateRef) (StateRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stateColumns+`
		FROM vault_states
		WHERE tx_id = ? AND output_index = ?
	`, ref.TxID, ref.Index)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRow{}, &ledger.NotFoundError{Ref: ref}
	}
	return st, err
}

// ReadParties returns the participants of a stored entry, sorted.
func (s *Store) ReadParties(ctx context.Context, ref ledger.StateRef) ([]ledger.Party, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.party
		FROM state_parties p
		JOIN vault_states s ON s.pos = p.pos
		WHERE s.tx_id = ? AND s.output_index = ?
		ORDER BY p.party COLLATE BINARY ASC
	`, ref.TxID, ref.Index)
	if err != nil {
		return nil, storageErr("query parties", err)
	}
	defer rows.Close()

	parties := []ledger.Party{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storageErr("scan party", err)
		}
		parties = append(parties, ledger.Party(p))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate parties", err)
	}
	return parties, nil
}

// ReadTransactions returns every transaction header.
// Ordered by seq ASC, id ASC COLLATE BINARY.
func (s *Store) ReadTransactions(ctx context.Context) ([]TxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, notary, input_count, output_count
		FROM transactions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, storageErr("query transactions", err)
	}
	defer rows.Close()

	txs := []TxRow{}
	for rows.Next() {
		var tx TxRow
		var notary string
		if err := rows.Scan(&tx.ID, &tx.Seq, &notary, &tx.Inputs, &tx.Outputs); err != nil {
			return nil, storageErr("scan transaction", err)
		}
		tx.Notary = ledger.Party(notary)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate transactions", err)
	}
	return txs, nil
}

// LastSeq returns the last committed sequence number, 0 for a new store.
// Used on restore to resume the commit sequence from the right position.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT value FROM vault_meta WHERE key = 'last_seq'), 0)
	`).Scan(&seq)
	if err != nil {
		return 0, storageErr("get last seq", err)
	}
	return seq, nil
}

// CountStates returns the number of stored entries per status.
func (s *Store) CountStates(ctx context.Context) (map[ledger.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM vault_states GROUP BY status ORDER BY status
	`)
	if err != nil {
		return nil, storageErr("count states", err)
	}
	defer rows.Close()

	counts := map[ledger.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("scan count", err)
		}
		counts[ledger.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate counts", err)
	}
	return counts, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanState(sc scanner) (StateRow, error) {
	var (
		row     StateRow
		kind    string
		payload string
		status  string
	)
	err := sc.Scan(
		&row.Ref.TxID,
		&row.Ref.Index,
		&kind,
		&payload,
		&status,
		&row.LockID,
		&row.Seq,
		&row.SpentAt,
		&row.SpentBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRow{}, err
	}
	if err != nil {
		return StateRow{}, storageErr("scan state", err)
	}
	row.Kind = ledger.Kind(kind)
	row.Payload = []byte(payload)
	row.Status = ledger.Status(status)
	return row, nil
}

// QueryRefs runs a compiled criteria query and returns the matching refs.
func (s *Store) QueryRefs(ctx context.Context, query string, params []any) ([]ledger.StateRef, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, storageErr("query refs", err)
	}
	defer rows.Close()

	refs := []ledger.StateRef{}
	for rows.Next() {
		var ref ledger.StateRef
		if err := rows.Scan(&ref.TxID, &ref.Index); err != nil {
			return nil, storageErr("scan ref", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate refs", err)
	}
	return refs, nil
}

// Summary returns a one-line description of the store contents.
func (s *Store) Summary(ctx context.Context) (string, error) {
	counts, err := s.CountStates(ctx)
	if err != nil {
		return "", err
	}
	seq, err := s.LastSeq(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("seq=%d unconsumed=%d consumed=%d",
		seq, counts[ledger.StatusUnconsumed], counts[ledger.StatusConsumed]), nil
}
