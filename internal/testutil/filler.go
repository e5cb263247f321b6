// Package testutil provides deterministic helpers for vault tests and
// development data: id generators and fillers that record sample cash,
// deal and linear-state transactions through the ordinary record path.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
)

// Recorder is the part of the vault a Filler writes through.
type Recorder interface {
	Record(ctx context.Context, txs ...ledger.Transaction) (*index.Snapshot, error)
}

// DefaultNotary notarises filler transactions.
const DefaultNotary ledger.Party = "Notary"

// Filler records sample transactions. With a fixed seed the transactions,
// their ids and their linking ids are identical on every run.
//
// Thread-safety: safe for concurrent use; ordering across goroutines is
// whatever the recorder serializes.
type Filler struct {
	registry *ledger.Registry
	recorder Recorder
	seed     string
	notary   ledger.Party
	n        atomic.Int64
}

// FillerOption configures a Filler.
type FillerOption func(*Filler)

// WithSeed fixes the seed used for transaction salts and linking ids.
//
// Default: a fresh UUIDv7, so independent fillers never collide.
func WithSeed(seed string) FillerOption {
	return func(f *Filler) {
		f.seed = seed
	}
}

// WithNotary sets the notary of filler transactions.
func WithNotary(p ledger.Party) FillerOption {
	return func(f *Filler) {
		f.notary = p
	}
}

// NewFiller creates a Filler over a registry holding the built-in kinds.
func NewFiller(registry *ledger.Registry, rec Recorder, opts ...FillerOption) *Filler {
	f := &Filler{
		registry: registry,
		recorder: rec,
		seed:     uuid.Must(uuid.NewV7()).String(),
		notary:   DefaultNotary,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// next returns a fresh salt.
func (f *Filler) next() string {
	return fmt.Sprintf("%s-%d", f.seed, f.n.Add(1))
}

// LinkingID returns a linking id whose internal part derives from the
// seed, so it is reproducible.
func (f *Filler) LinkingID(external string) ledger.LinkingID {
	return ledger.LinkingID{
		External: external,
		ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(f.next())),
	}
}

// FillWithSomeTestCash issues total (minor units) of currency to owner,
// split into n outputs of one transaction. The last output takes the
// remainder.
func (f *Filler) FillWithSomeTestCash(ctx context.Context, total int64, currency string, n int, issuer, owner ledger.Party) (ledger.Transaction, error) {
	if n <= 0 || total < int64(n) {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "n", Message: fmt.Sprintf("cannot split %d into %d outputs", total, n)}
	}
	states := make([]ledger.ContractState, n)
	part := total / int64(n)
	for i := range states {
		amt := part
		if i == n-1 {
			amt = total - part*int64(n-1)
		}
		states[i] = contracts.Cash{Amount: amt, Currency: currency, Issuer: issuer, Owner: owner}
	}
	return f.Issue(ctx, states...)
}

// FillWithSomeTestDeals issues one deal per reference in one transaction.
func (f *Filler) FillWithSomeTestDeals(ctx context.Context, refs []string, participants ...ledger.Party) (ledger.Transaction, error) {
	states := make([]ledger.ContractState, len(refs))
	for i, ref := range refs {
		states[i] = contracts.Deal{
			LinearID:     f.LinkingID(ref),
			Ref:          ref,
			Participants: participants,
		}
	}
	return f.Issue(ctx, states...)
}

// FillWithSomeTestLinearStates issues n linear states, each with its own
// linking id carrying externalID, in one transaction.
func (f *Filler) FillWithSomeTestLinearStates(ctx context.Context, n int, externalID string, participants ...ledger.Party) (ledger.Transaction, error) {
	states := make([]ledger.ContractState, n)
	for i := range states {
		states[i] = contracts.Linear{
			LinearID:     f.LinkingID(externalID),
			Participants: participants,
			Data:         fmt.Sprintf("version-1-%d", i),
		}
	}
	return f.Issue(ctx, states...)
}

// Issue records one transaction producing states and consuming nothing.
func (f *Filler) Issue(ctx context.Context, states ...ledger.ContractState) (ledger.Transaction, error) {
	return f.Move(ctx, nil, states...)
}

// Consume records one transaction spending refs and producing nothing.
func (f *Filler) Consume(ctx context.Context, refs ...ledger.StateRef) (ledger.Transaction, error) {
	return f.Move(ctx, refs)
}

// Move records one transaction spending inputs and producing states.
func (f *Filler) Move(ctx context.Context, inputs []ledger.StateRef, states ...ledger.ContractState) (ledger.Transaction, error) {
	tx, err := f.Build(inputs, states...)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := f.recorder.Record(ctx, tx); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// Build creates a transaction without recording it.
func (f *Filler) Build(inputs []ledger.StateRef, states ...ledger.ContractState) (ledger.Transaction, error) {
	outputs := make([]ledger.Record, len(states))
	for i, s := range states {
		rec, err := f.registry.NewRecord(s)
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("build output %d: %w", i, err)
		}
		outputs[i] = rec
	}
	return ledger.NewTransaction(inputs, outputs, f.notary, f.next())
}

// EvolveLinear consumes a linear state and issues its next version under
// the same linking id.
func (f *Filler) EvolveLinear(ctx context.Context, e ledger.Entry, data string) (ledger.Transaction, error) {
	prev, ok := e.Record.State.(contracts.Linear)
	if !ok {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "state", Message: fmt.Sprintf("%s is not a linear state", e.Ref)}
	}
	next := prev
	next.Data = data
	return f.Move(ctx, []ledger.StateRef{e.Ref}, next)
}
