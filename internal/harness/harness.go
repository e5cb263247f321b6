package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/codeaudit/corda/internal/compiler"
	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/store"
	"github.com/codeaudit/corda/internal/testutil"
	"github.com/codeaudit/corda/internal/vault"
)

// Harness runs one scenario against one fresh vault.
type Harness struct {
	vault     *vault.Vault
	filler    *testutil.Filler
	catalogue *compiler.Catalogue
	logger    *slog.Logger

	// label <-> ref bookkeeping
	refs   map[string]ledger.StateRef
	labels map[ledger.StateRef]string
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger passed to the vault. Defaults to discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh vault over an in-memory SQLite database.
// The returned error reports setup failures; failed expectations are
// recorded in the Result.
//
// Execution flow:
//  1. Create fresh in-memory database and vault
//  2. Compile and register the scenario's kind catalogue, if any
//  3. Execute steps, checking expected errors
//  4. Execute queries against both backends and check expectations
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		refs:   make(map[string]ledger.StateRef),
		labels: make(map[ledger.StateRef]string),
	}
	for _, opt := range opts {
		opt(h)
	}

	registry := contracts.NewRegistry()
	if scenario.Kinds != "" {
		cat, err := compiler.LoadDir(scenario.Kinds)
		if err != nil {
			return nil, fmt.Errorf("load kinds: %w", err)
		}
		if err := cat.Register(registry); err != nil {
			return nil, fmt.Errorf("load kinds: %w", err)
		}
		h.catalogue = cat
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h.vault = vault.New(
		vault.WithRegistry(registry),
		vault.WithStore(st),
		vault.WithLogger(h.logger),
		vault.WithIDGenerator(testutil.NewSequentialIDGenerator("lock")),
	)
	defer h.vault.Close(context.Background())
	h.filler = testutil.NewFiller(registry, h.vault, testutil.WithSeed(scenario.Seed))

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, step)
		if err != nil {
			sr.Error = string(ledger.CodeOf(err))
			if sr.Error == "" {
				return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Action, err)
			}
		}
		sr.Seq = h.vault.Snapshot().Seq()
		result.Steps = append(result.Steps, sr)

		if ledger.ErrorCode(sr.Error) != step.ExpectError {
			result.AddError(fmt.Sprintf("step %s: expected error %q, got %q (%v)", step.As, step.ExpectError, sr.Error, err))
		}
	}

	byName := make(map[string]QueryResult)
	for _, q := range scenario.Queries {
		qr := h.executeQuery(ctx, q, result)
		if q.SameAs != "" {
			want := byName[q.SameAs]
			if !sameSet(want.States, qr.States) {
				result.AddError(fmt.Sprintf("query %s: expected same states as %s %v, got %v", q.Name, q.SameAs, want.States, qr.States))
			}
		}
		byName[q.Name] = qr
		result.Queries = append(result.Queries, qr)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Action: step.Action, Label: step.As}

	var (
		tx  ledger.Transaction
		err error
	)
	switch step.Action {
	case ActionFillCash:
		count := step.Count
		if count == 0 {
			count = 1
		}
		tx, err = h.filler.FillWithSomeTestCash(ctx, step.Total, step.Currency, count, step.Issuer, step.Owner)
	case ActionFillDeals:
		tx, err = h.filler.FillWithSomeTestDeals(ctx, step.Refs, step.Parties...)
	case ActionFillLinear:
		tx, err = h.filler.FillWithSomeTestLinearStates(ctx, step.Count, step.ExternalID, step.Parties...)
	case ActionTrack:
		tx, err = h.filler.Issue(ctx, contracts.Deal{LinearID: h.filler.LinkingID(""), Participants: step.Parties})
	case ActionIssue:
		tx, err = h.issue(ctx, step)
	case ActionConsume:
		var refs []ledger.StateRef
		if refs, err = h.resolveRefs(step.Inputs); err == nil {
			tx, err = h.filler.Consume(ctx, refs...)
		}
	case ActionEvolve:
		var refs []ledger.StateRef
		if refs, err = h.resolveRefs(step.Inputs); err == nil {
			e, _ := h.vault.Snapshot().Get(refs[0])
			tx, err = h.filler.EvolveLinear(ctx, e, step.Data)
		}
	case ActionReserve, ActionRelease:
		var refs []ledger.StateRef
		if refs, err = h.resolveRefs(step.Inputs); err != nil {
			return sr, err
		}
		if step.Action == ActionReserve {
			err = h.vault.SoftLockReserve(ctx, step.Lock, refs...)
		} else {
			err = h.vault.SoftLockRelease(ctx, step.Lock, refs...)
		}
		return sr, err
	}
	if err != nil {
		return sr, err
	}

	for _, in := range tx.Inputs {
		sr.Consumed = append(sr.Consumed, h.labels[in])
	}
	for i := range tx.Outputs {
		ref := tx.OutputRef(i)
		label := fmt.Sprintf("%s:%d", step.As, i)
		h.refs[label] = ref
		h.labels[ref] = label
		sr.Produced = append(sr.Produced, label)
	}
	return sr, nil
}

func (h *Harness) issue(ctx context.Context, step Step) (ledger.Transaction, error) {
	states := make([]ledger.ContractState, len(step.States))
	for i, raw := range step.States {
		v, err := ledger.ValueOf(raw)
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("states[%d]: %w", i, err)
		}
		obj, ok := v.(ledger.Object)
		if !ok {
			return ledger.Transaction{}, fmt.Errorf("states[%d]: not an object", i)
		}
		s, err := h.catalogue.NewState(step.Kind, obj)
		if err != nil {
			return ledger.Transaction{}, err
		}
		states[i] = s
	}
	return h.filler.Issue(ctx, states...)
}

func (h *Harness) executeQuery(ctx context.Context, q Query, result *Result) QueryResult {
	qr := QueryResult{Name: q.Name, States: []string{}}

	c, err := h.buildCriteria(q)
	if err == nil {
		qr.Plan, err = h.vault.Explain(c)
	}
	var entries []ledger.Entry
	if err == nil {
		if q.StatesByKindAndStatus != nil {
			k := q.StatesByKindAndStatus
			entries, err = h.vault.StatesByKindAndStatus(ctx, k.Kinds, k.Statuses, k.IncludeSoftLocked)
		} else {
			entries, err = h.vault.QueryBy(ctx, c)
		}
	}
	if err != nil {
		qr.Error = string(ledger.CodeOf(err))
		qr.Plan = ""
		if ledger.ErrorCode(qr.Error) != q.ExpectError {
			result.AddError(fmt.Sprintf("query %s: expected error %q, got %v", q.Name, q.ExpectError, err))
		}
		return qr
	}
	if q.ExpectError != "" {
		result.AddError(fmt.Sprintf("query %s: expected error %q, got none", q.Name, q.ExpectError))
	}

	for _, e := range entries {
		qr.States = append(qr.States, h.label(e.Ref))
	}
	qr.Count = len(entries)

	sqlRefs, err := h.vault.QuerySQL(ctx, c)
	switch {
	case err != nil:
		result.AddError(fmt.Sprintf("query %s: sql backend: %v", q.Name, err))
	default:
		sqlStates := make([]string, len(sqlRefs))
		for i, ref := range sqlRefs {
			sqlStates[i] = h.label(ref)
		}
		if strings.Join(sqlStates, ",") != strings.Join(qr.States, ",") {
			result.AddError(fmt.Sprintf("query %s: sql backend returned %v, executor %v", q.Name, sqlStates, qr.States))
		}
	}

	checkQuery(q, qr, result)
	return qr
}

func (h *Harness) buildCriteria(q Query) (criteria.Criteria, error) {
	if k := q.StatesByKindAndStatus; k != nil {
		return vault.KindAndStatusCriteria(k.Kinds, k.Statuses, k.IncludeSoftLocked), nil
	}
	return q.Criteria.Build(h.resolveLinkingID)
}

// resolveLinkingID accepts an output label or a literal linking id.
func (h *Harness) resolveLinkingID(ref string) (ledger.LinkingID, error) {
	if sref, ok := h.refs[ref]; ok {
		e, ok := h.vault.Snapshot().Get(sref)
		if !ok || e.Record.Linking == nil {
			return ledger.LinkingID{}, &ledger.ValidationError{Field: "linear_ids", Message: fmt.Sprintf("%s has no linking id", ref)}
		}
		return *e.Record.Linking, nil
	}
	return ledger.ParseLinkingID(ref)
}

func (h *Harness) resolveRefs(labels []string) ([]ledger.StateRef, error) {
	out := make([]ledger.StateRef, len(labels))
	for i, label := range labels {
		ref, ok := h.refs[label]
		if !ok {
			return nil, fmt.Errorf("unknown state label %q", label)
		}
		out[i] = ref
	}
	return out, nil
}

func (h *Harness) label(ref ledger.StateRef) string {
	if l, ok := h.labels[ref]; ok {
		return l
	}
	return ref.TxID + ":" + strconv.Itoa(ref.Index)
}
