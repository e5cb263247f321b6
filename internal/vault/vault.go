// Package vault is the vault service: the State Index, Transaction
// Recorder, Query Executor and Notification Bus wired together, with an
// optional durable SQLite store behind them.
//
// Queries run against the latest committed snapshot and never block the
// recorder. A vault opened over an existing database rebuilds its index
// from the stored rows before serving queries.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeaudit/corda/internal/contracts"
	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/index"
	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/metrics"
	"github.com/codeaudit/corda/internal/notify"
	"github.com/codeaudit/corda/internal/query"
	"github.com/codeaudit/corda/internal/querysql"
	"github.com/codeaudit/corda/internal/recorder"
	"github.com/codeaudit/corda/internal/store"
)

// IDGenerator generates soft-lock ids.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 lock ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Vault is the vault service.
//
// Thread-safety: all methods are safe for concurrent use.
type Vault struct {
	registry *ledger.Registry
	index    *index.Index
	recorder *recorder.Recorder
	executor *query.Executor
	store    *store.Store
	sql      *querysql.SQLCompiler
	bus      *notify.Bus
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	ids      IDGenerator
	capacity int
}

// Option configures a Vault.
type Option func(*Vault)

// WithRegistry sets the kind registry. Defaults to the built-in contracts.
func WithRegistry(r *ledger.Registry) Option {
	return func(v *Vault) {
		v.registry = r
	}
}

// WithStore backs the vault with s. The vault takes ownership and closes
// it on Close.
func WithStore(s *store.Store) Option {
	return func(v *Vault) {
		v.store = s
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) {
		v.metrics = m
	}
}

// WithMetricsRegistry registers the vault's collectors with reg and
// exposes reg through Gatherer.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(v *Vault) {
		v.metrics = metrics.New(reg)
		v.gatherer = reg
	}
}

// WithIDGenerator sets the soft-lock id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(v *Vault) {
		v.ids = g
	}
}

// WithQueueCapacity bounds each observer's pending updates.
func WithQueueCapacity(n int) Option {
	return func(v *Vault) {
		v.capacity = n
	}
}

// New creates a vault with an empty index. Use Open to restore from a
// durable store.
func New(opts ...Option) *Vault {
	v := &Vault{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:      UUIDv7Generator{},
		capacity: notify.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.registry == nil {
		v.registry = contracts.NewRegistry()
	}

	v.index = index.New()
	v.executor = query.NewExecutor(v.registry)
	v.sql = querysql.NewSQLCompiler(v.resolveKind)
	v.bus = notify.New(
		notify.WithCapacity(v.capacity),
		notify.WithLogger(v.logger),
		notify.WithMetrics(v.metrics),
	)

	ropts := []recorder.Option{
		recorder.WithBus(v.bus),
		recorder.WithLogger(v.logger),
		recorder.WithMetrics(v.metrics),
	}
	if v.store != nil {
		ropts = append(ropts, recorder.WithStore(v.store))
	}
	v.recorder = recorder.New(v.index, ropts...)
	return v
}

// Open builds a vault from cfg. With a database path it opens the store
// and restores the index from it.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	all := []Option{WithQueueCapacity(cfg.QueueCapacity)}
	if cfg.Metrics {
		all = append(all, WithMetricsRegistry(prometheus.NewRegistry()))
	}
	all = append(all, opts...)

	if cfg.Database == "" {
		return New(all...), nil
	}

	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	v := New(append(all, WithStore(s))...)
	if err := v.restore(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}

// restore loads every stored entry into the empty index.
func (v *Vault) restore(ctx context.Context) error {
	rows, err := v.store.ReadStates(ctx)
	if err != nil {
		return err
	}
	last, err := v.store.LastSeq(ctx)
	if err != nil {
		return err
	}

	b, err := v.index.Begin(ctx)
	if err != nil {
		return err
	}
	defer b.Discard()

	for _, row := range rows {
		rec, err := v.registry.Decode(row.Kind, row.Payload)
		if err != nil {
			return fmt.Errorf("restore %s: %w", row.Ref, err)
		}
		e := ledger.Entry{
			Ref:     row.Ref,
			Record:  rec,
			Status:  row.Status,
			LockID:  row.LockID,
			Seq:     row.Seq,
			SpentAt: row.SpentAt,
		}
		if err := b.Load(e); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	b.AdvanceTo(last)
	snap := b.Commit()

	v.metrics.SetStateGauges(len(snap.ByStatus(ledger.StatusUnconsumed)), snap.Locked())
	v.logger.Info("vault restored", "seq", snap.Seq(), "states", snap.Len())
	return nil
}

// Registry returns the kind registry.
func (v *Vault) Registry() *ledger.Registry { return v.registry }

// Snapshot returns the latest committed snapshot.
func (v *Vault) Snapshot() *index.Snapshot { return v.index.Snapshot() }

// Gatherer returns the registry set by WithMetricsRegistry, or nil.
func (v *Vault) Gatherer() prometheus.Gatherer { return v.gatherer }

// Store returns the durable store, or nil for an in-memory vault.
func (v *Vault) Store() *store.Store { return v.store }

// Record applies txs as one atomic batch. See recorder.Recorder.Record.
func (v *Vault) Record(ctx context.Context, txs ...ledger.Transaction) (*index.Snapshot, error) {
	return v.recorder.Record(ctx, txs...)
}

// QueryBy returns the entries matching c in the latest snapshot, in
// insertion order.
func (v *Vault) QueryBy(ctx context.Context, c criteria.Criteria) ([]ledger.Entry, error) {
	start := time.Now()
	entries, err := v.executor.QueryBy(ctx, v.index.Snapshot(), c)
	if err != nil {
		return nil, err
	}
	v.metrics.ObserveQuery("memory", start, len(entries))
	return entries, nil
}

// Explain returns the evaluation plan of c.
func (v *Vault) Explain(c criteria.Criteria) (string, error) {
	plan, err := v.executor.Compile(c)
	if err != nil {
		return "", err
	}
	return plan.String(), nil
}

// QuerySQL evaluates c against the durable store and returns the matching
// refs in insertion order. It fails for an in-memory vault.
func (v *Vault) QuerySQL(ctx context.Context, c criteria.Criteria) ([]ledger.StateRef, error) {
	if v.store == nil {
		return nil, errors.New("query sql: vault has no durable store")
	}
	start := time.Now()
	refs, err := v.store.QueryStates(ctx, v.sql, c)
	if err != nil {
		return nil, err
	}
	v.metrics.ObserveQuery("sql", start, len(refs))
	return refs, nil
}

// StatesByKindAndStatus returns the entries of the given kinds whose status
// is one of statuses.
//
// Deprecated: build the equivalent criteria and use QueryBy. This method
// does exactly that: one status becomes one Vault criteria, several become
// an OR of them, none means ALL. includeSoftLocked=false excludes
// soft-locked entries.
func (v *Vault) StatesByKindAndStatus(ctx context.Context, kinds []ledger.Kind, statuses []ledger.Status, includeSoftLocked bool) ([]ledger.Entry, error) {
	return v.QueryBy(ctx, KindAndStatusCriteria(kinds, statuses, includeSoftLocked))
}

// KindAndStatusCriteria builds the criteria StatesByKindAndStatus runs.
func KindAndStatusCriteria(kinds []ledger.Kind, statuses []ledger.Status, includeSoftLocked bool) criteria.Criteria {
	policy := criteria.SoftLockInclude
	if !includeSoftLocked {
		policy = criteria.SoftLockExclude
	}
	statuses = slices.Clone(statuses)
	slices.Sort(statuses)
	statuses = slices.Compact(statuses)
	if len(statuses) == 0 || slices.Contains(statuses, ledger.StatusAll) {
		statuses = []ledger.Status{ledger.StatusAll}
	}

	var out criteria.Criteria
	for _, st := range statuses {
		c := criteria.NewVault().Status(st).Kinds(kinds...).SoftLocked(policy).MustBuild()
		if out == nil {
			out = c
			continue
		}
		out = criteria.Or(out, c)
	}
	return out
}

// NewLockID returns a fresh soft-lock id.
func (v *Vault) NewLockID() string { return v.ids.Generate() }

// SoftLockReserve soft-locks refs for lockID, all or nothing.
func (v *Vault) SoftLockReserve(ctx context.Context, lockID string, refs ...ledger.StateRef) error {
	return v.recorder.Reserve(ctx, lockID, refs...)
}

// SoftLockRelease releases lockID's locks on refs, or all of them when
// refs is empty.
func (v *Vault) SoftLockRelease(ctx context.Context, lockID string, refs ...ledger.StateRef) error {
	return v.recorder.Release(ctx, lockID, refs...)
}

// Subscribe registers an observer of committed updates.
func (v *Vault) Subscribe(name string, obs notify.Observer) (*notify.Subscription, error) {
	return v.bus.Subscribe(name, obs)
}

// Close drains observers and closes the store.
func (v *Vault) Close(ctx context.Context) error {
	err := v.bus.Close(ctx)
	if v.store != nil {
		err = errors.Join(err, v.store.Close())
	}
	return err
}

// resolveKind expands a kind filter for the SQL backend the same way the
// executor does.
func (v *Vault) resolveKind(k ledger.Kind) ([]ledger.Kind, error) {
	if !v.registry.Known(k) {
		return nil, &ledger.ValidationError{Field: "kinds", Message: fmt.Sprintf("kind %s not registered", k)}
	}
	return v.registry.Descendants(k), nil
}
