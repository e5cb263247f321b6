// Package notify implements the Notification Bus.
//
// Each committed transaction becomes one ledger.Update. Publish hands the
// update to every subscriber's bounded queue and returns immediately; a
// goroutine per subscriber delivers updates in commit order. A subscriber
// that falls behind loses its oldest pending updates (drop-oldest, logged
// and counted). A subscriber that errors or panics is logged and keeps
// receiving later updates. No subscriber can block or fail recording.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codeaudit/corda/internal/ledger"
	"github.com/codeaudit/corda/internal/metrics"
)

// Observer receives committed updates. An update is delivered whole: the
// observer never sees half of a transaction's effects.
type Observer interface {
	OnUpdate(ctx context.Context, u ledger.Update) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, u ledger.Update) error

// OnUpdate calls f.
func (f ObserverFunc) OnUpdate(ctx context.Context, u ledger.Update) error {
	return f(ctx, u)
}

// Bus fans committed updates out to observers.
//
// Thread-safety: all methods are safe for concurrent use. Publish must be
// called in commit order; the recorder publishes before it gives up the
// index writer role.
type Bus struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	capacity int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithCapacity sets the per-observer queue capacity.
//
// Default: 1024 updates (DefaultCapacity)
func WithCapacity(n int) Option {
	return func(b *Bus) {
		b.capacity = n
	}
}

// WithLogger sets the logger for drops and observer failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// WithMetrics enables Prometheus counters for deliveries, drops and
// failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:     make(map[string]*Subscription),
		ctx:      ctx,
		cancel:   cancel,
		capacity: DefaultCapacity,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one registered observer.
type Subscription struct {
	name      string
	bus       *Bus
	observer  Observer
	queue     *updateQueue
	delivered atomic.Int64
	failed    atomic.Int64
	done      chan struct{}
}

// Name returns the subscription name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many updates were dropped because the observer fell
// behind.
func (s *Subscription) Dropped() int64 { return s.queue.Dropped() }

// Delivered returns how many updates the observer accepted.
func (s *Subscription) Delivered() int64 { return s.delivered.Load() }

// Failed returns how many deliveries returned an error or panicked.
func (s *Subscription) Failed() int64 { return s.failed.Load() }

// Pending returns the number of queued, undelivered updates.
func (s *Subscription) Pending() int { return s.queue.Len() }

// Unsubscribe stops accepting updates, delivers what is already queued and
// waits for the delivery loop to exit.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	if s.bus.subs[s.name] == s {
		delete(s.bus.subs, s.name)
	}
	s.bus.mu.Unlock()

	s.queue.Close()
	<-s.done
}

// Subscribe registers obs under a unique name and starts its delivery loop.
func (b *Bus) Subscribe(name string, obs Observer) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", name)
	}
	if _, dup := b.subs[name]; dup {
		return nil, fmt.Errorf("subscribe %s: name already in use", name)
	}

	s := &Subscription{
		name:     name,
		bus:      b,
		observer: obs,
		queue:    newUpdateQueue(b.capacity),
		done:     make(chan struct{}),
	}
	b.subs[name] = s
	b.wg.Add(1)
	go b.run(s)
	return s, nil
}

// Publish enqueues updates, in order, for every subscriber. It never
// blocks on an observer.
func (b *Bus) Publish(updates ...ledger.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, u := range updates {
		for _, s := range b.subs {
			dropped, ok := s.queue.Enqueue(u)
			if ok && dropped != nil {
				b.metrics.IncrementDropped(s.name)
				b.logger.Warn("observer queue full, dropped oldest update",
					"observer", s.name,
					"dropped_seq", dropped.Seq,
					"dropped_tx", dropped.TxID,
					"total_dropped", s.queue.Dropped())
			}
		}
	}
}

// Close stops accepting updates, lets every observer drain its queue and
// waits for the delivery loops. If ctx ends first, in-flight deliveries
// see a cancelled context and Close returns ctx.Err().
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		s.queue.Close()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

// run is the delivery loop of one subscription.
func (b *Bus) run(s *Subscription) {
	defer b.wg.Done()
	defer close(s.done)

	for {
		if u, ok := s.queue.TryDequeue(); ok {
			b.deliver(s, u)
			continue
		}
		if s.queue.Drained() {
			return
		}
		<-s.queue.Wait()
	}
}

// deliver calls the observer, isolating errors and panics.
func (b *Bus) deliver(s *Subscription, u ledger.Update) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			b.metrics.IncrementObserverFailure(s.name)
			b.logger.Warn("observer panicked",
				"observer", s.name, "seq", u.Seq, "tx", u.TxID, "panic", r)
		}
	}()

	if err := s.observer.OnUpdate(b.ctx, u); err != nil {
		s.failed.Add(1)
		b.metrics.IncrementObserverFailure(s.name)
		b.logger.Warn("observer failed",
			"observer", s.name, "seq", u.Seq, "tx", u.TxID, "error", err)
		return
	}
	s.delivered.Add(1)
	b.metrics.IncrementDelivered(s.name)
}
