// Package metrics provides Prometheus instrumentation for the vault.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics tracks recording, query and notification activity.
//
// All methods are safe on a nil *Metrics, so components can be built
// without instrumentation.
type Metrics struct {
	BatchesRecorded      prometheus.Counter
	TransactionsRecorded prometheus.Counter
	RecordFailures       *prometheus.CounterVec
	RecordDuration       prometheus.Histogram
	QueryDuration        *prometheus.HistogramVec
	QueryResults         prometheus.Histogram
	UpdatesDelivered     *prometheus.CounterVec
	UpdatesDropped       *prometheus.CounterVec
	ObserverFailures     *prometheus.CounterVec
	UnconsumedStates     prometheus.Gauge
	SoftLockedStates     prometheus.Gauge
}

// New creates a Metrics instance registered with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchesRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_batches_recorded_total",
			Help: "Total number of recording batches committed",
		}),
		TransactionsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_transactions_recorded_total",
			Help: "Total number of transactions committed",
		}),
		RecordFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_record_failures_total",
			Help: "Recording batches rolled back, by error code",
		}, []string{"code"}),
		RecordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_record_duration_seconds",
			Help:    "Duration of Record operations (write path)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Duration of QueryBy operations, by backend",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"backend"}),
		QueryResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_query_results",
			Help:    "Number of entries returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		UpdatesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_updates_delivered_total",
			Help: "Updates delivered to observers",
		}, []string{"observer"}),
		UpdatesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_updates_dropped_total",
			Help: "Updates dropped because an observer queue was full",
		}, []string{"observer"}),
		ObserverFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_observer_failures_total",
			Help: "Observer calls that returned an error or panicked",
		}, []string{"observer"}),
		UnconsumedStates: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_unconsumed_states",
			Help: "Unconsumed entries in the latest snapshot",
		}),
		SoftLockedStates: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_soft_locked_states",
			Help: "Soft-locked entries in the latest snapshot",
		}),
	}
}

// ObserveRecord records a committed batch of n transactions.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecord(start time.Time, n int) {
	if m == nil {
		return
	}
	m.BatchesRecorded.Inc()
	m.TransactionsRecorded.Add(float64(n))
	m.RecordDuration.Observe(time.Since(start).Seconds())
}

// IncrementRecordFailure records a rolled-back batch.
func (m *Metrics) IncrementRecordFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OTHER"
	}
	m.RecordFailures.WithLabelValues(code).Inc()
}

// ObserveQuery records the duration and result size of a query.
func (m *Metrics) ObserveQuery(backend string, start time.Time, results int) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	m.QueryResults.Observe(float64(results))
}

// IncrementDelivered records an update delivered to an observer.
func (m *Metrics) IncrementDelivered(observer string) {
	if m == nil {
		return
	}
	m.UpdatesDelivered.WithLabelValues(observer).Inc()
}

// IncrementDropped records an update dropped for an observer.
func (m *Metrics) IncrementDropped(observer string) {
	if m == nil {
		return
	}
	m.UpdatesDropped.WithLabelValues(observer).Inc()
}

// IncrementObserverFailure records a failed observer call.
func (m *Metrics) IncrementObserverFailure(observer string) {
	if m == nil {
		return
	}
	m.ObserverFailures.WithLabelValues(observer).Inc()
}

// SetStateGauges publishes snapshot sizes.
func (m *Metrics) SetStateGauges(unconsumed, softLocked int) {
	if m == nil {
		return
	}
	m.UnconsumedStates.Set(float64(unconsumed))
	m.SoftLockedStates.Set(float64(softLocked))
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
