package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRecord(time.Now(), 3)
	m.IncrementRecordFailure("CONFLICT")
	m.IncrementRecordFailure("")
	m.IncrementDropped("audit")
	m.IncrementDropped("audit")
	m.SetStateGauges(5, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesRecorded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TransactionsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordFailures.WithLabelValues("CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordFailures.WithLabelValues("OTHER")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpdatesDropped.WithLabelValues("audit")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.UnconsumedStates))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecord(time.Now(), 1)
		m.ObserveQuery("memory", time.Now(), 2)
		m.IncrementDelivered("x")
		m.SetStateGauges(1, 1)
	})
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetStateGauges(4, 2)
	m.IncrementRecordFailure("STORAGE")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()
	assert.Contains(t, out, "# TYPE vault_unconsumed_states gauge")
	assert.Contains(t, out, "vault_unconsumed_states 4")
	assert.Contains(t, out, "vault_soft_locked_states 2")
	assert.Contains(t, out, `vault_record_failures_total{code="STORAGE"} 1`)
}
