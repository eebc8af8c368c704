package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStatement("select", time.Millisecond, nil)
	m.ObserveStatement("SELECT", time.Millisecond, nil)
	m.ObserveStatement("UPDATE", time.Millisecond, errors.New("boom"))
	m.ObserveDiff(true)
	m.ObserveDiff(false)
	m.ObserveDiff(false)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Reset()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statements.WithLabelValues("SELECT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statements.WithLabelValues("UPDATE", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffs.WithLabelValues("correct")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diffs.WithLabelValues("incorrect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))

	n, err := testutil.GatherAndCount(reg, "sqlmission_statement_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStatement("SELECT", time.Millisecond, nil)
		m.ObserveDiff(true)
		m.SessionOpened()
		m.SessionClosed()
		m.Reset()
	})
}
