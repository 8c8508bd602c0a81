package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))

	m.Encoded("node", 10)
	m.Encoded("node", 5)
	m.Failed("edge", "unresolved_reference")
	m.ObserveImport(time.Now())
	m.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsEncoded.WithLabelValues("node")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.BytesWritten.WithLabelValues("node")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsFailed.WithLabelValues("edge", "unresolved_reference")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	m.SessionClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New().Register(reg))
	assert.Error(t, New().Register(reg))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Encoded("node", 1)
		m.Failed("node", "x")
		m.ObserveImport(time.Now())
		m.SessionOpened()
		m.SessionClosed()
	})
}
