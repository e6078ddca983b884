package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("replenishment:scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("replenishment:scan").End(boom), boom)
	m.AddProcessed("replenishment:scan", 3)
	m.AddProcessed("replenishment:scan", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("replenishment:scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("replenishment:scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("replenishment:scan")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.processed.WithLabelValues("replenishment:scan")))

	var nilMetrics *Metrics
	require.NoError(t, nilMetrics.Track("x").End(nil))
	nilMetrics.AddProcessed("x", 1)
}
