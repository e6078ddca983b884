package replenishment

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for replenishment runs.
type Metrics struct {
	decisions *prometheus.CounterVec
	orders    prometheus.Counter
	failures  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer uses the default
// Prometheus registerer once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func (m *Metrics) decision(skip SkipReason) {
	if m == nil {
		return
	}
	outcome := string(skip)
	if skip == SkipNone {
		outcome = "reorder"
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) orderCreated() {
	if m == nil {
		return
	}
	m.orders.Inc()
}

func (m *Metrics) failure(stage Stage) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(stage)).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_replenishment_decisions_total",
		Help: "Auto-reorder evaluations partitioned by outcome.",
	}, []string{"outcome"})
	orders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockroom_replenishment_orders_total",
		Help: "Purchase orders placed by auto-reorder.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_replenishment_failures_total",
		Help: "Auto-reorder side-effect failures partitioned by stage.",
	}, []string{"stage"})
	registerer.MustRegister(decisions, orders, failures)
	return &Metrics{decisions: decisions, orders: orders, failures: failures}
}
