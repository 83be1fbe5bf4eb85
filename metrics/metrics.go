// Package metrics holds the prometheus collectors for the market store, the
// back-solver and rate refreshes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fxlib"

// Metrics groups every collector the library exports.
type Metrics struct {
	StoreMutations     *prometheus.CounterVec
	StoreNotifications *prometheus.CounterVec
	StoreRejected      *prometheus.CounterVec
	BackSolves         *prometheus.CounterVec
	BackSolveDuration  prometheus.Histogram
	RateRefreshes      *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg skips
// registration, which keeps parallel tests free of duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoreMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Field mutations committed, by origin and field.",
		}, []string{"origin", "field"}),
		StoreNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "notifications_total",
			Help:      "Change notifications dispatched, by change kind.",
		}, []string{"kind"}),
		StoreRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rejected_total",
			Help:      "Batches rolled back, by origin.",
		}, []string{"origin"}),
		BackSolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backsolve",
			Name:      "total",
			Help:      "Back-solves, by solved field and result.",
		}, []string{"field", "result"}),
		BackSolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backsolve",
			Name:      "duration_seconds",
			Help:      "Back-solve latency including write-back and curve rebuild.",
			Buckets:   []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2},
		}),
		RateRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratesource",
			Name:      "refresh_total",
			Help:      "Per-leg rate refreshes, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.StoreMutations,
			m.StoreNotifications,
			m.StoreRejected,
			m.BackSolves,
			m.BackSolveDuration,
			m.RateRefreshes,
		)
	}
	return m
}

// Mutation counts one committed field change.
func (m *Metrics) Mutation(origin, field string) {
	if m == nil {
		return
	}
	m.StoreMutations.WithLabelValues(origin, field).Inc()
}

// Notification counts one subscriber dispatch by change kind.
func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.StoreNotifications.WithLabelValues(kind).Inc()
}

// Rejected counts a batch that failed and committed nothing.
func (m *Metrics) Rejected(origin string) {
	if m == nil {
		return
	}
	m.StoreRejected.WithLabelValues(origin).Inc()
}

// BackSolve records one solve and its latency.
func (m *Metrics) BackSolve(field string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BackSolves.WithLabelValues(field, result(err)).Inc()
	m.BackSolveDuration.Observe(elapsed.Seconds())
}

// RateRefresh counts one per-leg rate fetch.
func (m *Metrics) RateRefresh(err error) {
	if m == nil {
		return
	}
	m.RateRefreshes.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
