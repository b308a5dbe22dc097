package bifrost

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// metrics holds the store's Prometheus collectors.
type metrics struct {
	opsTotal    *prometheus.CounterVec   // operations by op and result
	opDuration  *prometheus.HistogramVec // operation latency by op
	sweptTotal  prometheus.Counter       // rows reaped by sweeps
	absentTotal *prometheus.CounterVec   // lookups that found no live session
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bifrost",
			Name:      "operations_total",
			Help:      "Session store operations by operation and result.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bifrost",
			Name:      "operation_duration_seconds",
			Help:      "Session store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bifrost",
			Name:      "swept_rows_total",
			Help:      "Expired session rows marked dead by sweeps.",
		}),
		absentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bifrost",
			Name:      "absent_sessions_total",
			Help:      "Operations that found no live session for the key.",
		}, []string{"op"}),
	}

	if reg != nil {
		m.opsTotal = register(reg, m.opsTotal)
		m.opDuration = register(reg, m.opDuration)
		m.sweptTotal = register(reg, m.sweptTotal)
		m.absentTotal = register(reg, m.absentTotal)
	}
	return m
}

// register adds c to reg. If an identical collector is already registered,
// as when two stores share a registry, that one is returned instead.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// observe records one finished operation.
func (m *metrics) observe(op string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.opsTotal.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
