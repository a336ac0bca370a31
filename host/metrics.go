package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomyedwab/libsqlbridge/handle"
)

const metricsNamespace = "libsqlbridge"

type metrics struct {
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	live      *prometheus.GaugeVec
	finalized *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calls_total",
			Help:      "Boundary calls by call name and outcome.",
		}, []string{"call", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent in boundary calls, including the bridged database operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"call"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "handles_live",
			Help:      "Native resources currently wrapped in handles.",
		}, []string{"kind"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handles_finalized_total",
			Help:      "Native resources finalized after their last handle was dropped.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.duration, m.live, m.finalized} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeCall(call string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(call, outcome).Inc()
	m.duration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

func (m *metrics) wrapped(kind handle.Kind) {
	m.live.WithLabelValues(string(kind)).Inc()
}

func (m *metrics) finalize(kind handle.Kind) {
	m.live.WithLabelValues(string(kind)).Dec()
	m.finalized.WithLabelValues(string(kind)).Inc()
}
