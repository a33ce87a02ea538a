package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	latency *prometheus.HistogramVec
}

// NewMetrics registers the LLM collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lemonhealth",
				Subsystem: "llm",
				Name:      "request_duration_seconds",
				Help:      "Latency of LLM completion attempts",
				Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30},
			},
			[]string{"provider", "purpose", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.latency)
	}
	return m
}

func (m *Metrics) observe(provider string, purpose Purpose, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(provider, string(purpose), status).Observe(d.Seconds())
}
