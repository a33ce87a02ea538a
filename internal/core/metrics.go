package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts chat pipeline decisions. A nil *Metrics records nothing.
type Metrics struct {
	guardrail  *prometheus.CounterVec
	completion *prometheus.CounterVec
	otpIssued  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		guardrail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonhealth_guardrail_decisions_total",
			Help: "Topic guardrail decisions by outcome.",
		}, []string{"decision"}),
		completion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonhealth_profile_completion_outcomes_total",
			Help: "Profile completion pipeline outcomes.",
		}, []string{"outcome"}),
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lemonhealth_verification_codes_issued_total",
			Help: "Verification codes issued by purpose and SMS delivery result.",
		}, []string{"purpose", "delivered"}),
	}
	if reg != nil {
		reg.MustRegister(m.guardrail, m.completion, m.otpIssued)
	}
	return m
}

func (m *Metrics) guardrailDecision(decision string) {
	if m == nil {
		return
	}
	m.guardrail.WithLabelValues(decision).Inc()
}

func (m *Metrics) completionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.completion.WithLabelValues(outcome).Inc()
}

func (m *Metrics) codeIssued(purpose string, delivered bool) {
	if m == nil {
		return
	}
	d := "false"
	if delivered {
		d = "true"
	}
	m.otpIssued.WithLabelValues(purpose, d).Inc()
}
