package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auto-match outcomes.
const (
	MatchMatched   = "matched"
	MatchUnmatched = "unmatched"
	MatchError     = "error"
	MatchStale     = "stale"
)

// Job lifecycle events.
const (
	JobSubmitted    = "submitted"
	JobSubmitFailed = "submit_failed"
	JobCompleted    = "completed"
	JobFailed       = "failed"
)

// FitoMetrics records the behaviour of the certificate wizard.
// A nil *FitoMetrics is valid and records nothing.
type FitoMetrics struct {
	autoMatch      *prometheus.CounterVec
	polls          *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewFitoMetrics registers the collectors on reg.
func NewFitoMetrics(reg prometheus.Registerer) *FitoMetrics {
	if reg == nil {
		return &FitoMetrics{}
	}
	autoMatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fito_automatch_total",
		Help: "Product auto-match attempts by outcome.",
	}, []string{"outcome"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fito_job_polls_total",
		Help: "Generation job status polls by result.",
	}, []string{"result"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fito_jobs_total",
		Help: "Generation jobs by lifecycle event.",
	}, []string{"status"})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fito_active_sessions",
		Help: "Open wizard sessions.",
	})
	reg.MustRegister(autoMatch, polls, jobs, activeSessions)
	return &FitoMetrics{
		autoMatch:      autoMatch,
		polls:          polls,
		jobs:           jobs,
		activeSessions: activeSessions,
	}
}

func (m *FitoMetrics) IncAutoMatch(outcome string) {
	if m == nil || m.autoMatch == nil {
		return
	}
	m.autoMatch.WithLabelValues(outcome).Inc()
}

// IncPoll counts one status poll; a nil err is recorded as "ok".
func (m *FitoMetrics) IncPoll(err error) {
	if m == nil || m.polls == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(result).Inc()
}

func (m *FitoMetrics) IncJob(status string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

func (m *FitoMetrics) SetActiveSessions(n int) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
