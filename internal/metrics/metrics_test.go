package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitoMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFitoMetrics(reg)

	m.IncAutoMatch(MatchMatched)
	m.IncAutoMatch(MatchMatched)
	m.IncAutoMatch(MatchStale)
	m.IncPoll(nil)
	m.IncPoll(errors.New("timeout"))
	m.IncJob(JobCompleted)
	m.SetActiveSessions(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "fito_automatch_total", "outcome", MatchMatched)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = counterValue(mfs, "fito_automatch_total", "outcome", MatchStale)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "fito_job_polls_total", "result", "error")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "fito_jobs_total", "status", JobCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	mf := findMetricFamily(mfs, "fito_active_sessions")
	require.NotNil(t, mf)
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetGauge().GetValue())
}

func TestFitoMetrics_NilSafe(t *testing.T) {
	var m *FitoMetrics
	assert.NotPanics(t, func() {
		m.IncAutoMatch(MatchError)
		m.IncPoll(nil)
		m.IncJob(JobFailed)
		m.SetActiveSessions(1)
	})

	unregistered := NewFitoMetrics(nil)
	assert.NotPanics(t, func() { unregistered.IncJob(JobSubmitted) })
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
