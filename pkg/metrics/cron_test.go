package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1767600000, 0) }

	m.ObserveDuration("reservation-expiry", 250*time.Millisecond)
	m.IncSuccess("reservation-expiry")
	m.IncSuccess("reservation-expiry")
	m.IncFailure("reservation-expiry")
	m.IncFailure("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := findMetricFamily(mfs, "stock_job_runs_total")
	require.NotNil(t, runs)
	assert.Equal(t, 2.0, metricWithLabels(runs, map[string]string{"job": "reservation-expiry", "outcome": "success"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricWithLabels(runs, map[string]string{"job": "reservation-expiry", "outcome": "failure"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, metricWithLabels(runs, map[string]string{"job": "unknown", "outcome": "failure"}).GetCounter().GetValue())

	last := findMetricFamily(mfs, "stock_job_last_success_timestamp_seconds")
	require.NotNil(t, last)
	assert.Equal(t, 1767600000.0, metricWithLabels(last, map[string]string{"job": "reservation-expiry"}).GetGauge().GetValue())

	duration := findMetricFamily(mfs, "stock_job_duration_seconds")
	require.NotNil(t, duration)
	assert.InDelta(t, 0.25, metricWithLabels(duration, map[string]string{"job": "reservation-expiry"}).GetHistogram().GetSampleSum(), 1e-9)
}

func TestCronJobMetricsWithoutRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveDuration("job", time.Second)
	m.IncSuccess("job")
	m.IncFailure("job")

	var nilMetrics *CronJobMetrics
	nilMetrics.IncSuccess("job")
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func metricWithLabels(mf *dto.MetricFamily, labels map[string]string) *dto.Metric {
	for _, metric := range mf.GetMetric() {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if labels[pair.GetName()] == pair.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return metric
		}
	}
	return &dto.Metric{}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}
