package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountersAndBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	pending := int64(4)
	m := NewOutboxMetrics(reg, func() (int64, error) { return pending, nil })

	m.IncPublished()
	m.IncPublished()
	m.IncFailed()
	m.IncParked()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, findMetricFamily(mfs, "stock_outbox_published_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, findMetricFamily(mfs, "stock_outbox_failed_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, findMetricFamily(mfs, "stock_outbox_parked_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 4.0, findMetricFamily(mfs, "stock_outbox_pending").GetMetric()[0].GetGauge().GetValue())
}

func TestOutboxBacklogUnknownOnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg, func() (int64, error) { return 0, errors.New("db down") })

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(findMetricFamily(mfs, "stock_outbox_pending").GetMetric()[0].GetGauge().GetValue()))

	var nilMetrics *OutboxMetrics
	nilMetrics.IncParked()
	NewOutboxMetrics(nil, nil).IncPublished()
}
