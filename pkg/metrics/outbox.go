package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts publisher outcomes for alert and reservation events.
type OutboxMetrics struct {
	published prometheus.Counter
	failed    prometheus.Counter
	parked    prometheus.Counter
}

// NewOutboxMetrics registers the publisher counters. When pending is set it
// also exports the unpublished backlog, read at scrape time.
func NewOutboxMetrics(reg prometheus.Registerer, pending func() (int64, error)) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_outbox_published_total",
			Help: "Outbox events delivered to Pub/Sub.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_outbox_failed_total",
			Help: "Outbox publish attempts that will be retried.",
		}),
		parked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_outbox_parked_total",
			Help: "Outbox events that stopped retrying.",
		}),
	}
	reg.MustRegister(m.published, m.failed, m.parked)
	if pending != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stock_outbox_pending",
			Help: "Outbox events not yet published.",
		}, func() float64 {
			count, err := pending()
			if err != nil {
				return math.NaN()
			}
			return float64(count)
		}))
	}
	return m
}

func (m *OutboxMetrics) IncPublished() {
	if m != nil && m.published != nil {
		m.published.Inc()
	}
}

func (m *OutboxMetrics) IncFailed() {
	if m != nil && m.failed != nil {
		m.failed.Inc()
	}
}

func (m *OutboxMetrics) IncParked() {
	if m != nil && m.parked != nil {
		m.parked.Inc()
	}
}
