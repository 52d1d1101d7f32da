package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStockMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStockMetrics(reg)

	m.ObserveReservation(OutcomeReserved, 0)
	m.ObserveReservation(OutcomeInsufficient, 2)
	m.IncTransition("expired")
	m.AddExpired(3)
	m.AddExpired(0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stock_reservation_requests_total", "outcome", OutcomeInsufficient); err != nil {
		t.Fatalf("fetch reservations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected insufficient=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "stock_reservation_transitions_total", "status", "expired"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected expired transitions=1, got %f", got)
	}

	shortages := findMetricFamily(mfs, "stock_insufficient_lines_total")
	if shortages == nil || shortages.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected 2 short lines, got %v", shortages)
	}
	expired := findMetricFamily(mfs, "stock_sweeper_expired_total")
	if expired == nil || expired.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected 3 expired, got %v", expired)
	}
}

func TestStockMetricsNilSafe(t *testing.T) {
	var m *StockMetrics
	m.ObserveReservation(OutcomeReserved, 1)
	m.IncTransition("confirmed")
	m.AddExpired(1)

	unregistered := NewStockMetrics(nil)
	unregistered.ObserveReservation(OutcomeError, 0)
}
