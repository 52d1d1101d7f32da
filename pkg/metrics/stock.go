package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reservation outcomes recorded by StockMetrics.
const (
	OutcomeReserved     = "reserved"
	OutcomeInsufficient = "insufficient"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// StockMetrics counts reservation traffic and lifecycle transitions.
type StockMetrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	shortages    prometheus.Counter
	expired      prometheus.Counter
}

// NewStockMetrics registers the stock metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_requests_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_transitions_total",
		Help: "Reservations moved into a terminal status.",
	}, []string{"status"})
	shortages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_insufficient_lines_total",
		Help: "Reservation lines rejected for insufficient stock.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_sweeper_expired_total",
		Help: "Reservations expired by the sweeper.",
	})
	reg.MustRegister(reservations, transitions, shortages, expired)
	return &StockMetrics{
		reservations: reservations,
		transitions:  transitions,
		shortages:    shortages,
		expired:      expired,
	}
}

// ObserveReservation records the outcome of one Reserve call.
func (m *StockMetrics) ObserveReservation(outcome string, shortLines int) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	if shortLines > 0 {
		m.shortages.Add(float64(shortLines))
	}
}

// IncTransition records a terminal transition.
func (m *StockMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// AddExpired records reservations reclaimed by one sweep.
func (m *StockMetrics) AddExpired(count int) {
	if m == nil || m.expired == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}
