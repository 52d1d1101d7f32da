package cron

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/metrics"
)

type fakeExpirer struct {
	due       map[uuid.UUID]time.Time
	failing   map[uuid.UUID]bool
	expired   []uuid.UUID
	findCalls int
	findErr   error
}

func newFakeExpirer() *fakeExpirer {
	return &fakeExpirer{due: map[uuid.UUID]time.Time{}, failing: map[uuid.UUID]bool{}}
}

func (f *fakeExpirer) add(expiresAt time.Time) uuid.UUID {
	id := uuid.New()
	f.due[id] = expiresAt
	return id
}

func (f *fakeExpirer) FindExpired(_ context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	var rows []models.Reservation
	for id, expiresAt := range f.due {
		if !expiresAt.After(now) {
			rows = append(rows, models.Reservation{ID: id, ExpiresAt: expiresAt})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ExpiresAt.Equal(rows[j].ExpiresAt) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].ExpiresAt.Before(rows[j].ExpiresAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeExpirer) Expire(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if f.failing[id] {
		return false, errors.New("storage unavailable")
	}
	expiresAt, ok := f.due[id]
	if !ok || expiresAt.After(now) {
		return false, nil
	}
	delete(f.due, id)
	f.expired = append(f.expired, id)
	return true, nil
}

func newExpiryJob(t *testing.T, expirer *fakeExpirer, stockMetrics *metrics.StockMetrics, batchSize, maxBatches int, now time.Time) *reservationExpiryJob {
	t.Helper()
	jobIface, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       newTestLogger(),
		Reservations: expirer,
		Metrics:      stockMetrics,
		BatchSize:    batchSize,
		MaxBatches:   maxBatches,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	job, ok := jobIface.(*reservationExpiryJob)
	if !ok {
		t.Fatalf("expected reservationExpiryJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }
	return job
}

func TestReservationExpiryJobValidation(t *testing.T) {
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Reservations: newFakeExpirer()}); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: newTestLogger()}); err == nil {
		t.Fatal("expected error for missing reservations")
	}
}

func TestReservationExpiryJobDrainsAcrossBatches(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	expirer := newFakeExpirer()
	for i := 0; i < 7; i++ {
		expirer.add(now.Add(-time.Duration(i+1) * time.Minute))
	}
	notDue := expirer.add(now.Add(time.Minute))

	registry := prometheus.NewRegistry()
	stockMetrics := metrics.NewStockMetrics(registry)
	job := newExpiryJob(t, expirer, stockMetrics, 3, 10, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(expirer.expired) != 7 {
		t.Fatalf("expected 7 expirations, got %d", len(expirer.expired))
	}
	if _, ok := expirer.due[notDue]; !ok {
		t.Fatal("reservation that is not due must stay active")
	}
	if expirer.findCalls != 3 {
		t.Fatalf("expected 3 batches, got %d", expirer.findCalls)
	}
	if got := counterValue(t, registry, "stock_sweeper_expired_total"); got != 7 {
		t.Fatalf("expected expired counter 7, got %v", got)
	}
}

func TestReservationExpiryJobContinuesPastFailures(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	expirer := newFakeExpirer()
	bad := expirer.add(now.Add(-time.Hour))
	for i := 0; i < 4; i++ {
		expirer.add(now.Add(-time.Duration(i+1) * time.Minute))
	}
	expirer.failing[bad] = true

	job := newExpiryJob(t, expirer, nil, 2, 10, now)
	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error for failing reservation")
	}
	if len(expirer.expired) != 4 {
		t.Fatalf("expected the 4 healthy reservations to expire, got %d", len(expirer.expired))
	}
	if _, ok := expirer.due[bad]; !ok {
		t.Fatal("failed reservation should remain for the next run")
	}
}

func TestReservationExpiryJobRespectsMaxBatches(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	expirer := newFakeExpirer()
	for i := 0; i < 10; i++ {
		expirer.add(now.Add(-time.Duration(i+1) * time.Minute))
	}

	job := newExpiryJob(t, expirer, nil, 2, 2, now)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(expirer.expired) != 4 {
		t.Fatalf("expected 4 expirations with 2 batches of 2, got %d", len(expirer.expired))
	}
}

func TestReservationExpiryJobReportsQueryFailure(t *testing.T) {
	expirer := newFakeExpirer()
	expirer.findErr = errors.New("db down")
	job := newExpiryJob(t, expirer, nil, 2, 2, time.Now())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
