package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/metrics"
)

const (
	defaultExpiryBatchSize  = 100
	defaultExpiryMaxBatches = 20
)

// ReservationExpiryJobParams configure the expired-hold sweeper.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
	Metrics      *metrics.StockMetrics
	BatchSize    int
	MaxBatches   int
}

type reservationExpirer interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// NewReservationExpiryJob builds the job that returns stock held by abandoned
// reservations to the pool.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultExpiryMaxBatches
	}
	return &reservationExpiryJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		metrics:      params.Metrics,
		batchSize:    batchSize,
		maxBatches:   maxBatches,
		now:          time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
	metrics      *metrics.StockMetrics
	batchSize    int
	maxBatches   int
	now          func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run expires due reservations in batches. A reservation that fails is
// logged and skipped for the rest of this run; the next run retries it.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var (
		errs     error
		expired  int
		skipped  int
		batches  int
		failures = map[uuid.UUID]struct{}{}
	)

	for batches < j.maxBatches {
		// Rows that failed earlier in this run are still due, so widen the
		// page by that many to make room for fresh candidates.
		limit := j.batchSize + len(failures)
		candidates, err := j.reservations.FindExpired(ctx, now, limit)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("find expired reservations: %w", err))
			break
		}
		batches++

		attempted := 0
		for _, reservation := range candidates {
			if _, failed := failures[reservation.ID]; failed {
				continue
			}
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			attempted++

			ok, err := j.reservations.Expire(ctx, reservation.ID, now)
			if err != nil {
				failures[reservation.ID] = struct{}{}
				errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", reservation.ID, err))
				logCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
				j.logg.Error(logCtx, "reservation expiry failed", err)
				continue
			}
			if ok {
				expired++
			} else {
				skipped++
			}
		}
		if attempted == 0 || len(candidates) < limit {
			break
		}
	}

	j.metrics.AddExpired(expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired": expired,
		"skipped": skipped,
		"failed":  len(failures),
		"batches": batches,
		"cutoff":  now,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}
