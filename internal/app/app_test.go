package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-stock/internal/reservations"
	"github.com/angelmondragon/packfinderz-stock/internal/stock"
	"github.com/angelmondragon/packfinderz-stock/pkg/config"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func testConfig() *config.Config {
	return &config.Config{
		Reservation: config.ReservationConfig{DefaultHold: 15 * time.Minute, MaxHold: time.Hour},
		Sweeper:     config.SweeperConfig{Interval: time.Second, BatchSize: 2, MaxBatches: 5},
		Outbox:      config.OutboxConfig{MaxAttempts: 10, RetentionDays: 30},
	}
}

func TestSweeperExpiresDueReservations(t *testing.T) {
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	ctx := context.Background()

	// The sweeper reads wall-clock time, so holds are placed an hour in the past.
	c := &clock{now: time.Now().UTC().Add(-time.Hour)}
	services, err := NewServices(cfg, logg, client, registry, c.Now)
	require.NoError(t, err)

	_, _, err = services.Ledger.CreateProduct(ctx, stock.CreateProductInput{ProductID: "A", InitialStock: 10})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := services.Reservations.Reserve(ctx, reservations.ReserveInput{
			Lines:        []reservations.LineInput{{ProductID: "A", Quantity: 2}},
			HoldDuration: time.Minute,
		})
		require.NoError(t, err)
		ids = append(ids, res.ID.String())
	}
	row, err := services.Ledger.GetProduct(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 6, row.ReservedStock)

	sweeper, err := NewSweeper(cfg, logg, client, services, nil, registry)
	require.NoError(t, err)
	require.NoError(t, sweeper.RunOnce(ctx))

	row, err = services.Ledger.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, row.ReservedStock)
	assert.Equal(t, 10, row.TotalStock)

	for _, res := range ids {
		var status string
		require.NoError(t, client.DB().Table("reservations").Select("status").Where("id = ?", res).Scan(&status).Error)
		assert.Equal(t, string(enums.ReservationStatusExpired), status)
	}
}

func TestNewServicesRequiresClient(t *testing.T) {
	_, err := NewServices(testConfig(), nil, nil, nil, nil)
	require.Error(t, err)
}

func TestNewSweeperRequiresServices(t *testing.T) {
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})

	_, err := NewSweeper(testConfig(), logg, client, nil, nil, prometheus.NewRegistry())
	require.Error(t, err)
}
