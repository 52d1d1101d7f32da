// Package app assembles the stock services from their repositories so every
// binary wires them the same way.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-stock/internal/alerts"
	"github.com/angelmondragon/packfinderz-stock/internal/cron"
	"github.com/angelmondragon/packfinderz-stock/internal/movements"
	"github.com/angelmondragon/packfinderz-stock/internal/reservations"
	"github.com/angelmondragon/packfinderz-stock/internal/stock"
	"github.com/angelmondragon/packfinderz-stock/pkg/config"
	"github.com/angelmondragon/packfinderz-stock/pkg/db"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/metrics"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox"
	"github.com/angelmondragon/packfinderz-stock/pkg/redis"
)

const sweeperLockName = "reservation-sweeper"

// Services is the assembled domain layer.
type Services struct {
	Ledger       stock.Ledger
	Reservations reservations.Manager
	Movements    movements.Log
	Alerts       alerts.Service
	OutboxRepo   *outbox.Repository
	Metrics      *metrics.StockMetrics
}

// NewServices wires the ledger, reservation manager, movement log and alert
// engine on one database client. now may be nil.
func NewServices(cfg *config.Config, logg *logger.Logger, client *db.Client, reg prometheus.Registerer, now func() time.Time) (*Services, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("config and database client required")
	}
	outboxRepo := outbox.NewRepository(client.DB())
	publisher := outbox.NewService(outboxRepo, logg)

	log, err := movements.NewService(movements.NewRepository(client.DB()), now)
	if err != nil {
		return nil, fmt.Errorf("movement log: %w", err)
	}
	engine, err := alerts.NewService(alerts.NewRepository(client.DB()), client, publisher, logg, now)
	if err != nil {
		return nil, fmt.Errorf("alert engine: %w", err)
	}
	ledger, err := stock.NewService(stock.NewRepository(client.DB()), client, log, engine, logg)
	if err != nil {
		return nil, fmt.Errorf("stock ledger: %w", err)
	}
	stockMetrics := metrics.NewStockMetrics(reg)
	manager, err := reservations.NewService(reservations.ServiceParams{
		Repo:    reservations.NewRepository(client.DB()),
		DB:      client,
		Ledger:  ledger,
		Outbox:  publisher,
		Metrics: stockMetrics,
		Logger:  logg,
		Config:  cfg.Reservation,
		Now:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation manager: %w", err)
	}

	return &Services{
		Ledger:       ledger,
		Reservations: manager,
		Movements:    log,
		Alerts:       engine,
		OutboxRepo:   outboxRepo,
		Metrics:      stockMetrics,
	}, nil
}

// NewSweeper builds the cron service that expires reservations and prunes the
// outbox. With a redis client only one replica sweeps per cycle.
func NewSweeper(cfg *config.Config, logg *logger.Logger, client *db.Client, services *Services, redisClient *redis.Client, reg prometheus.Registerer) (*cron.Service, error) {
	if services == nil {
		return nil, fmt.Errorf("services required")
	}
	expiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:       logg,
		Reservations: services.Reservations,
		Metrics:      services.Metrics,
		BatchSize:    cfg.Sweeper.BatchSize,
		MaxBatches:   cfg.Sweeper.MaxBatches,
	})
	if err != nil {
		return nil, fmt.Errorf("expiry job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            client,
		Repository:    services.OutboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
		ParkedAfter:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	var lock cron.Lock
	if redisClient != nil {
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(sweeperLockName), cfg.Sweeper.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("sweeper lock: %w", err)
		}
	}

	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(expiry, retention),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Sweeper.Interval,
		JobTimeout: cfg.Sweeper.LockTTL,
	})
}
