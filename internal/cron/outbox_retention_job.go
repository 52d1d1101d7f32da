package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxParkedAfter   = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxRetentionJobParams configure pruning of delivered outbox rows.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPruner
	RetentionDays int
	// ParkedAfter is the attempt count at which the publisher stops retrying
	// a row. Rows at or above it are pruned alongside published rows.
	ParkedAfter int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	parked := params.ParkedAfter
	if parked <= 0 {
		parked = defaultOutboxParkedAfter
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		pruner:      params.Repository,
		retention:   time.Duration(days) * 24 * time.Hour,
		parkedAfter: parked,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	pruner      outboxPruner
	retention   time.Duration
	parkedAfter int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.pruner.DeletePublishedBefore(ctx, tx, cutoff, j.parkedAfter)
		pruned = n
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	if pruned == 0 {
		j.logg.Debug(ctx, "outbox retention found nothing to prune")
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"parked_after": j.parkedAfter,
		"pruned":       pruned,
	})
	j.logg.Info(logCtx, "outbox rows pruned")
	return nil
}
