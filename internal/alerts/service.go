package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packfinderz-stock/pkg/db"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service keeps the open alert set in line with each product's stock level.
type Service interface {
	// Evaluate loads the product inside tx and reconciles its alerts.
	Evaluate(ctx context.Context, tx *gorm.DB, productID string) (*Outcome, error)
	// EvaluateStock reconciles alerts for a stock row the caller already holds.
	EvaluateStock(ctx context.Context, tx *gorm.DB, stock models.ProductStock) (*Outcome, error)
	List(ctx context.Context, filters ListFilters) (*ListResult, error)
	Resolve(ctx context.Context, alertID uuid.UUID) (*models.StockAlert, error)
}

// Outcome lists the alerts raised and resolved by one evaluation.
type Outcome struct {
	Raised   []models.StockAlert
	Resolved []models.StockAlert
}

// ListFilters narrows an alert listing. All fields are optional.
type ListFilters struct {
	ProductID      string
	Type           enums.AlertType
	UnresolvedOnly bool
	CreatedAfter   *time.Time
	Limit          int
	Cursor         string
}

// ListResult is one page of alerts, oldest first.
type ListResult struct {
	Alerts     []models.StockAlert `json:"alerts"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the alert engine. A nil clock defaults to time.Now.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("alert repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, tx: tx, outbox: publisher, logg: logg, now: now}, nil
}

func (s *service) Evaluate(ctx context.Context, tx *gorm.DB, productID string) (*Outcome, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	var stock models.ProductStock
	if err := tx.WithContext(ctx).Where("product_id = ?", productID).First(&stock).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.NotFound("product", productID)
		}
		return nil, dbpkg.Classify(err)
	}
	return s.EvaluateStock(ctx, tx, stock)
}

func (s *service) EvaluateStock(ctx context.Context, tx *gorm.DB, stock models.ProductStock) (*Outcome, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	open, err := repo.FindOpen(ctx, stock.ProductID)
	if err != nil {
		return nil, dbpkg.Classify(err)
	}
	openByType := make(map[enums.AlertType]models.StockAlert, len(open))
	for _, alert := range open {
		openByType[alert.Type] = alert
	}

	desired := desiredAlerts(stock)
	now := s.now().UTC()
	outcome := &Outcome{}

	for _, alertType := range enums.AlertTypes() {
		threshold, want := desired[alertType]
		existing, isOpen := openByType[alertType]

		switch {
		case want && !isOpen:
			alert := models.StockAlert{
				ProductID:              stock.ProductID,
				Type:                   alertType,
				ThresholdAtCreation:    threshold,
				CurrentStockAtCreation: stock.TotalStock,
				CreatedAt:              now,
			}
			created, err := repo.CreateIfAbsent(ctx, &alert)
			if err != nil {
				return nil, dbpkg.Classify(err)
			}
			if !created {
				continue
			}
			if err := s.emit(ctx, tx, alert, enums.EventStockAlertRaised); err != nil {
				return nil, err
			}
			outcome.Raised = append(outcome.Raised, alert)
		case !want && isOpen:
			resolved, err := repo.MarkResolved(ctx, existing.ID, now)
			if err != nil {
				return nil, dbpkg.Classify(err)
			}
			if !resolved {
				continue
			}
			existing.IsResolved = true
			existing.ResolvedAt = &now
			if err := s.emit(ctx, tx, existing, enums.EventStockAlertResolved); err != nil {
				return nil, err
			}
			outcome.Resolved = append(outcome.Resolved, existing)
		}
	}

	if s.logg != nil && (len(outcome.Raised) > 0 || len(outcome.Resolved) > 0) {
		logCtx := s.logg.WithFields(s.logg.WithProductID(ctx, stock.ProductID), map[string]any{
			"alerts_raised":   len(outcome.Raised),
			"alerts_resolved": len(outcome.Resolved),
			"total_stock":     stock.TotalStock,
		})
		s.logg.Info(logCtx, "stock alerts evaluated")
	}
	return outcome, nil
}

// desiredAlerts maps each alert type that should be open to the threshold it
// reports. Out-of-stock and low-stock never hold at the same time. Reorder
// point is independent of both, so a level of 0 still fires at zero stock.
func desiredAlerts(stock models.ProductStock) map[enums.AlertType]int {
	desired := map[enums.AlertType]int{}
	if !stock.IsTracked {
		return desired
	}
	total := stock.TotalStock
	if total == 0 {
		desired[enums.AlertTypeOutOfStock] = 0
	} else if total <= stock.LowStockThreshold {
		desired[enums.AlertTypeLowStock] = stock.LowStockThreshold
	}
	if total <= stock.ReorderLevel {
		desired[enums.AlertTypeReorderPoint] = stock.ReorderLevel
	}
	return desired
}

func (s *service) List(ctx context.Context, filters ListFilters) (*ListResult, error) {
	if filters.Type != "" && !filters.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid alert type %q", filters.Type))
	}
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listQuery{
		ProductID:      filters.ProductID,
		Type:           filters.Type,
		UnresolvedOnly: filters.UnresolvedOnly,
		CreatedAfter:   filters.CreatedAfter,
		After:          cursor,
		Limit:          pagination.LimitWithBuffer(filters.Limit),
	})
	if err != nil {
		return nil, dbpkg.Classify(err)
	}

	page, last := pagination.Trim(rows, filters.Limit)
	result := &ListResult{Alerts: page}
	if last != nil {
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

// Resolve closes an alert by hand. Resolving an already resolved alert
// returns it unchanged.
func (s *service) Resolve(ctx context.Context, alertID uuid.UUID) (*models.StockAlert, error) {
	var alert *models.StockAlert
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, alertID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.NotFound("alert", alertID.String())
			}
			return dbpkg.Classify(err)
		}
		alert = found
		if found.IsResolved {
			return nil
		}

		now := s.now().UTC()
		resolved, err := repo.MarkResolved(ctx, alertID, now)
		if err != nil {
			return dbpkg.Classify(err)
		}
		if !resolved {
			return nil
		}
		alert.IsResolved = true
		alert.ResolvedAt = &now
		return s.emit(ctx, tx, *alert, enums.EventStockAlertResolved)
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, alert models.StockAlert, eventType enums.OutboxEventType) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   alert.ID.String(),
		Data: payloads.StockAlertEvent{
			AlertID:      alert.ID.String(),
			ProductID:    alert.ProductID,
			AlertType:    alert.Type,
			Threshold:    alert.ThresholdAtCreation,
			CurrentStock: alert.CurrentStockAtCreation,
			Resolved:     alert.IsResolved,
		},
		OccurredAt: s.now().UTC(),
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return fmt.Errorf("emit %s: %w", eventType, err)
	}
	return nil
}
