package stock

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/internal/alerts"
	"github.com/angelmondragon/packfinderz-stock/internal/movements"
	dbpkg "github.com/angelmondragon/packfinderz-stock/pkg/db"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

const alertSavepoint = "stock_alerts"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type movementAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry movements.Entry) (*models.StockMovement, error)
}

type alertEvaluator interface {
	EvaluateStock(ctx context.Context, tx *gorm.DB, stock models.ProductStock) (*alerts.Outcome, error)
}

// Ledger owns the total/reserved counters for every product. Counters only
// change through these operations.
type Ledger interface {
	GetAvailability(ctx context.Context, productID string, requestedQty int) (*Availability, error)
	IncrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error
	DecrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error
	ApplySale(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error
	AdjustTotal(ctx context.Context, input AdjustInput) (*models.ProductStock, error)

	CreateProduct(ctx context.Context, input CreateProductInput) (*models.ProductStock, bool, error)
	UpdateSettings(ctx context.Context, productID string, input SettingsInput) (*models.ProductStock, error)
	GetProduct(ctx context.Context, productID string) (*models.ProductStock, error)
	ListSnapshot(ctx context.Context, filters SnapshotFilters) (*SnapshotPage, error)
}

// MutationRef describes why counters moved. It lands on the movement row.
type MutationRef struct {
	Reason    string
	Reference string
}

// Availability is a point-in-time read of committed counters.
type Availability struct {
	ProductID    string `json:"productId"`
	Available    bool   `json:"available"`
	AvailableQty int    `json:"availableQty"`
	IsLowStock   bool   `json:"isLowStock"`
	IsOutOfStock bool   `json:"isOutOfStock"`
	IsTracked    bool   `json:"isTracked"`
}

// AdjustInput changes the physical count of a product.
type AdjustInput struct {
	ProductID string
	Delta     int
	Kind      enums.AdjustmentKind
	Reason    string
	Reference string
}

// CreateProductInput registers a product with the ledger. IsTracked defaults to true.
type CreateProductInput struct {
	ProductID         string
	InitialStock      int
	LowStockThreshold int
	ReorderLevel      int
	IsTracked         *bool
}

// SettingsInput carries partial updates; nil fields are left unchanged.
type SettingsInput struct {
	LowStockThreshold *int
	ReorderLevel      *int
	IsTracked         *bool
}

// SnapshotFilters pages through the ledger in product id order.
type SnapshotFilters struct {
	TrackedOnly bool
	Limit       int
	Cursor      string
}

// SnapshotPage is one page of the ledger export.
type SnapshotPage struct {
	Products   []models.ProductStock `json:"products"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

type service struct {
	repo      Repository
	tx        txRunner
	movements movementAppender
	alerts    alertEvaluator
	logg      *logger.Logger
}

// NewService wires the ledger. The alert evaluator is optional.
func NewService(repo Repository, tx txRunner, log movementAppender, alertEngine alertEvaluator, logg *logger.Logger) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("movement log required")
	}
	return &service{repo: repo, tx: tx, movements: log, alerts: alertEngine, logg: logg}, nil
}

func (s *service) GetAvailability(ctx context.Context, productID string, requestedQty int) (*Availability, error) {
	if requestedQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must be zero or positive")
	}
	stock, err := s.load(ctx, s.repo, productID)
	if err != nil {
		return nil, err
	}

	available := stock.AvailableStock()
	result := &Availability{
		ProductID:    stock.ProductID,
		AvailableQty: available,
		IsTracked:    stock.IsTracked,
	}
	if !stock.IsTracked {
		result.Available = true
		return result, nil
	}
	result.Available = requestedQty <= available
	result.IsOutOfStock = available == 0
	result.IsLowStock = available > 0 && available <= stock.LowStockThreshold
	return result, nil
}

func (s *service) IncrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.within(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reserved, err := repo.TryIncrementReserved(ctx, productID, qty)
		if err != nil {
			return dbpkg.Classify(err)
		}

		stock, err := s.load(ctx, repo, productID)
		if err != nil {
			return err
		}
		if !reserved && stock.IsTracked {
			return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				ProductID: productID,
				Requested: qty,
				Available: stock.AvailableStock(),
			})
		}

		return s.record(ctx, tx, *stock, movements.Entry{
			ProductID:      productID,
			Type:           enums.MovementTypeReserve,
			QuantitySigned: -qty,
			PreviousTotal:  stock.TotalStock,
			NewTotal:       stock.TotalStock,
			Reason:         ref.reasonOr("reservation"),
			Reference:      ref.Reference,
		})
	})
}

func (s *service) DecrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.within(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock, err := s.loadForUpdate(ctx, repo, productID)
		if err != nil {
			return err
		}

		if stock.IsTracked {
			stock.ReservedStock = s.clampReserved(ctx, *stock, qty, "decrement_reserved")
			if err := repo.SaveCounters(ctx, productID, stock.TotalStock, stock.ReservedStock); err != nil {
				return dbpkg.Classify(err)
			}
		}

		return s.record(ctx, tx, *stock, movements.Entry{
			ProductID:      productID,
			Type:           enums.MovementTypeRelease,
			QuantitySigned: qty,
			PreviousTotal:  stock.TotalStock,
			NewTotal:       stock.TotalStock,
			Reason:         ref.reasonOr("reservation released"),
			Reference:      ref.Reference,
		})
	})
}

func (s *service) ApplySale(ctx context.Context, tx *gorm.DB, productID string, qty int, ref MutationRef) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.within(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock, err := s.loadForUpdate(ctx, repo, productID)
		if err != nil {
			return err
		}

		previous := stock.TotalStock
		if stock.IsTracked {
			if qty > stock.TotalStock {
				return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
					ProductID: productID,
					Requested: qty,
					Available: stock.TotalStock,
				})
			}
			stock.ReservedStock = s.clampReserved(ctx, *stock, qty, "apply_sale")
			stock.TotalStock -= qty
			if err := repo.SaveCounters(ctx, productID, stock.TotalStock, stock.ReservedStock); err != nil {
				return dbpkg.Classify(err)
			}
		}

		return s.record(ctx, tx, *stock, movements.Entry{
			ProductID:      productID,
			Type:           enums.MovementTypeSale,
			QuantitySigned: -qty,
			PreviousTotal:  previous,
			NewTotal:       stock.TotalStock,
			Reason:         ref.reasonOr("sale"),
			Reference:      ref.Reference,
		})
	})
}

func (s *service) AdjustTotal(ctx context.Context, input AdjustInput) (*models.ProductStock, error) {
	if err := validateAdjustment(input); err != nil {
		return nil, err
	}

	var result *models.ProductStock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock, err := s.loadForUpdate(ctx, repo, input.ProductID)
		if err != nil {
			return err
		}

		previous := stock.TotalStock
		next := previous + input.Delta
		if next < 0 {
			return pkgerrors.InvalidAdjustment(input.ProductID,
				fmt.Sprintf("adjustment of %d would leave total stock at %d", input.Delta, next))
		}
		if stock.IsTracked && next < stock.ReservedStock {
			return pkgerrors.InvalidAdjustment(input.ProductID,
				fmt.Sprintf("total stock %d cannot drop below %d reserved units", next, stock.ReservedStock))
		}

		stock.TotalStock = next
		if err := repo.SaveCounters(ctx, input.ProductID, stock.TotalStock, stock.ReservedStock); err != nil {
			return dbpkg.Classify(err)
		}
		if err := s.record(ctx, tx, *stock, movements.Entry{
			ProductID:      input.ProductID,
			Type:           input.Kind.MovementType(),
			QuantitySigned: input.Delta,
			PreviousTotal:  previous,
			NewTotal:       next,
			Reason:         strings.TrimSpace(input.Reason),
			Reference:      input.Reference,
		}); err != nil {
			return err
		}
		result = stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithProductID(ctx, input.ProductID), map[string]any{
			"delta":       input.Delta,
			"kind":        input.Kind,
			"total_stock": result.TotalStock,
		})
		s.logg.Info(logCtx, "stock adjusted")
	}
	return result, nil
}

func validateAdjustment(input AdjustInput) error {
	if strings.TrimSpace(input.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid adjustment kind %q", input.Kind))
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	switch {
	case input.Delta == 0:
		return pkgerrors.InvalidAdjustment(input.ProductID, "delta must be non-zero")
	case input.Kind == enums.AdjustmentKindRestock && input.Delta < 0:
		return pkgerrors.InvalidAdjustment(input.ProductID, "restock delta must be positive")
	case input.Kind == enums.AdjustmentKindWriteOff && input.Delta > 0:
		return pkgerrors.InvalidAdjustment(input.ProductID, "write-off delta must be negative")
	}
	return nil
}

// CreateProduct registers a stock record. Registering an existing product
// returns the stored record untouched and created=false.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.ProductStock, bool, error) {
	productID := strings.TrimSpace(input.ProductID)
	switch {
	case productID == "":
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case len(productID) > 64:
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "product id must be at most 64 characters")
	case input.InitialStock < 0, input.LowStockThreshold < 0, input.ReorderLevel < 0:
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "stock levels must be zero or positive")
	}
	tracked := true
	if input.IsTracked != nil {
		tracked = *input.IsTracked
	}

	var (
		result  *models.ProductStock
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Find(ctx, productID)
		if err == nil {
			result = existing
			return nil
		}
		if !dbpkg.IsNotFound(err) {
			return dbpkg.Classify(err)
		}

		stock := &models.ProductStock{
			ProductID:         productID,
			TotalStock:        input.InitialStock,
			LowStockThreshold: input.LowStockThreshold,
			ReorderLevel:      input.ReorderLevel,
			IsTracked:         tracked,
		}
		if err := repo.Create(ctx, stock); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product registered concurrently")
			}
			return dbpkg.Classify(err)
		}
		result = stock
		created = true

		if input.InitialStock > 0 {
			_, err := s.movements.Append(ctx, tx, movements.Entry{
				ProductID:      productID,
				Type:           enums.MovementTypePurchase,
				QuantitySigned: input.InitialStock,
				PreviousTotal:  0,
				NewTotal:       input.InitialStock,
				Reason:         "initial stock",
			})
			if err != nil {
				return err
			}
		}
		return s.evaluateAlerts(ctx, tx, *stock)
	})
	if err != nil {
		return nil, false, err
	}
	if created && s.logg != nil {
		s.logg.Info(s.logg.WithProductID(ctx, productID), "product registered")
	}
	return result, created, nil
}

// UpdateSettings changes thresholds or tracking. Tracking cannot be toggled
// while active reservations hold the product, since those holds were counted
// under the previous mode.
func (s *service) UpdateSettings(ctx context.Context, productID string, input SettingsInput) (*models.ProductStock, error) {
	updates := map[string]any{}
	if input.LowStockThreshold != nil {
		if *input.LowStockThreshold < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock threshold must be zero or positive")
		}
		updates["low_stock_threshold"] = *input.LowStockThreshold
	}
	if input.ReorderLevel != nil {
		if *input.ReorderLevel < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reorder level must be zero or positive")
		}
		updates["reorder_level"] = *input.ReorderLevel
	}
	if input.IsTracked != nil {
		updates["is_tracked"] = *input.IsTracked
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no settings provided")
	}

	var result *models.ProductStock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock, err := s.loadForUpdate(ctx, repo, productID)
		if err != nil {
			return err
		}

		if input.IsTracked != nil && *input.IsTracked != stock.IsTracked {
			holds, err := repo.CountActiveHolds(ctx, productID)
			if err != nil {
				return dbpkg.Classify(err)
			}
			if holds > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("product %s has %d active reservation lines; tracking cannot change", productID, holds))
			}
		}

		if err := repo.UpdateSettings(ctx, productID, updates); err != nil {
			return dbpkg.Classify(err)
		}
		updated, err := s.load(ctx, repo, productID)
		if err != nil {
			return err
		}
		result = updated
		return s.evaluateAlerts(ctx, tx, *updated)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) GetProduct(ctx context.Context, productID string) (*models.ProductStock, error) {
	return s.load(ctx, s.repo, productID)
}

func (s *service) ListSnapshot(ctx context.Context, filters SnapshotFilters) (*SnapshotPage, error) {
	after, err := pagination.ParseKeyCursor(filters.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, after, filters.TrackedOnly, pagination.LimitWithBuffer(filters.Limit))
	if err != nil {
		return nil, dbpkg.Classify(err)
	}

	products, last := pagination.Trim(rows, filters.Limit)
	page := &SnapshotPage{Products: products}
	if last != nil {
		page.NextCursor = pagination.EncodeKeyCursor(last.ProductID)
	}
	return page, nil
}

func (s *service) within(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func (s *service) load(ctx context.Context, repo Repository, productID string) (*models.ProductStock, error) {
	stock, err := repo.Find(ctx, productID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.NotFound("product", productID)
		}
		return nil, dbpkg.Classify(err)
	}
	return stock, nil
}

func (s *service) loadForUpdate(ctx context.Context, repo Repository, productID string) (*models.ProductStock, error) {
	stock, err := repo.FindForUpdate(ctx, productID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.NotFound("product", productID)
		}
		return nil, dbpkg.Classify(err)
	}
	return stock, nil
}

// clampReserved returns reserved-qty floored at zero. Going below zero means
// an upstream caller released more than it held.
func (s *service) clampReserved(ctx context.Context, stock models.ProductStock, qty int, op string) int {
	next := stock.ReservedStock - qty
	if next >= 0 {
		return next
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithProductID(ctx, stock.ProductID), map[string]any{
			"operation":      op,
			"reserved_stock": stock.ReservedStock,
			"quantity":       qty,
		})
		s.logg.Warn(logCtx, "stock.invariant_violation")
	}
	return 0
}

func (s *service) record(ctx context.Context, tx *gorm.DB, stock models.ProductStock, entry movements.Entry) error {
	if _, err := s.movements.Append(ctx, tx, entry); err != nil {
		return err
	}
	return s.evaluateAlerts(ctx, tx, stock)
}

// evaluateAlerts runs the alert engine behind a savepoint. An evaluation
// failure is rolled back and logged; only a failed rollback is returned.
func (s *service) evaluateAlerts(ctx context.Context, tx *gorm.DB, stock models.ProductStock) error {
	if s.alerts == nil {
		return nil
	}
	if err := tx.SavePoint(alertSavepoint).Error; err != nil {
		return dbpkg.Classify(err)
	}
	if _, err := s.alerts.EvaluateStock(ctx, tx, stock); err != nil {
		if rbErr := tx.RollbackTo(alertSavepoint).Error; rbErr != nil {
			return dbpkg.Classify(rbErr)
		}
		if s.logg != nil {
			s.logg.Error(s.logg.WithProductID(ctx, stock.ProductID), "stock.alert_evaluation_failed", err)
		}
	}
	return nil
}

func (r MutationRef) reasonOr(fallback string) string {
	if reason := strings.TrimSpace(r.Reason); reason != "" {
		return reason
	}
	return fallback
}
