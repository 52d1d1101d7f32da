package stock

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// Repository reads and writes product stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, stock *models.ProductStock) error
	Find(ctx context.Context, productID string) (*models.ProductStock, error)
	FindForUpdate(ctx context.Context, productID string) (*models.ProductStock, error)
	TryIncrementReserved(ctx context.Context, productID string, qty int) (bool, error)
	SaveCounters(ctx context.Context, productID string, total, reserved int) error
	UpdateSettings(ctx context.Context, productID string, updates map[string]any) error
	CountActiveHolds(ctx context.Context, productID string) (int64, error)
	List(ctx context.Context, afterProductID string, trackedOnly bool, limit int) ([]models.ProductStock, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, stock *models.ProductStock) error {
	return r.db.WithContext(ctx).Create(stock).Error
}

func (r *repository) Find(ctx context.Context, productID string) (*models.ProductStock, error) {
	var stock models.ProductStock
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *repository) FindForUpdate(ctx context.Context, productID string) (*models.ProductStock, error) {
	var stock models.ProductStock
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&stock).Error
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// TryIncrementReserved adds qty to reserved_stock only while enough units are
// free. The check and the increment are one statement, so concurrent callers
// can never both pass against the same units.
func (r *repository) TryIncrementReserved(ctx context.Context, productID string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ? AND is_tracked = ? AND total_stock - reserved_stock >= ?", productID, true, qty).
		Update("reserved_stock", gorm.Expr("reserved_stock + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SaveCounters(ctx context.Context, productID string, total, reserved int) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"total_stock":    total,
			"reserved_stock": reserved,
		}).Error
}

func (r *repository) UpdateSettings(ctx context.Context, productID string, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ?", productID).
		Updates(updates).Error
}

func (r *repository) CountActiveHolds(ctx context.Context, productID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("reservation_lines").
		Joins("JOIN reservations ON reservations.id = reservation_lines.reservation_id").
		Where("reservation_lines.product_id = ? AND reservations.status = ?", productID, enums.ReservationStatusActive).
		Count(&count).Error
	return count, err
}

func (r *repository) List(ctx context.Context, afterProductID string, trackedOnly bool, limit int) ([]models.ProductStock, error) {
	q := r.db.WithContext(ctx).Model(&models.ProductStock{})
	if afterProductID != "" {
		q = q.Where("product_id > ?", afterProductID)
	}
	if trackedOnly {
		q = q.Where("is_tracked = ?", true)
	}
	var rows []models.ProductStock
	if err := q.Order("product_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
