package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

// Repository persists stock alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOpen(ctx context.Context, productID string) ([]models.StockAlert, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
	CreateIfAbsent(ctx context.Context, alert *models.StockAlert) (bool, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.StockAlert, error)
}

type listQuery struct {
	ProductID      string
	Type           enums.AlertType
	UnresolvedOnly bool
	CreatedAfter   *time.Time
	After          *pagination.Cursor
	Limit          int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an alert repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOpen(ctx context.Context, productID string) ([]models.StockAlert, error) {
	var rows []models.StockAlert
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND is_resolved = ?", productID, false).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	var alert models.StockAlert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateIfAbsent inserts the alert unless an open alert of the same type
// already exists for the product. It reports whether a row was written.
func (r *repository) CreateIfAbsent(ctx context.Context, alert *models.StockAlert) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]any{
			"is_resolved": true,
			"resolved_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.StockAlert, error) {
	q := r.db.WithContext(ctx).Model(&models.StockAlert{})
	if query.ProductID != "" {
		q = q.Where("product_id = ?", query.ProductID)
	}
	if query.Type != "" {
		q = q.Where("type = ?", query.Type)
	}
	if query.UnresolvedOnly {
		q = q.Where("is_resolved = ?", false)
	}
	if query.CreatedAfter != nil {
		q = q.Where("created_at > ?", query.CreatedAfter.UTC())
	}
	if query.After != nil {
		q = q.Where("(created_at > ?) OR (created_at = ? AND id > ?)", query.After.CreatedAt, query.After.CreatedAt, query.After.ID)
	}

	var rows []models.StockAlert
	if err := q.Order("created_at ASC").Order("id ASC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
