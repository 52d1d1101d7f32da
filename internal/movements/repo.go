package movements

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

// Repository persists movements. There is deliberately no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.StockMovement) error
	List(ctx context.Context, query listQuery) ([]models.StockMovement, error)
}

type listQuery struct {
	ProductID string
	Type      enums.MovementType
	Reference string
	Since     *time.Time
	Until     *time.Time
	After     *pagination.Cursor
	Limit     int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a movement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.StockMovement, error) {
	q := r.db.WithContext(ctx).Model(&models.StockMovement{})
	if query.ProductID != "" {
		q = q.Where("product_id = ?", query.ProductID)
	}
	if query.Type != "" {
		q = q.Where("type = ?", query.Type)
	}
	if query.Reference != "" {
		q = q.Where("reference = ?", query.Reference)
	}
	if query.Since != nil {
		q = q.Where("created_at >= ?", query.Since.UTC())
	}
	if query.Until != nil {
		q = q.Where("created_at < ?", query.Until.UTC())
	}
	if query.After != nil {
		q = q.Where("(created_at > ?) OR (created_at = ? AND id > ?)", query.After.CreatedAt, query.After.CreatedAt, query.After.ID)
	}

	var rows []models.StockMovement
	if err := q.Order("created_at ASC").Order("id ASC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
