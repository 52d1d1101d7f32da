package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// StockAlert records a threshold crossing for a product.
type StockAlert struct {
	ID                     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID              string          `gorm:"column:product_id;type:varchar(64);not null;uniqueIndex:ux_stock_alerts_open,priority:1,where:is_resolved = false" json:"productId"`
	Type                   enums.AlertType `gorm:"column:type;type:varchar(16);not null;uniqueIndex:ux_stock_alerts_open,priority:2,where:is_resolved = false" json:"type"`
	ThresholdAtCreation    int             `gorm:"column:threshold_at_creation;not null" json:"thresholdAtCreation"`
	CurrentStockAtCreation int             `gorm:"column:current_stock_at_creation;not null" json:"currentStockAtCreation"`
	IsResolved             bool            `gorm:"column:is_resolved;not null" json:"isResolved"`
	CreatedAt              time.Time       `gorm:"column:created_at;not null" json:"createdAt"`
	ResolvedAt             *time.Time      `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
}

func (StockAlert) TableName() string { return "stock_alerts" }

func (a *StockAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
