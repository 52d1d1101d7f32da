package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// StockMovement is an append-only audit entry for one stock-affecting event.
type StockMovement struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID      string             `gorm:"column:product_id;type:varchar(64);not null;index:idx_stock_movements_product_created,priority:1" json:"productId"`
	Type           enums.MovementType `gorm:"column:type;type:varchar(16);not null" json:"type"`
	QuantitySigned int                `gorm:"column:quantity_signed;not null" json:"quantitySigned"`
	PreviousTotal  int                `gorm:"column:previous_total;not null" json:"previousTotal"`
	NewTotal       int                `gorm:"column:new_total;not null" json:"newTotal"`
	Reason         string             `gorm:"column:reason;type:text;not null" json:"reason"`
	Reference      *string            `gorm:"column:reference;type:varchar(128);index" json:"reference,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;not null;index:idx_stock_movements_product_created,priority:2" json:"createdAt"`
}

func (StockMovement) TableName() string { return "stock_movements" }

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
