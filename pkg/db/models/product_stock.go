package models

import "time"

// ProductStock is the authoritative stock record for one product.
type ProductStock struct {
	ProductID         string    `gorm:"column:product_id;type:varchar(64);primaryKey" json:"productId"`
	TotalStock        int       `gorm:"column:total_stock;not null;default:0;check:chk_product_stocks_total_nonneg,total_stock >= 0" json:"totalStock"`
	ReservedStock     int       `gorm:"column:reserved_stock;not null;default:0;check:chk_product_stocks_reserved_nonneg,reserved_stock >= 0" json:"reservedStock"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0" json:"lowStockThreshold"`
	ReorderLevel      int       `gorm:"column:reorder_level;not null;default:0" json:"reorderLevel"`
	IsTracked         bool      `gorm:"column:is_tracked;not null" json:"isTracked"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (ProductStock) TableName() string { return "product_stocks" }

// AvailableStock is total minus reserved, floored at zero.
func (p ProductStock) AvailableStock() int {
	available := p.TotalStock - p.ReservedStock
	if available < 0 {
		return 0
	}
	return available
}
