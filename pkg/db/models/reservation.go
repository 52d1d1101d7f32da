package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// Reservation is a time-bounded hold on stock for one checkout.
type Reservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CheckoutID  *string                 `gorm:"column:checkout_id;type:varchar(128);uniqueIndex:ux_reservations_active_checkout,where:status = 'active'" json:"checkoutId,omitempty"`
	Status      enums.ReservationStatus `gorm:"column:status;type:varchar(16);not null;index:idx_reservations_status_expires,priority:1" json:"status"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index:idx_reservations_status_expires,priority:2" json:"expiresAt"`
	ConfirmedAt *time.Time              `gorm:"column:confirmed_at" json:"confirmedAt,omitempty"`
	ReleasedAt  *time.Time              `gorm:"column:released_at" json:"releasedAt,omitempty"`
	ExpiredAt   *time.Time              `gorm:"column:expired_at" json:"expiredAt,omitempty"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Lines []ReservationLine `gorm:"foreignKey:ReservationID;references:ID" json:"lines"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReservationLine holds the quantity of one product within a reservation.
type ReservationLine struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"-"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;uniqueIndex:ux_reservation_lines_product,priority:1" json:"-"`
	ProductID     string    `gorm:"column:product_id;type:varchar(64);not null;uniqueIndex:ux_reservation_lines_product,priority:2" json:"productId"`
	Quantity      int       `gorm:"column:quantity;not null;check:chk_reservation_lines_quantity_positive,quantity > 0" json:"quantity"`
	Position      int       `gorm:"column:position;not null;default:0" json:"-"`
}

func (ReservationLine) TableName() string { return "reservation_lines" }

func (l *ReservationLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
