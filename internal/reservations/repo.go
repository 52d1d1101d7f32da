package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
)

// Repository persists reservations and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByCheckout(ctx context.Context, checkoutID string) (*models.Reservation, error)
	ClaimTransition(ctx context.Context, id uuid.UUID, to enums.ReservationStatus, at time.Time, expiredBy *time.Time) (bool, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(reservation).Error; err != nil {
		return err
	}
	if len(reservation.Lines) == 0 {
		return nil
	}
	for i := range reservation.Lines {
		reservation.Lines[i].ReservationID = reservation.ID
	}
	return db.Create(&reservation.Lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindActiveByCheckout(ctx context.Context, checkoutID string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("checkout_id = ? AND status = ?", checkoutID, enums.ReservationStatusActive).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ClaimTransition moves an ACTIVE reservation to the target status. When
// expiredBy is set the claim also requires expires_at <= expiredBy. It
// reports false when another caller already moved the row.
func (r *repository) ClaimTransition(ctx context.Context, id uuid.UUID, to enums.ReservationStatus, at time.Time, expiredBy *time.Time) (bool, error) {
	column, err := transitionColumn(to)
	if err != nil {
		return false, err
	}

	q := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive)
	if expiredBy != nil {
		q = q.Where("expires_at <= ?", *expiredBy)
	}
	res := q.Updates(map[string]any{
		"status": to,
		column:   at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func transitionColumn(to enums.ReservationStatus) (string, error) {
	switch to {
	case enums.ReservationStatusConfirmed:
		return "confirmed_at", nil
	case enums.ReservationStatusReleased:
		return "released_at", nil
	case enums.ReservationStatusExpired:
		return "expired_at", nil
	default:
		return "", fmt.Errorf("no transition into status %q", to)
	}
}

func (r *repository) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
