package movements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packfinderz-stock/pkg/db"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

// Log is the append-only record of every stock-affecting event.
type Log interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.StockMovement, error)
	List(ctx context.Context, filters ListFilters) (*ListResult, error)
}

// Entry captures one movement before it is persisted.
type Entry struct {
	ProductID      string
	Type           enums.MovementType
	QuantitySigned int
	PreviousTotal  int
	NewTotal       int
	Reason         string
	Reference      string
}

// ListFilters narrows a movement export. All fields are optional.
type ListFilters struct {
	ProductID string
	Type      enums.MovementType
	Reference string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Cursor    string
}

// ListResult is one page of movements in chronological order.
type ListResult struct {
	Movements  []models.StockMovement `json:"movements"`
	NextCursor string                 `json:"nextCursor,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a movement log with the provided repository. A nil clock
// defaults to time.Now.
func NewService(repo Repository, now func() time.Time) (Log, error) {
	if repo == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}, nil
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.StockMovement, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	movement := &models.StockMovement{
		ProductID:      entry.ProductID,
		Type:           entry.Type,
		QuantitySigned: entry.QuantitySigned,
		PreviousTotal:  entry.PreviousTotal,
		NewTotal:       entry.NewTotal,
		Reason:         entry.Reason,
		CreatedAt:      s.now().UTC(),
	}
	if ref := strings.TrimSpace(entry.Reference); ref != "" {
		movement.Reference = &ref
	}

	if err := s.repo.WithTx(tx).Create(ctx, movement); err != nil {
		return nil, dbpkg.Classify(err)
	}
	return movement, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) (*ListResult, error) {
	if filters.Type != "" && !filters.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", filters.Type))
	}
	if filters.Since != nil && filters.Until != nil && !filters.Until.After(*filters.Since) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "until must be after since")
	}
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listQuery{
		ProductID: filters.ProductID,
		Type:      filters.Type,
		Reference: filters.Reference,
		Since:     filters.Since,
		Until:     filters.Until,
		After:     cursor,
		Limit:     pagination.LimitWithBuffer(filters.Limit),
	})
	if err != nil {
		return nil, dbpkg.Classify(err)
	}

	page, last := pagination.Trim(rows, filters.Limit)
	result := &ListResult{Movements: page}
	if last != nil {
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func validateEntry(entry Entry) error {
	if strings.TrimSpace(entry.ProductID) == "" {
		return fmt.Errorf("movement product id is required")
	}
	if strings.TrimSpace(entry.Reason) == "" {
		return fmt.Errorf("movement reason is required")
	}
	q := entry.QuantitySigned
	switch entry.Type {
	case enums.MovementTypePurchase, enums.MovementTypeRelease:
		if q <= 0 {
			return fmt.Errorf("%s movement requires a positive quantity, got %d", entry.Type, q)
		}
	case enums.MovementTypeSale, enums.MovementTypeReserve:
		if q >= 0 {
			return fmt.Errorf("%s movement requires a negative quantity, got %d", entry.Type, q)
		}
	case enums.MovementTypeAdjustment:
		if q == 0 {
			return fmt.Errorf("adjustment movement requires a non-zero quantity")
		}
	default:
		return fmt.Errorf("invalid movement type %q", entry.Type)
	}
	return nil
}
