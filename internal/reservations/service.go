package reservations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/internal/stock"
	"github.com/angelmondragon/packfinderz-stock/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-stock/pkg/db"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/metrics"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	IncrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref stock.MutationRef) error
	DecrementReserved(ctx context.Context, tx *gorm.DB, productID string, qty int, ref stock.MutationRef) error
	ApplySale(ctx context.Context, tx *gorm.DB, productID string, qty int, ref stock.MutationRef) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Manager runs the reservation state machine. ACTIVE moves to exactly one of
// CONFIRMED, RELEASED or EXPIRED, and terminal states never change.
type Manager interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	// Expire reports whether this call performed the transition. A reservation
	// that is gone, no longer active or not yet due is a successful no-op.
	Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

// LineInput requests qty units of one product.
type LineInput struct {
	ProductID string
	Quantity  int
}

// ReserveInput describes one all-or-nothing hold. A zero HoldDuration uses the
// configured default. CheckoutID is optional.
type ReserveInput struct {
	Lines        []LineInput
	HoldDuration time.Duration
	CheckoutID   string
}

// ServiceParams wires the reservation manager.
type ServiceParams struct {
	Repo    Repository
	DB      txRunner
	Ledger  stockLedger
	Outbox  outboxPublisher
	Metrics *metrics.StockMetrics
	Logger  *logger.Logger
	Config  config.ReservationConfig
	Now     func() time.Time
}

type service struct {
	repo    Repository
	db      txRunner
	ledger  stockLedger
	outbox  outboxPublisher
	metrics *metrics.StockMetrics
	logg    *logger.Logger
	cfg     config.ReservationConfig
	now     func() time.Time
}

// NewService builds the reservation manager.
func NewService(params ServiceParams) (Manager, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Config.DefaultHold <= 0 {
		return nil, fmt.Errorf("default hold duration must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     params.Config,
		now:     now,
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error) {
	if err := validateLines(input.Lines); err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeRejected, 0)
		return nil, err
	}
	if input.HoldDuration < 0 {
		s.metrics.ObserveReservation(metrics.OutcomeRejected, 0)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold duration must be positive")
	}
	checkoutID := strings.TrimSpace(input.CheckoutID)
	hold := s.holdFor(input.HoldDuration)
	now := s.now().UTC()

	var (
		result   *models.Reservation
		replayed bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if checkoutID != "" {
			existing, err := repo.FindActiveByCheckout(ctx, checkoutID)
			switch {
			case err == nil:
				if !sameLines(existing.Lines, input.Lines) {
					return pkgerrors.New(pkgerrors.CodeConflict,
						fmt.Sprintf("checkout %s already holds reservation %s with different lines", checkoutID, existing.ID))
				}
				result = existing
				replayed = true
				return nil
			case !dbpkg.IsNotFound(err):
				return dbpkg.Classify(err)
			}
		}

		reservation := &models.Reservation{
			ID:        uuid.New(),
			Status:    enums.ReservationStatusActive,
			ExpiresAt: now.Add(hold),
		}
		if checkoutID != "" {
			reservation.CheckoutID = &checkoutID
		}

		position := make(map[string]int, len(input.Lines))
		for i, line := range input.Lines {
			position[line.ProductID] = i
			reservation.Lines = append(reservation.Lines, models.ReservationLine{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Position:  i,
			})
		}

		ref := stock.MutationRef{Reason: "reservation", Reference: reservation.ID.String()}
		var shortages []pkgerrors.StockShortage
		for _, line := range sortedLines(reservation.Lines) {
			err := s.ledger.IncrementReserved(ctx, tx, line.ProductID, line.Quantity, ref)
			if err == nil {
				continue
			}
			if short := pkgerrors.Shortages(err); len(short) > 0 {
				shortages = append(shortages, short...)
				continue
			}
			return err
		}
		if len(shortages) > 0 {
			sort.SliceStable(shortages, func(i, j int) bool {
				return position[shortages[i].ProductID] < position[shortages[j].ProductID]
			})
			return pkgerrors.InsufficientStock(shortages...)
		}

		if err := repo.Create(ctx, reservation); err != nil {
			// lines are deduplicated above, so the partial checkout index is
			// the only unique constraint a fresh insert can trip
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("checkout %s already holds an active reservation", checkoutID))
			}
			return dbpkg.Classify(err)
		}
		result = reservation
		return nil
	})
	if err != nil {
		s.observeReserveError(err)
		return nil, err
	}

	if !replayed {
		s.metrics.ObserveReservation(metrics.OutcomeReserved, 0)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithReservationID(ctx, result.ID.String()), map[string]any{
			"lines":      len(result.Lines),
			"expires_at": result.ExpiresAt,
			"replayed":   replayed,
		})
		s.logg.Info(logCtx, "reservation created")
	}
	return result, nil
}

func (s *service) observeReserveError(err error) {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		s.metrics.ObserveReservation(metrics.OutcomeInsufficient, len(pkgerrors.Shortages(err)))
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeConflict),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.metrics.ObserveReservation(metrics.OutcomeRejected, 0)
	default:
		s.metrics.ObserveReservation(metrics.OutcomeError, 0)
	}
}

func (s *service) holdFor(requested time.Duration) time.Duration {
	hold := requested
	if hold <= 0 {
		hold = s.cfg.DefaultHold
	}
	if s.cfg.MaxHold > 0 && hold > s.cfg.MaxHold {
		hold = s.cfg.MaxHold
	}
	return hold
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation requires at least one line")
	}
	seen := make(map[string]struct{}, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product id is required", i))
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be positive", i))
		}
		if _, dup := seen[line.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate product %s; aggregate quantities per product", line.ProductID))
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}

func sameLines(stored []models.ReservationLine, requested []LineInput) bool {
	if len(stored) != len(requested) {
		return false
	}
	want := make(map[string]int, len(requested))
	for _, line := range requested {
		want[line.ProductID] = line.Quantity
	}
	for _, line := range stored {
		if qty, ok := want[line.ProductID]; !ok || qty != line.Quantity {
			return false
		}
	}
	return true
}

// sortedLines returns lines in ascending product id order. Every multi-line
// mutation walks products in this order so overlapping holds lock rows
// consistently.
func sortedLines(lines []models.ReservationLine) []models.ReservationLine {
	sorted := append([]models.ReservationLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var (
		result       *models.Reservation
		transitioned bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		claimed, err := repo.ClaimTransition(ctx, id, enums.ReservationStatusConfirmed, now, nil)
		if err != nil {
			return dbpkg.Classify(err)
		}
		if !claimed {
			current, err := s.load(ctx, repo, id)
			if err != nil {
				return err
			}
			if current.Status == enums.ReservationStatusConfirmed {
				result = current
				return nil
			}
			return pkgerrors.InvalidState(id.String(), current.Status.String(), enums.ReservationStatusConfirmed.String())
		}

		reservation, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		ref := stock.MutationRef{Reason: "reservation confirmed", Reference: id.String()}
		for _, line := range sortedLines(reservation.Lines) {
			if err := s.ledger.ApplySale(ctx, tx, line.ProductID, line.Quantity, ref); err != nil {
				return err
			}
		}
		if err := s.emitTransition(ctx, tx, reservation, enums.EventReservationConfirmed, now); err != nil {
			return err
		}
		result = reservation
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.metrics.IncTransition(enums.ReservationStatusConfirmed.String())
		s.logTransition(ctx, result, "reservation confirmed")
	}
	return result, nil
}

func (s *service) Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var (
		result       *models.Reservation
		transitioned bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		claimed, err := repo.ClaimTransition(ctx, id, enums.ReservationStatusReleased, now, nil)
		if err != nil {
			return dbpkg.Classify(err)
		}
		if !claimed {
			current, err := s.load(ctx, repo, id)
			if err != nil {
				return err
			}
			if current.Status == enums.ReservationStatusConfirmed {
				return pkgerrors.InvalidState(id.String(), current.Status.String(), enums.ReservationStatusReleased.String())
			}
			result = current
			return nil
		}

		reservation, err := s.releaseLines(ctx, tx, repo, id, "reservation released")
		if err != nil {
			return err
		}
		if err := s.emitTransition(ctx, tx, reservation, enums.EventReservationReleased, now); err != nil {
			return err
		}
		result = reservation
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.metrics.IncTransition(enums.ReservationStatusReleased.String())
		s.logTransition(ctx, result, "reservation released")
	}
	return result, nil
}

func (s *service) Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var expired *models.Reservation
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		at := now.UTC()

		claimed, err := repo.ClaimTransition(ctx, id, enums.ReservationStatusExpired, at, &at)
		if err != nil {
			return dbpkg.Classify(err)
		}
		if !claimed {
			return nil
		}

		reservation, err := s.releaseLines(ctx, tx, repo, id, "reservation expired")
		if err != nil {
			return err
		}
		if err := s.emitTransition(ctx, tx, reservation, enums.EventReservationExpired, at); err != nil {
			return err
		}
		expired = reservation
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}
	s.metrics.IncTransition(enums.ReservationStatusExpired.String())
	s.logTransition(ctx, expired, "reservation expired")
	return true, nil
}

// releaseLines returns every held unit to the pool after the caller has
// claimed the transition.
func (s *service) releaseLines(ctx context.Context, tx *gorm.DB, repo Repository, id uuid.UUID, reason string) (*models.Reservation, error) {
	reservation, err := s.load(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	ref := stock.MutationRef{Reason: reason, Reference: id.String()}
	for _, line := range sortedLines(reservation.Lines) {
		if err := s.ledger.DecrementReserved(ctx, tx, line.ProductID, line.Quantity, ref); err != nil {
			return nil, err
		}
	}
	return reservation, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	rows, err := s.repo.FindExpired(ctx, now.UTC(), limit)
	if err != nil {
		return nil, dbpkg.Classify(err)
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := repo.FindByID(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.NotFound("reservation", id.String())
		}
		return nil, dbpkg.Classify(err)
	}
	return reservation, nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, reservation *models.Reservation, eventType enums.OutboxEventType, at time.Time) error {
	lines := make([]payloads.ReservationLine, 0, len(reservation.Lines))
	for _, line := range reservation.Lines {
		lines = append(lines, payloads.ReservationLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID.String(),
		Data: payloads.ReservationEvent{
			ReservationID: reservation.ID.String(),
			CheckoutID:    reservation.CheckoutID,
			Status:        reservation.Status,
			Lines:         lines,
			TransitionAt:  at,
		},
		OccurredAt: at,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return fmt.Errorf("emit %s: %w", eventType, err)
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, reservation *models.Reservation, msg string) {
	if s.logg == nil || reservation == nil {
		return
	}
	logCtx := s.logg.WithField(s.logg.WithReservationID(ctx, reservation.ID.String()), "status", reservation.Status)
	s.logg.Info(logCtx, msg)
}
