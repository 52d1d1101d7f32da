package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/packfinderz-stock/api/responses"
	"github.com/angelmondragon/packfinderz-stock/api/validators"
	"github.com/angelmondragon/packfinderz-stock/internal/reservations"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
)

type reservationLineRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// holdSeconds is capped at one day before it becomes a Duration. Longer holds
// are clamped to the configured maximum by the manager anyway.
type createReservationRequest struct {
	Lines       []reservationLineRequest `json:"lines" validate:"required,min=1,dive"`
	HoldSeconds int                      `json:"holdSeconds" validate:"gte=0,lte=86400"`
	CheckoutID  string                   `json:"checkoutId" validate:"max=128"`
}

// ReservationCreate places an all-or-nothing hold on every requested line.
func ReservationCreate(manager reservations.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := make([]reservations.LineInput, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, reservations.LineInput{
				ProductID: validators.SanitizeString(line.ProductID, maxProductIDLength),
				Quantity:  line.Quantity,
			})
		}
		reservation, err := manager.Reserve(r.Context(), reservations.ReserveInput{
			Lines:        lines,
			HoldDuration: time.Duration(req.HoldSeconds) * time.Second,
			CheckoutID:   validators.SanitizeString(req.CheckoutID, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

func ReservationGet(manager reservations.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := manager.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// ReservationConfirm converts the hold into a sale.
func ReservationConfirm(manager reservations.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := manager.Confirm(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// ReservationRelease returns held stock to the pool.
func ReservationRelease(manager reservations.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := manager.Release(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}
