package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-stock/api/responses"
	"github.com/angelmondragon/packfinderz-stock/api/validators"
	"github.com/angelmondragon/packfinderz-stock/internal/movements"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

// MovementList exports the movement log in chronological order.
func MovementList(log movements.Log, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := movements.ListFilters{
			ProductID: validators.QueryString(r, "productId", maxProductIDLength),
			Reference: validators.QueryString(r, "reference", 128),
			Cursor:    validators.QueryString(r, "cursor", 512),
		}
		if raw := validators.QueryString(r, "type", 32); raw != "" {
			movementType, err := enums.ParseMovementType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
				return
			}
			filters.Type = movementType
		}

		var err error
		if filters.Since, err = validators.ParseQueryTime(r, "since"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.Until, err = validators.ParseQueryTime(r, "until"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := log.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
