package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-stock/api/responses"
	"github.com/angelmondragon/packfinderz-stock/api/validators"
	"github.com/angelmondragon/packfinderz-stock/internal/alerts"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

func AlertList(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := alerts.ListFilters{
			ProductID: validators.QueryString(r, "productId", maxProductIDLength),
			Cursor:    validators.QueryString(r, "cursor", 512),
		}
		if raw := validators.QueryString(r, "type", 32); raw != "" {
			alertType, err := enums.ParseAlertType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid alert type"))
				return
			}
			filters.Type = alertType
		}

		var err error
		if filters.UnresolvedOnly, err = validators.ParseQueryBool(r, "unresolvedOnly", false); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.CreatedAfter, err = validators.ParseQueryTime(r, "createdAfter"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AlertResolve closes an alert by hand. Resolving twice is a no-op.
func AlertResolve(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alert, err := svc.Resolve(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}
