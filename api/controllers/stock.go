package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-stock/api/responses"
	"github.com/angelmondragon/packfinderz-stock/api/validators"
	"github.com/angelmondragon/packfinderz-stock/internal/stock"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/pagination"
)

type createStockRequest struct {
	ProductID         string `json:"productId" validate:"required,max=64"`
	InitialStock      int    `json:"initialStock" validate:"gte=0"`
	LowStockThreshold int    `json:"lowStockThreshold" validate:"gte=0"`
	ReorderLevel      int    `json:"reorderLevel" validate:"gte=0"`
	IsTracked         *bool  `json:"isTracked"`
}

type updateStockSettingsRequest struct {
	LowStockThreshold *int  `json:"lowStockThreshold" validate:"omitempty,gte=0"`
	ReorderLevel      *int  `json:"reorderLevel" validate:"omitempty,gte=0"`
	IsTracked         *bool `json:"isTracked"`
}

type adjustStockRequest struct {
	Delta     int    `json:"delta" validate:"ne=0"`
	Kind      string `json:"kind" validate:"required,oneof=restock write_off correction"`
	Reason    string `json:"reason" validate:"required,max=256"`
	Reference string `json:"reference" validate:"max=128"`
}

// StockAvailability answers whether qty units can be reserved right now.
func StockAvailability(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := validators.ParseQueryInt(r, "qty", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := ledger.GetAvailability(r.Context(), productID, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

// StockCreate registers a product. Registering an existing product returns it
// unchanged with 200.
func StockCreate(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, created, err := ledger.CreateProduct(r.Context(), stock.CreateProductInput{
			ProductID:         validators.SanitizeString(req.ProductID, maxProductIDLength),
			InitialStock:      req.InitialStock,
			LowStockThreshold: req.LowStockThreshold,
			ReorderLevel:      req.ReorderLevel,
			IsTracked:         req.IsTracked,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, row)
	}
}

func StockGet(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := ledger.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func StockUpdateSettings(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateStockSettingsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := ledger.UpdateSettings(r.Context(), productID, stock.SettingsInput{
			LowStockThreshold: req.LowStockThreshold,
			ReorderLevel:      req.ReorderLevel,
			IsTracked:         req.IsTracked,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// StockAdjust applies a restock, write-off or correction to the physical count.
func StockAdjust(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseAdjustmentKind(req.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment kind"))
			return
		}
		row, err := ledger.AdjustTotal(r.Context(), stock.AdjustInput{
			ProductID: productID,
			Delta:     req.Delta,
			Kind:      kind,
			Reason:    validators.SanitizeString(req.Reason, 256),
			Reference: validators.SanitizeString(req.Reference, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// StockSnapshot exports the ledger in product id order.
func StockSnapshot(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		trackedOnly, err := validators.ParseQueryBool(r, "trackedOnly", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := ledger.ListSnapshot(r.Context(), stock.SnapshotFilters{
			TrackedOnly: trackedOnly,
			Limit:       limit,
			Cursor:      validators.QueryString(r, "cursor", 512),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
