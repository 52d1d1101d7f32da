package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-stock/api/controllers"
	"github.com/angelmondragon/packfinderz-stock/api/middleware"
	"github.com/angelmondragon/packfinderz-stock/internal/alerts"
	"github.com/angelmondragon/packfinderz-stock/internal/movements"
	"github.com/angelmondragon/packfinderz-stock/internal/reservations"
	"github.com/angelmondragon/packfinderz-stock/internal/stock"
	"github.com/angelmondragon/packfinderz-stock/pkg/config"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-stock/pkg/redis"
)

// Dependencies are the services mounted on the router. Redis and Gatherer are
// optional.
type Dependencies struct {
	DB           controllers.Pinger
	Redis        *pkgredis.Client
	Ledger       stock.Ledger
	Reservations reservations.Manager
	Movements    movements.Log
	Alerts       alerts.Service
	Gatherer     prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)

	var (
		redisPinger controllers.Pinger
		idempotency pkgredis.IdempotencyStore
	)
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idempotency = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps.DB, redisPinger))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Applied per route so the matched pattern is known when it runs.
		idem := middleware.Idempotency(idempotency, cfg.Idempotency.ReservationTTL, logg)

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", controllers.StockSnapshot(deps.Ledger, logg))
			r.Post("/", controllers.StockCreate(deps.Ledger, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", controllers.StockGet(deps.Ledger, logg))
				r.Patch("/", controllers.StockUpdateSettings(deps.Ledger, logg))
				r.Get("/availability", controllers.StockAvailability(deps.Ledger, logg))
				r.With(idem).Post("/adjustments", controllers.StockAdjust(deps.Ledger, logg))
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.With(idem).Post("/", controllers.ReservationCreate(deps.Reservations, logg))
			r.Route("/{reservationId}", func(r chi.Router) {
				r.Get("/", controllers.ReservationGet(deps.Reservations, logg))
				r.With(idem).Post("/confirm", controllers.ReservationConfirm(deps.Reservations, logg))
				r.With(idem).Post("/release", controllers.ReservationRelease(deps.Reservations, logg))
			})
		})

		r.Get("/movements", controllers.MovementList(deps.Movements, logg))

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.AlertList(deps.Alerts, logg))
			r.Post("/{alertId}/resolve", controllers.AlertResolve(deps.Alerts, logg))
		})
	})

	return r
}
