package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/packfinderz-stock/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency. A nil redis pinger is skipped since
// redis only backs idempotency replay and the sweeper lock.
func HealthReady(env string, logg *logger.Logger, db Pinger, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		var failed error
		if db == nil {
			checks["database"] = "missing"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "database not configured")
		} else if err := db.Ping(ctx); err != nil {
			checks["database"] = "down"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
		} else {
			checks["database"] = "ok"
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				checks["redis"] = "down"
				if failed == nil {
					failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
				}
			} else {
				checks["redis"] = "ok"
			}
		}

		if failed != nil {
			typed := pkgerrors.As(failed)
			responses.WriteError(r.Context(), logg, w, typed.WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
