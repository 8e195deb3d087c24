package controllers

import (
	"net/http"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/redis"
)

const envHeader = "X-Bloomcart-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when the database and redis respond.
func HealthReady(cfg *config.Config, logg *logger.Logger, database db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		if database != nil {
			if err := database.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
