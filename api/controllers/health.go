package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/saffronhouse/orders-backend/api/responses"
	"github.com/saffronhouse/orders-backend/pkg/config"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	responses.Envelope
	Status string            `json:"status"`
	Env    string            `json:"env,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, healthResponse{Envelope: responses.OK(), Status: "live", Env: cfg.App.Env})
	}
}

// HealthReady pings the database and redis. Any failure answers 503.
func HealthReady(cfg *config.Config, db, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		var failed error
		for name, dep := range map[string]pinger{"database": db, "redis": cache} {
			if dep == nil {
				checks[name] = "missing"
				failed = pkgerrors.New(pkgerrors.CodeDependency, name+" unavailable")
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
				continue
			}
			checks[name] = "up"
		}

		if failed != nil {
			responses.WriteError(r.Context(), logg, w, failed)
			return
		}
		responses.WriteSuccess(w, healthResponse{Envelope: responses.OK(), Status: "ready", Env: cfg.App.Env, Checks: checks})
	}
}
