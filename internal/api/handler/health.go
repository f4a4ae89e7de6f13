// Package handler implements the HTTP endpoints. Handlers are thin: they
// validate and decode input, call into the engine or store, and translate
// errors into response envelopes. Raw backend errors never reach customers.
package handler

import (
	"context"
	"net/http"

	"github.com/rapidresolve/engine/internal/api/response"
)

// Pinger is anything with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status":   "ok",
			"database": "ok",
			"cache":    "ok",
		}
		healthy := true
		if err := db.Ping(r.Context()); err != nil {
			status["database"] = "unreachable"
			healthy = false
		}
		if err := cache.Ping(r.Context()); err != nil {
			status["cache"] = "unreachable"
			healthy = false
		}
		if !healthy {
			status["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"One or more dependencies are unreachable", status)
			return
		}
		response.JSON(w, status)
	}
}
