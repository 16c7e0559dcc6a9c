package handlers

import (
	"context"
	"net/http"

	"github.com/structura/aip-gateway/utils"
)

// Pinger checks connectivity to a backing store
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck returns a liveness handler
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck returns a readiness handler verifying the database
func ReadinessCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			_ = utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
