package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/repositories"
	"github.com/structura/aip-gateway/utils"
	"go.uber.org/zap"
)

// AnalyticsService defines the analytics query surface the handler depends on
type AnalyticsService interface {
	Aggregate(ctx context.Context, filter repositories.RequestLogFilter) (*models.UsageAnalytics, error)
}

// AnalyticsHandler serves aggregate usage analytics
type AnalyticsHandler struct {
	service AnalyticsService
	logger  *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(service AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, logger: logger}
}

// GetUsage handles GET /api/v1/analytics. Filters: caller_id, subject_id,
// start, end (RFC 3339).
func (h *AnalyticsHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	filter := repositories.RequestLogFilter{
		CallerID:  r.URL.Query().Get("caller_id"),
		SubjectID: r.URL.Query().Get("subject_id"),
	}

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "invalid start time", map[string]interface{}{"start": raw})
			return
		}
		filter.Start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "invalid end time", map[string]interface{}{"end": raw})
			return
		}
		filter.End = &t
	}

	analytics, err := h.service.Aggregate(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to aggregate analytics", zap.Error(err))
		_ = utils.WriteInternalError(w, "failed to aggregate analytics")
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, analytics)
}
