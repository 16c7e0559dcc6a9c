package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/structura/aip-gateway/models"
)

// RequestLogFilter narrows analytics queries by caller/subject/time range
type RequestLogFilter struct {
	CallerID  string
	SubjectID string
	Start     *time.Time
	End       *time.Time
}

// RequestLogRepository is the append-only sink for terminal gateway request
// records plus the analytics query surface over them.
type RequestLogRepository interface {
	// Insert persists a terminal request record
	Insert(ctx context.Context, req *models.AIRequest, errMessage string) error

	// GetByID retrieves a persisted request record
	GetByID(ctx context.Context, id uuid.UUID) (*models.AIRequest, error)

	// Aggregate computes usage analytics over records matching the filter
	Aggregate(ctx context.Context, filter RequestLogFilter) (*models.UsageAnalytics, error)
}
