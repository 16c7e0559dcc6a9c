package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/repositories"
	"go.uber.org/zap"
)

// RequestLogRepository implements repositories.RequestLogRepository
type RequestLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *DB, logger *zap.Logger) repositories.RequestLogRepository {
	return &RequestLogRepository{db: db, logger: logger}
}

// Insert persists a terminal request record
func (r *RequestLogRepository) Insert(ctx context.Context, req *models.AIRequest, errMessage string) error {
	query := `
		INSERT INTO gateway_requests (
			id, created_at, caller_id, subject_id, kind, provider, status,
			input, output, guardrail_results, has_violation,
			latency_ms, input_tokens, output_tokens, cost, cache_hit,
			completed_at, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	results, err := json.Marshal(req.GuardrailResults)
	if err != nil {
		return fmt.Errorf("failed to marshal guardrail results: %w", err)
	}

	var errMsg sql.NullString
	if errMessage != "" {
		errMsg = sql.NullString{String: errMessage, Valid: true}
	} else if req.ErrorMessage != nil {
		errMsg = sql.NullString{String: *req.ErrorMessage, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		req.ID,
		req.Timestamp,
		req.CallerID,
		req.SubjectID,
		string(req.Kind),
		req.Provider,
		string(req.Status),
		req.Input,
		req.Output,
		results,
		req.HasGuardrailViolation(),
		req.Metrics.LatencyMs,
		req.Metrics.InputTokens,
		req.Metrics.OutputTokens,
		req.Metrics.Cost,
		req.Metrics.CacheHit,
		req.CompletedAt,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert gateway request: %w", err)
	}

	r.logger.Debug("gateway request persisted",
		zap.String("id", req.ID.String()),
		zap.String("status", string(req.Status)))
	return nil
}

// GetByID retrieves a persisted request record
func (r *RequestLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIRequest, error) {
	query := `
		SELECT id, created_at, caller_id, subject_id, kind, provider, status,
		       input, output, guardrail_results,
		       latency_ms, input_tokens, output_tokens, cost, cache_hit,
		       completed_at, error_message
		FROM gateway_requests
		WHERE id = $1
	`

	req := &models.AIRequest{}
	var kind, status string
	var results []byte
	var errMsg sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.Timestamp,
		&req.CallerID,
		&req.SubjectID,
		&kind,
		&req.Provider,
		&status,
		&req.Input,
		&req.Output,
		&results,
		&req.Metrics.LatencyMs,
		&req.Metrics.InputTokens,
		&req.Metrics.OutputTokens,
		&req.Metrics.Cost,
		&req.Metrics.CacheHit,
		&req.CompletedAt,
		&errMsg,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("gateway request not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get gateway request: %w", err)
	}

	req.Kind = models.RequestKind(kind)
	req.Status = models.RequestStatus(status)
	if errMsg.Valid {
		req.ErrorMessage = &errMsg.String
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &req.GuardrailResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal guardrail results: %w", err)
		}
	}

	return req, nil
}

// Aggregate computes usage analytics over records matching the filter
func (r *RequestLogRepository) Aggregate(ctx context.Context, filter repositories.RequestLogFilter) (*models.UsageAnalytics, error) {
	where, args := buildFilter(filter)

	summaryQuery := fmt.Sprintf(`
		SELECT COUNT(*),
		       COALESCE(AVG(latency_ms), 0),
		       COALESCE(SUM(cost), 0),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE has_violation),
		       COUNT(*) FILTER (WHERE cache_hit)
		FROM gateway_requests
		%s
	`, where)

	analytics := &models.UsageAnalytics{
		ByProvider: make(map[string]int64),
		ByKind:     make(map[string]int64),
	}

	var completed, cacheHits int64
	err := r.db.QueryRowContext(ctx, summaryQuery, args...).Scan(
		&analytics.TotalRequests,
		&analytics.AverageLatencyMs,
		&analytics.TotalCost,
		&completed,
		&analytics.GuardrailViolations,
		&cacheHits,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate gateway requests: %w", err)
	}

	if analytics.TotalRequests > 0 {
		analytics.SuccessRate = float64(completed) / float64(analytics.TotalRequests)
		analytics.CacheHitRate = float64(cacheHits) / float64(analytics.TotalRequests)
	}

	if err := r.groupCount(ctx, "provider", where, args, analytics.ByProvider); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "kind", where, args, analytics.ByKind); err != nil {
		return nil, err
	}

	return analytics, nil
}

func (r *RequestLogRepository) groupCount(ctx context.Context, column, where string, args []interface{}, out map[string]int64) error {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*)
		FROM gateway_requests
		%s
		GROUP BY %s
	`, column, where, column)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to group gateway requests by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s group row: %w", column, err)
		}
		out[key] = count
	}
	return rows.Err()
}

// buildFilter renders the WHERE clause and argument list for a filter
func buildFilter(filter repositories.RequestLogFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.CallerID != "" {
		args = append(args, filter.CallerID)
		conditions = append(conditions, fmt.Sprintf("caller_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
