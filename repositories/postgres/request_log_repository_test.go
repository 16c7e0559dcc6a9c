package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/repositories"
	"go.uber.org/zap"
)

func newMockRepo(t *testing.T) (*RequestLogRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &RequestLogRepository{
		db:     &DB{DB: db, logger: zap.NewNop()},
		logger: zap.NewNop(),
	}
	return repo, mock
}

func sampleRequest() *models.AIRequest {
	req := models.NewAIRequest("caller-1", "subject-1", models.RequestKindCompletion, "openai", "summarize the schedule")
	req.AppendGuardrailResults([]models.GuardrailResult{
		{GuardrailID: "content-safety", Passed: true},
	})
	req.MarkAsCompleted("the schedule summary", models.RequestMetrics{
		LatencyMs:    120,
		InputTokens:  6,
		OutputTokens: 4,
		Cost:         0.00042,
	})
	return req
}

func TestRequestLogRepository_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)
	req := sampleRequest()

	results, err := json.Marshal(req.GuardrailResults)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO gateway_requests").
		WithArgs(
			req.ID,
			req.Timestamp,
			"caller-1",
			"subject-1",
			"completion",
			"openai",
			"completed",
			"summarize the schedule",
			"the schedule summary",
			results,
			false,
			120,
			6,
			4,
			0.00042,
			false,
			req.CompletedAt,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), req, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogRepository_InsertBlockedWithViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	req := models.NewAIRequest("caller-1", "", models.RequestKindCompletion, "openai", "bad input")
	req.AppendGuardrailResults([]models.GuardrailResult{
		{GuardrailID: "content-safety", Passed: false, Reason: "content contains blocked terms"},
	})
	req.MarkAsBlocked("content contains blocked terms")

	mock.ExpectExec("INSERT INTO gateway_requests").
		WithArgs(
			req.ID, req.Timestamp, "caller-1", "", "completion", "openai", "blocked",
			"bad input", "", sqlmock.AnyArg(),
			true, // has_violation
			0, 0, 0, 0.0, false,
			req.CompletedAt, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), req, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	created := time.Now()
	completed := created.Add(150 * time.Millisecond)
	results := []byte(`[{"guardrail_id":"pii-detection","passed":false,"reason":"PII detected in content"}]`)

	rows := sqlmock.NewRows([]string{
		"id", "created_at", "caller_id", "subject_id", "kind", "provider", "status",
		"input", "output", "guardrail_results",
		"latency_ms", "input_tokens", "output_tokens", "cost", "cache_hit",
		"completed_at", "error_message",
	}).AddRow(
		id, created, "caller-1", "subject-1", "completion", "anthropic", "completed",
		"in", "out", results,
		150, 10, 20, 0.003, true,
		completed, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM gateway_requests").
		WithArgs(id).
		WillReturnRows(rows)

	req, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, req.ID)
	assert.Equal(t, models.RequestKindCompletion, req.Kind)
	assert.Equal(t, models.RequestStatusCompleted, req.Status)
	assert.Equal(t, "anthropic", req.Provider)
	assert.True(t, req.Metrics.CacheHit)
	require.Len(t, req.GuardrailResults, 1)
	assert.Equal(t, "pii-detection", req.GuardrailResults[0].GuardrailID)
	assert.True(t, req.HasGuardrailViolation())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM gateway_requests").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRequestLogRepository_Aggregate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "avg", "sum", "completed", "violations", "cache_hits",
		}).AddRow(10, 250.5, 1.25, 8, 2, 4))

	mock.ExpectQuery("GROUP BY provider").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "count"}).
			AddRow("openai", 7).
			AddRow("anthropic", 3))

	mock.ExpectQuery("GROUP BY kind").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "count"}).
			AddRow("completion", 9).
			AddRow("embedding", 1))

	analytics, err := repo.Aggregate(context.Background(), repositories.RequestLogFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(10), analytics.TotalRequests)
	assert.InDelta(t, 250.5, analytics.AverageLatencyMs, 1e-9)
	assert.InDelta(t, 1.25, analytics.TotalCost, 1e-9)
	assert.InDelta(t, 0.8, analytics.SuccessRate, 1e-9)
	assert.InDelta(t, 0.4, analytics.CacheHitRate, 1e-9)
	assert.Equal(t, int64(2), analytics.GuardrailViolations)
	assert.Equal(t, int64(7), analytics.ByProvider["openai"])
	assert.Equal(t, int64(1), analytics.ByKind["embedding"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogRepository_AggregateWithFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("caller-1", start).
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "avg", "sum", "completed", "violations", "cache_hits",
		}).AddRow(0, 0.0, 0.0, 0, 0, 0))

	mock.ExpectQuery("GROUP BY provider").
		WithArgs("caller-1", start).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "count"}))

	mock.ExpectQuery("GROUP BY kind").
		WithArgs("caller-1", start).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "count"}))

	analytics, err := repo.Aggregate(context.Background(), repositories.RequestLogFilter{
		CallerID: "caller-1",
		Start:    &start,
	})
	require.NoError(t, err)
	assert.Zero(t, analytics.TotalRequests)
	assert.Zero(t, analytics.SuccessRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(repositories.RequestLogFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	where, args = buildFilter(repositories.RequestLogFilter{
		CallerID:  "caller-1",
		SubjectID: "subject-9",
		Start:     &start,
		End:       &end,
	})
	assert.Equal(t, "WHERE caller_id = $1 AND subject_id = $2 AND created_at >= $3 AND created_at <= $4", where)
	assert.Len(t, args, 4)
}
