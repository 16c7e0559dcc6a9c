package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle status of a gateway request
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
	RequestStatusBlocked    RequestStatus = "blocked" // Blocked by a guardrail
)

// RequestKind represents the logical type of a gateway request
type RequestKind string

const (
	RequestKindCompletion RequestKind = "completion"
	RequestKindEmbedding  RequestKind = "embedding"
	RequestKindVision     RequestKind = "vision"
	RequestKindVoice      RequestKind = "voice"
	RequestKindDocument   RequestKind = "document"
)

// GuardrailResult represents the outcome of a single guardrail check
type GuardrailResult struct {
	GuardrailID     string         `json:"guardrail_id"`
	Passed          bool           `json:"passed"`
	Reason          string         `json:"reason,omitempty"`
	ModifiedContent string         `json:"modified_content,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RequestMetrics holds per-request performance and cost figures
type RequestMetrics struct {
	LatencyMs    int     `json:"latency_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	CacheHit     bool    `json:"cache_hit"`
}

// AIRequest represents a request to a generative-model provider and its audit trail
type AIRequest struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Timestamp time.Time     `json:"timestamp" db:"created_at"`
	CallerID  string        `json:"caller_id" db:"caller_id"`
	SubjectID string        `json:"subject_id,omitempty" db:"subject_id"`
	Kind      RequestKind   `json:"kind" db:"kind"`
	Provider  string        `json:"provider" db:"provider"`
	Status    RequestStatus `json:"status" db:"status"`

	// Request content
	Input string          `json:"input" db:"input"`
	Data  json.RawMessage `json:"data,omitempty" db:"data"` // Structured payload for domain validation

	// Response content
	Output string `json:"output,omitempty" db:"output"`

	// Every guardrail result produced during processing, across both phases,
	// in execution order.
	GuardrailResults []GuardrailResult `json:"guardrail_results,omitempty"`

	Metrics RequestMetrics `json:"metrics"`

	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AIRequest model
func (AIRequest) TableName() string {
	return "gateway_requests"
}

// NewAIRequest creates a new AIRequest instance in the pending state
func NewAIRequest(callerID, subjectID string, kind RequestKind, provider, input string) *AIRequest {
	return &AIRequest{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		CallerID:  callerID,
		SubjectID: subjectID,
		Kind:      kind,
		Provider:  provider,
		Input:     input,
		Status:    RequestStatusPending,
	}
}

// IsTerminal reports whether the request has reached a terminal status.
// Terminal records are immutable and are the unit persisted for analytics.
func (r *AIRequest) IsTerminal() bool {
	switch r.Status {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusBlocked:
		return true
	}
	return false
}

// MarkAsProcessing marks the request as processing
func (r *AIRequest) MarkAsProcessing() {
	r.Status = RequestStatusProcessing
}

// MarkAsCompleted marks the request as completed with its final output and metrics
func (r *AIRequest) MarkAsCompleted(output string, metrics RequestMetrics) {
	r.Status = RequestStatusCompleted
	r.Output = output
	r.Metrics = metrics
	now := time.Now()
	r.CompletedAt = &now
}

// MarkAsBlocked marks the request as blocked by a guardrail
func (r *AIRequest) MarkAsBlocked(reason string) {
	r.Status = RequestStatusBlocked
	r.ErrorMessage = &reason
	now := time.Now()
	r.CompletedAt = &now
}

// MarkAsFailed marks the request as failed. A request that already reached a
// terminal status keeps it; the more specific blocked status is never
// overwritten by a later failure.
func (r *AIRequest) MarkAsFailed(reason string) {
	if r.IsTerminal() {
		return
	}
	r.Status = RequestStatusFailed
	r.ErrorMessage = &reason
	now := time.Now()
	r.CompletedAt = &now
}

// AppendGuardrailResults appends guardrail results to the request's audit trail
func (r *AIRequest) AppendGuardrailResults(results []GuardrailResult) {
	r.GuardrailResults = append(r.GuardrailResults, results...)
}

// HasGuardrailViolation reports whether any recorded guardrail result failed
func (r *AIRequest) HasGuardrailViolation() bool {
	for _, res := range r.GuardrailResults {
		if !res.Passed {
			return true
		}
	}
	return false
}
