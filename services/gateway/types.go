package gateway

import (
	"encoding/json"

	"github.com/structura/aip-gateway/models"
)

// InvokeOptions carries model parameters through to the provider adapter
type InvokeOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// SubmitRequest represents a request submitted to the gateway
type SubmitRequest struct {
	CallerID  string             `json:"caller_id"`
	SubjectID string             `json:"subject_id,omitempty"`
	Kind      models.RequestKind `json:"kind"`
	Provider  string             `json:"provider"`
	Input     string             `json:"input"`

	// Data is an optional structured payload validated against the domain
	// ontology alongside the text input.
	Data json.RawMessage `json:"data,omitempty"`

	// MaxCost overrides the default per-request cost ceiling when positive
	MaxCost float64 `json:"max_cost,omitempty"`

	// GroundTruth is reference material for output claim verification
	GroundTruth []string `json:"ground_truth,omitempty"`

	// SkipDomainValidation bypasses the domain-validation guardrail
	SkipDomainValidation bool `json:"skip_domain_validation,omitempty"`

	Options InvokeOptions `json:"options"`
}

// RequestLogger is the analytics sink the gateway reports terminal request
// records to. Best-effort: implementations must not propagate failures.
type RequestLogger interface {
	Log(req *models.AIRequest, procErr error)
}
