package guardrails

import (
	"context"
	"encoding/json"

	"github.com/structura/aip-gateway/models"
)

// Phase indicates which side of the model call a guardrail applies to
type Phase string

const (
	PhaseInput  Phase = "input"
	PhaseOutput Phase = "output"
	PhaseBoth   Phase = "both"
)

// RequestContext carries per-request context into guardrail checks
type RequestContext struct {
	CallerID  string
	SubjectID string
	Kind      models.RequestKind
	Provider  string

	// Data is an optional structured payload accompanying the request,
	// validated against the domain ontology.
	Data json.RawMessage

	// MaxCost is the caller-specified cost ceiling; zero means the
	// configured default applies.
	MaxCost float64

	// GroundTruth is caller-supplied reference material for output
	// claim verification.
	GroundTruth []string

	// Input holds the original request input during the output phase.
	Input string

	// SkipDomainValidation bypasses the domain-validation guardrail.
	SkipDomainValidation bool
}

// Guardrail is an independent, prioritized policy check applied to request
// input or model output. Checks must be side-effect-free: they may call a
// model or external detector but must not mutate shared state.
type Guardrail interface {
	// ID returns the stable guardrail identifier
	ID() string

	// Name returns the human-readable guardrail name
	Name() string

	// Phase returns which phase(s) the guardrail runs in
	Phase() Phase

	// Priority orders execution within a phase; lower runs first
	Priority() int

	// Check evaluates content and returns the guardrail's verdict
	Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error)
}
