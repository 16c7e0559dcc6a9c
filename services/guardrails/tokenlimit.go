package guardrails

import (
	"context"
	"fmt"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services/cost"
)

const (
	defaultMaxTokens = 4000
	charsPerToken    = 4
	truncationMarker = "..."
)

// TokenLimitGuardrail estimates the token count of the input and fails when
// it exceeds the configured maximum, offering a truncated ModifiedContent.
type TokenLimitGuardrail struct {
	maxTokens int
	estimator *cost.Estimator
}

// NewTokenLimitGuardrail creates a token-limit guardrail. A non-positive
// maxTokens uses the default.
func NewTokenLimitGuardrail(maxTokens int, estimator *cost.Estimator) *TokenLimitGuardrail {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &TokenLimitGuardrail{maxTokens: maxTokens, estimator: estimator}
}

func (g *TokenLimitGuardrail) ID() string    { return "token-limit" }
func (g *TokenLimitGuardrail) Name() string  { return "Token Limit Check" }
func (g *TokenLimitGuardrail) Phase() Phase  { return PhaseInput }
func (g *TokenLimitGuardrail) Priority() int { return 5 }

// Check fails when the estimated token count exceeds the maximum. The offered
// remediation truncates to maxTokens*4 characters plus a truncation marker.
func (g *TokenLimitGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	tokenCount := g.estimator.EstimateTokens(content)

	if tokenCount <= g.maxTokens {
		return models.GuardrailResult{
			Passed:   true,
			Metadata: map[string]any{"tokenCount": tokenCount},
		}, nil
	}

	maxChars := g.maxTokens * charsPerToken
	truncated := content
	if len(truncated) > maxChars {
		truncated = truncated[:maxChars]
	}

	return models.GuardrailResult{
		Passed:          false,
		Reason:          fmt.Sprintf("token count (%d) exceeds limit of %d", tokenCount, g.maxTokens),
		ModifiedContent: truncated + truncationMarker,
		Metadata:        map[string]any{"tokenCount": tokenCount},
	}, nil
}
