package guardrails

import (
	"context"
	"fmt"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services/cost"
)

const defaultMaxCost = 10.0

// CostControlGuardrail estimates the monetary cost of a request from its
// token estimate and the per-provider rate table, and fails when the estimate
// exceeds the caller-specified (or default) ceiling.
type CostControlGuardrail struct {
	estimator      *cost.Estimator
	defaultCeiling float64
}

// NewCostControlGuardrail creates a cost-control guardrail. A non-positive
// defaultCeiling uses the built-in default.
func NewCostControlGuardrail(estimator *cost.Estimator, defaultCeiling float64) *CostControlGuardrail {
	if defaultCeiling <= 0 {
		defaultCeiling = defaultMaxCost
	}
	return &CostControlGuardrail{estimator: estimator, defaultCeiling: defaultCeiling}
}

func (g *CostControlGuardrail) ID() string    { return "cost-control" }
func (g *CostControlGuardrail) Name() string  { return "Cost Control" }
func (g *CostControlGuardrail) Phase() Phase  { return PhaseInput }
func (g *CostControlGuardrail) Priority() int { return 6 }

// Check fails when the pre-call cost estimate exceeds the ceiling
func (g *CostControlGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	provider := ""
	ceiling := g.defaultCeiling
	if rc != nil {
		provider = rc.Provider
		if rc.MaxCost > 0 {
			ceiling = rc.MaxCost
		}
	}

	estimated := g.estimator.EstimateCost(content, provider)

	if estimated > ceiling {
		return models.GuardrailResult{
			Passed:   false,
			Reason:   fmt.Sprintf("estimated cost ($%.4f) exceeds limit ($%.4f)", estimated, ceiling),
			Metadata: map[string]any{"estimatedCost": estimated},
		}, nil
	}

	return models.GuardrailResult{
		Passed:   true,
		Metadata: map[string]any{"estimatedCost": estimated},
	}, nil
}
