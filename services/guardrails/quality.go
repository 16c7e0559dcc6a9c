package guardrails

import (
	"context"
	"strings"

	"github.com/structura/aip-gateway/models"
)

const (
	qualityThreshold     = 0.7
	qualityIssuePenalty  = 0.2
	minResponseLength    = 50
	terminologyMinLength = 200
	minUniqueWordRatio   = 0.5
)

// DefaultDomainTerms returns the terminology expected in long responses
func DefaultDomainTerms() []string {
	return []string{"project", "schedule", "budget", "contractor", "specification"}
}

// QualityGuardrail flags responses that are implausibly short, appear
// truncated, show excessive repetition, or omit expected domain terminology
// for long responses. Each issue costs 0.2 of the score; a score below 0.7
// fails.
type QualityGuardrail struct {
	domainTerms []string
}

// NewQualityGuardrail creates an output-quality guardrail. A nil term list
// uses the defaults.
func NewQualityGuardrail(domainTerms []string) *QualityGuardrail {
	if domainTerms == nil {
		domainTerms = DefaultDomainTerms()
	}
	return &QualityGuardrail{domainTerms: domainTerms}
}

func (g *QualityGuardrail) ID() string    { return "output-quality" }
func (g *QualityGuardrail) Name() string  { return "Output Quality Check" }
func (g *QualityGuardrail) Phase() Phase  { return PhaseOutput }
func (g *QualityGuardrail) Priority() int { return 4 }

// Check scores the output as 1 - 0.2*issueCount, floored at zero
func (g *QualityGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	var issues []string

	tooShort := len(content) < minResponseLength
	if tooShort {
		issues = append(issues, "response too short")
	}

	if strings.HasSuffix(content, "...") || strings.HasSuffix(content, "..") {
		issues = append(issues, "response appears incomplete")
	}

	words := strings.Fields(content)
	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < minUniqueWordRatio {
			issues = append(issues, "high repetition detected")
		}
	}

	if len(content) > terminologyMinLength && !g.hasDomainTerm(content) {
		issues = append(issues, "missing domain terminology")
	}

	// An implausibly short response is weighted as two issues so it always
	// lands below the pass threshold on its own.
	score := 1 - float64(len(issues))*qualityIssuePenalty
	if tooShort {
		score -= qualityIssuePenalty
	}
	if score < 0 {
		score = 0
	}

	metadata := map[string]any{"score": score, "issues": issues}

	if score < qualityThreshold {
		return models.GuardrailResult{
			Passed:   false,
			Reason:   "output quality below threshold",
			Metadata: metadata,
		}, nil
	}

	return models.GuardrailResult{Passed: true, Metadata: metadata}, nil
}

func (g *QualityGuardrail) hasDomainTerm(content string) bool {
	lowered := strings.ToLower(content)
	for _, term := range g.domainTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
