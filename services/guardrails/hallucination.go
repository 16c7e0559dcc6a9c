package guardrails

import (
	"context"
	"strings"

	"github.com/structura/aip-gateway/models"
)

const (
	minClaimLength   = 20
	claimMatchWindow = 50
)

// HallucinationGuardrail verifies candidate factual claims in the output
// against caller-supplied ground-truth material. It only runs when ground
// truth is present.
type HallucinationGuardrail struct{}

// NewHallucinationGuardrail creates a hallucination-detection guardrail
func NewHallucinationGuardrail() *HallucinationGuardrail {
	return &HallucinationGuardrail{}
}

func (g *HallucinationGuardrail) ID() string    { return "hallucination-detection" }
func (g *HallucinationGuardrail) Name() string  { return "Hallucination Detection" }
func (g *HallucinationGuardrail) Phase() Phase  { return PhaseOutput }
func (g *HallucinationGuardrail) Priority() int { return 7 }

// Check extracts claims (sentences longer than 20 characters) from the
// output and fails when any claim cannot be approximately matched against
// the ground truth.
func (g *HallucinationGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	if rc == nil || len(rc.GroundTruth) == 0 {
		return models.GuardrailResult{Passed: true}, nil
	}

	var hallucinations []string
	for _, claim := range extractClaims(content) {
		if !verifyClaim(claim, rc.GroundTruth) {
			hallucinations = append(hallucinations, claim)
		}
	}

	if len(hallucinations) > 0 {
		return models.GuardrailResult{
			Passed:   false,
			Reason:   "potential hallucinations detected",
			Metadata: map[string]any{"hallucinations": hallucinations},
		}, nil
	}

	return models.GuardrailResult{Passed: true}, nil
}

// extractClaims performs a simple sentence split; anything longer than the
// minimum claim length counts as a candidate factual claim.
func extractClaims(text string) []string {
	var claims []string
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > minClaimLength {
			claims = append(claims, sentence)
		}
	}
	return claims
}

// verifyClaim approximately matches a claim against the ground truth by
// substring containment on the claim's leading characters.
func verifyClaim(claim string, groundTruth []string) bool {
	needle := strings.ToLower(claim)
	if len(needle) > claimMatchWindow {
		needle = needle[:claimMatchWindow]
	}
	for _, truth := range groundTruth {
		if strings.Contains(strings.ToLower(truth), needle) {
			return true
		}
	}
	return false
}
