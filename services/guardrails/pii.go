package guardrails

import (
	"context"
	"regexp"

	"github.com/structura/aip-gateway/models"
)

const redactionMarker = "[REDACTED]"

// PIIPattern pairs a PII category with its detection pattern
type PIIPattern struct {
	Type    string
	Pattern *regexp.Regexp
}

// DefaultPIIPatterns returns the built-in PII pattern set
func DefaultPIIPatterns() []PIIPattern {
	return []PIIPattern{
		{Type: "ssn", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Type: "email", Pattern: regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)},
		{Type: "phone", Pattern: regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)},
		{Type: "credit_card", Pattern: regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	}
}

// PIIGuardrail scans for structured identifiers via regular-expression
// matching. On any match it fails with a redacted ModifiedContent and
// metadata listing the categories found.
type PIIGuardrail struct {
	patterns []PIIPattern
}

// NewPIIGuardrail creates a PII detection guardrail. A nil pattern set uses
// the defaults.
func NewPIIGuardrail(patterns []PIIPattern) *PIIGuardrail {
	if patterns == nil {
		patterns = DefaultPIIPatterns()
	}
	return &PIIGuardrail{patterns: patterns}
}

func (g *PIIGuardrail) ID() string    { return "pii-detection" }
func (g *PIIGuardrail) Name() string  { return "PII Detection" }
func (g *PIIGuardrail) Phase() Phase  { return PhaseBoth }
func (g *PIIGuardrail) Priority() int { return 2 }

// Check fails when any PII pattern matches, replacing every detected span
// with the redaction marker.
func (g *PIIGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	var piiTypes []string
	redacted := content

	for _, p := range g.patterns {
		if !p.Pattern.MatchString(redacted) {
			continue
		}
		piiTypes = append(piiTypes, p.Type)
		redacted = p.Pattern.ReplaceAllString(redacted, redactionMarker)
	}

	if len(piiTypes) == 0 {
		return models.GuardrailResult{Passed: true}, nil
	}

	return models.GuardrailResult{
		Passed:          false,
		Reason:          "PII detected in content",
		ModifiedContent: redacted,
		Metadata:        map[string]any{"piiTypes": piiTypes},
	}, nil
}
