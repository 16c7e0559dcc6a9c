package guardrails

import (
	"context"
	"strings"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services/ontology"
)

// DomainGuardrail delegates to the external domain-ontology collaborator:
// it resolves the concepts relevant to the input text and, when structured
// data accompanies the request, validates the data shape against each
// matching concept's schema.
type DomainGuardrail struct {
	ontology ontology.Client
}

// NewDomainGuardrail creates a domain validation guardrail
func NewDomainGuardrail(client ontology.Client) *DomainGuardrail {
	return &DomainGuardrail{ontology: client}
}

func (g *DomainGuardrail) ID() string    { return "domain-validation" }
func (g *DomainGuardrail) Name() string  { return "Domain Validation" }
func (g *DomainGuardrail) Phase() Phase  { return PhaseInput }
func (g *DomainGuardrail) Priority() int { return 3 }

// Check passes with a warning when no domain concepts match; otherwise it
// validates any structured data against each matching class concept and
// fails with the accumulated schema violations.
func (g *DomainGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	if rc != nil && rc.SkipDomainValidation {
		return models.GuardrailResult{Passed: true}, nil
	}

	concepts, err := g.ontology.QueryConcepts(ctx, content)
	if err != nil {
		return models.GuardrailResult{}, err
	}

	if len(concepts) == 0 {
		return models.GuardrailResult{
			Passed:   true,
			Metadata: map[string]any{"warning": "no domain concepts detected"},
		}, nil
	}

	names := make([]string, len(concepts))
	var violations []string

	for i, concept := range concepts {
		names[i] = concept.Name

		if concept.Type != "class" || rc == nil || len(rc.Data) == 0 {
			continue
		}

		validation, err := g.ontology.ValidateAgainstConcept(ctx, rc.Data, concept.ID)
		if err != nil {
			return models.GuardrailResult{}, err
		}
		if !validation.Valid {
			violations = append(violations, validation.Errors...)
		}
	}

	if len(violations) > 0 {
		return models.GuardrailResult{
			Passed:   false,
			Reason:   strings.Join(violations, "; "),
			Metadata: map[string]any{"concepts": names},
		}, nil
	}

	return models.GuardrailResult{
		Passed:   true,
		Metadata: map[string]any{"concepts": names},
	}, nil
}
