package guardrails

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services/providers"
)

const safetyPromptWindow = 500

// SafetyGuardrail flags content containing configured blocked terms and
// otherwise defers to a model-based safety classification when a classifier
// invoker is configured.
type SafetyGuardrail struct {
	blockedTerms []string
	classifier   providers.Invoker // optional; nil disables model-based checks
}

// NewSafetyGuardrail creates a safety guardrail. classifier may be nil, in
// which case only the blocked-term check runs.
func NewSafetyGuardrail(blockedTerms []string, classifier providers.Invoker) *SafetyGuardrail {
	return &SafetyGuardrail{blockedTerms: blockedTerms, classifier: classifier}
}

func (g *SafetyGuardrail) ID() string    { return "content-safety" }
func (g *SafetyGuardrail) Name() string  { return "Content Safety Check" }
func (g *SafetyGuardrail) Phase() Phase  { return PhaseBoth }
func (g *SafetyGuardrail) Priority() int { return 1 }

// Check flags blocked terms, then asks the classifier model for a
// {safe, reason} verdict. An unparseable classifier response passes.
func (g *SafetyGuardrail) Check(ctx context.Context, content string, rc *RequestContext) (models.GuardrailResult, error) {
	lowered := strings.ToLower(content)
	for _, term := range g.blockedTerms {
		if term == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(term)) {
			return models.GuardrailResult{
				Passed:   false,
				Reason:   "content contains blocked terms",
				Metadata: map[string]any{"blocked_term": term},
			}, nil
		}
	}

	if g.classifier == nil {
		return models.GuardrailResult{Passed: true}, nil
	}

	return g.classify(ctx, content)
}

type safetyVerdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason"`
}

func (g *SafetyGuardrail) classify(ctx context.Context, content string) (models.GuardrailResult, error) {
	sample := content
	if len(sample) > safetyPromptWindow {
		sample = sample[:safetyPromptWindow]
	}

	prompt := fmt.Sprintf(
		`Analyze this text for safety issues (violence, hate speech, illegal activities, etc.): %q
Respond with JSON: {"safe": boolean, "reason": string}`, sample)

	resp, err := g.classifier.Invoke(ctx, &providers.InvokeRequest{
		Kind:        models.RequestKindCompletion,
		Input:       prompt,
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		return models.GuardrailResult{}, err
	}

	var verdict safetyVerdict
	if err := json.Unmarshal([]byte(resp.Output), &verdict); err != nil {
		// Classifier responses that are not valid JSON are treated as safe.
		return models.GuardrailResult{Passed: true}, nil
	}

	return models.GuardrailResult{
		Passed: verdict.Safe,
		Reason: verdict.Reason,
	}, nil
}
