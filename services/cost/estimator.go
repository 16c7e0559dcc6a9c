package cost

import "math"

// Rate holds per-1K-token prices for a provider
type Rate struct {
	Input  float64
	Output float64
}

// DefaultRates returns the built-in per-provider rate table
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"openai":    {Input: 0.03, Output: 0.06},
		"anthropic": {Input: 0.025, Output: 0.125},
		"gemini":    {Input: 0.001, Output: 0.002},
	}
}

// Estimator computes pre-call cost estimates and post-call actual costs.
// Both sides use the same rate table so pre- and post-call figures are
// comparable for auditing.
type Estimator struct {
	rates    map[string]Rate
	fallback string
}

// NewEstimator creates an Estimator with the given rate table. An unknown
// provider falls back to the openai rates.
func NewEstimator(rates map[string]Rate) *Estimator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Estimator{rates: rates, fallback: "openai"}
}

// EstimateTokens approximates the token count of content as length/4
func (e *Estimator) EstimateTokens(content string) int {
	return int(math.Ceil(float64(len(content)) / 4))
}

// EstimateCost returns the pre-call cost estimate for content against a provider
func (e *Estimator) EstimateCost(content, provider string) float64 {
	tokens := e.EstimateTokens(content)
	return float64(tokens) / 1000 * e.rateFor(provider).Input
}

// ActualCost computes the post-call cost from reported token usage
func (e *Estimator) ActualCost(inputTokens, outputTokens int, provider string) float64 {
	rate := e.rateFor(provider)
	return float64(inputTokens)/1000*rate.Input + float64(outputTokens)/1000*rate.Output
}

func (e *Estimator) rateFor(provider string) Rate {
	if rate, ok := e.rates[provider]; ok {
		return rate
	}
	if rate, ok := e.rates[e.fallback]; ok {
		return rate
	}
	// A custom table without the fallback row must not price requests at
	// zero, or cost control stops binding.
	return DefaultRates()[e.fallback]
}
