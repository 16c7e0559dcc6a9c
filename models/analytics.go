package models

// UsageAnalytics represents aggregate metrics over persisted gateway requests
type UsageAnalytics struct {
	TotalRequests       int64            `json:"total_requests"`
	SuccessRate         float64          `json:"success_rate"`
	AverageLatencyMs    float64          `json:"average_latency_ms"`
	TotalCost           float64          `json:"total_cost"`
	ByProvider          map[string]int64 `json:"by_provider"`
	ByKind              map[string]int64 `json:"by_kind"`
	GuardrailViolations int64            `json:"guardrail_violations"`
	CacheHitRate        float64          `json:"cache_hit_rate"`
}
