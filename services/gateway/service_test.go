package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services"
	"github.com/structura/aip-gateway/services/cache"
	"github.com/structura/aip-gateway/services/cost"
	"github.com/structura/aip-gateway/services/guardrails"
	"github.com/structura/aip-gateway/services/providers"
	"github.com/structura/aip-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// fakeInvoker records invocations and returns a canned response
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []string
	response *providers.InvokeResponse
	err      error
}

func (f *fakeInvoker) Name() string { return "openai" }

func (f *fakeInvoker) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingSink captures terminal records handed to analytics
type recordingSink struct {
	mu      sync.Mutex
	records []*models.AIRequest
	errs    []error
}

func (r *recordingSink) Log(req *models.AIRequest, procErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, req)
	r.errs = append(r.errs, procErr)
}

func (r *recordingSink) last() (*models.AIRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return nil, nil
	}
	return r.records[len(r.records)-1], r.errs[len(r.errs)-1]
}

// passthroughGuardrail passes while rewriting content, for fold tests
type passthroughGuardrail struct {
	id       string
	phase    guardrails.Phase
	priority int
	rewrite  func(string) string
}

func (p *passthroughGuardrail) ID() string              { return p.id }
func (p *passthroughGuardrail) Name() string            { return p.id }
func (p *passthroughGuardrail) Phase() guardrails.Phase { return p.phase }
func (p *passthroughGuardrail) Priority() int           { return p.priority }

func (p *passthroughGuardrail) Check(ctx context.Context, content string, rc *guardrails.RequestContext) (models.GuardrailResult, error) {
	result := models.GuardrailResult{Passed: true}
	if p.rewrite != nil {
		result.ModifiedContent = p.rewrite(content)
	}
	return result, nil
}

// stallingGuardrail blocks until the request context expires
type stallingGuardrail struct {
	phase guardrails.Phase
}

func (s *stallingGuardrail) ID() string              { return "stalling" }
func (s *stallingGuardrail) Name() string            { return "stalling" }
func (s *stallingGuardrail) Phase() guardrails.Phase { return s.phase }
func (s *stallingGuardrail) Priority() int           { return 0 }

func (s *stallingGuardrail) Check(ctx context.Context, content string, rc *guardrails.RequestContext) (models.GuardrailResult, error) {
	<-ctx.Done()
	return models.GuardrailResult{}, ctx.Err()
}

type fixture struct {
	service *Service
	invoker *fakeInvoker
	sink    *recordingSink
	store   *cache.MemoryStore
	limiter *ratelimit.MemoryLimiter
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	logger := zap.NewNop()

	invoker := &fakeInvoker{
		response: &providers.InvokeResponse{
			Output: "The project is on schedule and the contractor confirmed the budget remains unchanged for this phase.",
			Model:  "gpt-4",
			Usage:  providers.Usage{InputTokens: 10, OutputTokens: 20},
		},
	}

	registry := providers.NewRegistry()
	registry.Register(invoker)

	chain := guardrails.NewChain(logger)
	chain.Register(guardrails.NewSafetyGuardrail([]string{"forbidden"}, nil))
	chain.Register(guardrails.NewPIIGuardrail(nil))
	chain.Register(guardrails.NewQualityGuardrail(nil))
	chain.Register(guardrails.NewTokenLimitGuardrail(4000, cost.NewEstimator(nil)))
	chain.Register(guardrails.NewCostControlGuardrail(cost.NewEstimator(nil), 10.0))
	chain.Register(guardrails.NewHallucinationGuardrail())

	sink := &recordingSink{}
	store := cache.NewMemoryStore(0, logger)
	limiter := ratelimit.NewMemoryLimiter(limit, logger)

	service := NewService(limiter, store, chain, cost.NewEstimator(nil), registry, sink, logger)
	return &fixture{service: service, invoker: invoker, sink: sink, store: store, limiter: limiter}
}

func submission() *SubmitRequest {
	return &SubmitRequest{
		CallerID: "caller-1",
		Kind:     models.RequestKindCompletion,
		Provider: "openai",
		Input:    "Summarize the current project schedule for the client.",
	}
}

func TestProcessRequest_CompletesCleanRequest(t *testing.T) {
	f := newFixture(t, 0)

	req, err := f.service.ProcessRequest(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusCompleted, req.Status)
	assert.Equal(t, f.invoker.response.Output, req.Output)
	assert.False(t, req.Metrics.CacheHit)
	assert.Equal(t, 10, req.Metrics.InputTokens)
	assert.Equal(t, 20, req.Metrics.OutputTokens)
	// 10/1000*0.03 + 20/1000*0.06 at openai rates.
	assert.InDelta(t, 0.0015, req.Metrics.Cost, 1e-9)
	assert.NotNil(t, req.CompletedAt)

	// Both phases ran: safety+pii+tokenlimit+costcontrol on input,
	// safety+pii+quality+hallucination on output.
	assert.Len(t, req.GuardrailResults, 8)
	assert.False(t, req.HasGuardrailViolation())

	logged, loggedErr := f.sink.last()
	require.NotNil(t, logged)
	assert.NoError(t, loggedErr)
	assert.Equal(t, req.ID, logged.ID)
}

func TestProcessRequest_BlockedTermNeverReachesProvider(t *testing.T) {
	f := newFixture(t, 0)

	sub := submission()
	sub.Input = "Tell me about the forbidden procedure."

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, services.IsGuardrailError(err))

	assert.Equal(t, models.RequestStatusBlocked, req.Status)
	assert.Zero(t, f.invoker.callCount(), "provider must not be invoked for blocked input")
	assert.True(t, req.HasGuardrailViolation())
	require.NotNil(t, req.ErrorMessage)
	assert.Equal(t, "content contains blocked terms", *req.ErrorMessage)

	logged, loggedErr := f.sink.last()
	require.NotNil(t, logged)
	assert.Error(t, loggedErr)
	assert.Equal(t, models.RequestStatusBlocked, logged.Status)
}

func TestProcessRequest_BlockedStatusIsPreserved(t *testing.T) {
	f := newFixture(t, 0)

	sub := submission()
	sub.Input = "My SSN is 123-45-6789, summarize the project schedule."

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.Error(t, err)

	// fail() runs after MarkAsBlocked; blocked must not collapse into failed.
	assert.Equal(t, models.RequestStatusBlocked, req.Status)
}

func TestProcessRequest_RedactionVisibleInAuditTrail(t *testing.T) {
	f := newFixture(t, 0)

	sub := submission()
	sub.Input = "Email john@example.com the project schedule."

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.Error(t, err)

	var piiResult *models.GuardrailResult
	for i := range req.GuardrailResults {
		if req.GuardrailResults[i].GuardrailID == "pii-detection" {
			piiResult = &req.GuardrailResults[i]
		}
	}
	require.NotNil(t, piiResult)
	assert.False(t, piiResult.Passed)
	assert.Contains(t, piiResult.ModifiedContent, "[REDACTED]")
	assert.NotContains(t, piiResult.ModifiedContent, "john@example.com")
}

func TestProcessRequest_ModifiedInputReachesProvider(t *testing.T) {
	f := newFixture(t, 0)

	// A passing guardrail that rewrites the input; it runs after the stock
	// input guardrails.
	f.service.AddGuardrail(&passthroughGuardrail{
		id: "input-normalizer", phase: guardrails.PhaseInput, priority: 9,
		rewrite: func(content string) string { return content + " [normalized]" },
	})

	sub := submission()
	_, err := f.service.ProcessRequest(context.Background(), sub)
	require.NoError(t, err)

	require.Equal(t, 1, f.invoker.callCount())
	assert.Equal(t, sub.Input+" [normalized]", f.invoker.calls[0])
}

func TestProcessRequest_RateLimit(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		// Vary the input so the cache does not mask the limiter.
		sub := submission()
		sub.Input = sub.Input + string(rune('a'+i))
		_, err := f.service.ProcessRequest(ctx, sub)
		require.NoError(t, err)
	}

	req, err := f.service.ProcessRequest(ctx, submission())
	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))
	assert.Equal(t, models.RequestStatusFailed, req.Status)
	assert.Equal(t, 2, f.invoker.callCount(), "rejected request never reaches the provider")
}

func TestProcessRequest_CacheHitSkipsPipeline(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	first, err := f.service.ProcessRequest(ctx, submission())
	require.NoError(t, err)
	require.False(t, first.Metrics.CacheHit)

	second, err := f.service.ProcessRequest(ctx, submission())
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusCompleted, second.Status)
	assert.True(t, second.Metrics.CacheHit)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, 1, f.invoker.callCount(), "second request is served from cache")
	assert.Empty(t, second.GuardrailResults, "guardrails do not run on a cache hit")
	assert.NotEqual(t, first.ID, second.ID, "each submission gets its own record")
}

func TestProcessRequest_BlockedResponseIsNotCached(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	sub := submission()
	sub.Input = "Discuss the forbidden topic in the project."

	_, err := f.service.ProcessRequest(ctx, sub)
	require.Error(t, err)

	// Same input again: still blocked, never served from cache.
	req, err := f.service.ProcessRequest(ctx, sub)
	require.Error(t, err)
	assert.Equal(t, models.RequestStatusBlocked, req.Status)
	assert.False(t, req.Metrics.CacheHit)
}

func TestProcessRequest_DisabledGuardrailProducesNoResult(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.service.SetGuardrailEnabled("content-safety", false))

	sub := submission()
	sub.Input = "Tell me about the forbidden procedure in the project schedule and contractor budget so the answer stays on topic."

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, req.Status)
	for _, result := range req.GuardrailResults {
		assert.NotEqual(t, "content-safety", result.GuardrailID)
	}
}

func TestProcessRequest_OutputGuardrailBlocks(t *testing.T) {
	f := newFixture(t, 0)
	f.invoker.response = &providers.InvokeResponse{
		Output: "Yes.",
		Usage:  providers.Usage{InputTokens: 10, OutputTokens: 1},
	}

	req, err := f.service.ProcessRequest(context.Background(), submission())
	require.Error(t, err)
	assert.True(t, services.IsGuardrailError(err))
	assert.Equal(t, models.RequestStatusBlocked, req.Status)
	assert.Equal(t, 1, f.invoker.callCount(), "the provider was invoked before the output check")

	require.NotNil(t, req.ErrorMessage)
	assert.Equal(t, "output quality below threshold", *req.ErrorMessage)
}

func TestProcessRequest_HallucinationCheckUsesGroundTruth(t *testing.T) {
	f := newFixture(t, 0)
	f.invoker.response = &providers.InvokeResponse{
		Output: "The contractor rescheduled every inspection to December without approval from the project owner or the budget committee.",
		Usage:  providers.Usage{InputTokens: 10, OutputTokens: 15},
	}

	sub := submission()
	sub.GroundTruth = []string{"The project schedule shows all inspections completed in June as planned within budget."}

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.Error(t, err)
	assert.Equal(t, models.RequestStatusBlocked, req.Status)
	require.NotNil(t, req.ErrorMessage)
	assert.Equal(t, "potential hallucinations detected", *req.ErrorMessage)
}

func TestProcessRequest_UnknownProviderFails(t *testing.T) {
	f := newFixture(t, 0)

	sub := submission()
	sub.Provider = "mystery"

	req, err := f.service.ProcessRequest(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, services.IsProviderError(err))
	assert.Equal(t, models.RequestStatusFailed, req.Status)
}

func TestProcessRequest_ProviderErrorFails(t *testing.T) {
	f := newFixture(t, 0)
	f.invoker.err = errors.New("upstream 500")

	req, err := f.service.ProcessRequest(context.Background(), submission())
	require.Error(t, err)
	assert.True(t, services.IsProviderError(err))
	assert.Equal(t, models.RequestStatusFailed, req.Status)

	_, loggedErr := f.sink.last()
	assert.Error(t, loggedErr)
}

func TestProcessRequest_TimeoutMapsToTimeoutError(t *testing.T) {
	f := newFixture(t, 0)
	f.invoker.err = context.DeadlineExceeded

	req, err := f.service.ProcessRequest(context.Background(), submission())
	require.Error(t, err)
	assert.True(t, services.IsTimeoutError(err))
	assert.Equal(t, models.RequestStatusFailed, req.Status)
}

func TestProcessRequest_InputGuardrailTimeoutMapsToTimeoutError(t *testing.T) {
	f := newFixture(t, 0)
	f.service.AddGuardrail(&stallingGuardrail{phase: guardrails.PhaseInput})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, err := f.service.ProcessRequest(ctx, submission())
	require.Error(t, err)
	assert.True(t, services.IsTimeoutError(err), "deadline expiry in a guardrail maps to the timeout taxonomy")
	assert.Equal(t, models.RequestStatusFailed, req.Status)
	assert.Zero(t, f.invoker.callCount())
}

func TestProcessRequest_OutputGuardrailTimeoutMapsToTimeoutError(t *testing.T) {
	f := newFixture(t, 0)
	f.service.AddGuardrail(&stallingGuardrail{phase: guardrails.PhaseOutput})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, err := f.service.ProcessRequest(ctx, submission())
	require.Error(t, err)
	assert.True(t, services.IsTimeoutError(err))
	assert.Equal(t, models.RequestStatusFailed, req.Status)
	assert.Equal(t, 1, f.invoker.callCount(), "the provider call completed before the output phase stalled")
}

func TestProcessRequest_NilCacheDisablesCaching(t *testing.T) {
	f := newFixture(t, 0)
	logger := zap.NewNop()

	registry := providers.NewRegistry()
	registry.Register(f.invoker)

	service := NewService(
		ratelimit.NewMemoryLimiter(0, logger),
		nil,
		guardrails.NewChain(logger),
		cost.NewEstimator(nil),
		registry,
		nil,
		logger,
	)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		req, err := service.ProcessRequest(ctx, submission())
		require.NoError(t, err)
		assert.False(t, req.Metrics.CacheHit)
	}
	assert.Equal(t, 2, f.invoker.callCount())
}
