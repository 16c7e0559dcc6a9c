package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services"
	"github.com/structura/aip-gateway/services/cache"
	"github.com/structura/aip-gateway/services/cost"
	"github.com/structura/aip-gateway/services/guardrails"
	"github.com/structura/aip-gateway/services/providers"
	"github.com/structura/aip-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// Service is the gateway's public entry point. It composes the rate limiter,
// response cache, guardrail chain, cost estimator, provider registry, and
// analytics sink into one request lifecycle state machine.
//
// Status transitions are owned exclusively by this service. A request ends
// completed, failed, or blocked; once terminal, the record is immutable and
// is the unit handed to analytics.
type Service struct {
	limiter   ratelimit.Limiter
	store     cache.Store
	chain     *guardrails.Chain
	estimator *cost.Estimator
	registry  *providers.Registry
	analytics RequestLogger
	logger    *zap.Logger

	cacheEnabled bool
}

// NewService creates a gateway service with all dependencies. A nil store
// disables response caching; a nil analytics sink disables logging.
func NewService(
	limiter ratelimit.Limiter,
	store cache.Store,
	chain *guardrails.Chain,
	estimator *cost.Estimator,
	registry *providers.Registry,
	analytics RequestLogger,
	logger *zap.Logger,
) *Service {
	return &Service{
		limiter:      limiter,
		store:        store,
		chain:        chain,
		estimator:    estimator,
		registry:     registry,
		analytics:    analytics,
		logger:       logger,
		cacheEnabled: store != nil,
	}
}

// AddGuardrail registers a guardrail with the chain
func (s *Service) AddGuardrail(g guardrails.Guardrail) {
	s.chain.Register(g)
}

// RemoveGuardrail removes a guardrail from the chain
func (s *Service) RemoveGuardrail(id string) {
	s.chain.Remove(id)
}

// SetGuardrailEnabled toggles a guardrail without removing it
func (s *Service) SetGuardrailEnabled(id string, enabled bool) error {
	return s.chain.SetEnabled(id, enabled)
}

// ProcessRequest runs one request through the full pipeline: rate limit,
// cache, input guardrails, model invocation, output guardrails, caching and
// analytics. The returned AIRequest always carries the full audit trail,
// including every guardrail result, whether or not an error is returned.
func (s *Service) ProcessRequest(ctx context.Context, sub *SubmitRequest) (*models.AIRequest, error) {
	start := time.Now()

	req := models.NewAIRequest(sub.CallerID, sub.SubjectID, sub.Kind, sub.Provider, sub.Input)
	req.Data = sub.Data

	s.logger.Info("processing gateway request",
		zap.String("request_id", req.ID.String()),
		zap.String("caller_id", sub.CallerID),
		zap.String("kind", string(sub.Kind)),
		zap.String("provider", sub.Provider))

	rc := &guardrails.RequestContext{
		CallerID:             sub.CallerID,
		SubjectID:            sub.SubjectID,
		Kind:                 sub.Kind,
		Provider:             sub.Provider,
		Data:                 sub.Data,
		MaxCost:              sub.MaxCost,
		GroundTruth:          sub.GroundTruth,
		SkipDomainValidation: sub.SkipDomainValidation,
	}

	// Step 1: rate limit admission, before any other work
	s.logger.Debug("step 1: rate limit", zap.String("request_id", req.ID.String()))
	admitted, err := s.limiter.Admit(ctx, sub.CallerID)
	if err != nil {
		return s.fail(req, start, services.NewInternalError("rate limit check failed", err))
	}
	if !admitted {
		rateErr := services.NewRateLimitError("rate limit exceeded", map[string]interface{}{
			"caller_id": sub.CallerID,
		})
		return s.fail(req, start, rateErr)
	}

	// Step 2: response cache; a hit short-circuits the whole pipeline
	cacheKey := cache.Key(string(sub.Kind), sub.Provider, sub.Input)
	if s.cacheEnabled {
		s.logger.Debug("step 2: cache lookup", zap.String("request_id", req.ID.String()))
		if cached, hit := s.cacheGet(ctx, cacheKey); hit {
			req.MarkAsCompleted(cached, models.RequestMetrics{
				LatencyMs: int(time.Since(start).Milliseconds()),
				CacheHit:  true,
			})
			s.logRequest(req, nil)
			s.logger.Info("cache hit", zap.String("request_id", req.ID.String()))
			return req, nil
		}
	}

	// Step 3: input-phase guardrails
	s.logger.Debug("step 3: input guardrails", zap.String("request_id", req.ID.String()))
	inputResults, preparedInput, err := s.chain.Run(ctx, sub.Input, guardrails.PhaseInput, rc)
	req.AppendGuardrailResults(inputResults)
	if err != nil {
		if deadlineExpired(ctx, err) {
			return s.fail(req, start, services.NewTimeoutError("request timed out during input guardrail evaluation", err))
		}
		return s.fail(req, start, services.NewInternalError("input guardrail evaluation failed", err))
	}
	if failure := guardrails.FirstFailure(inputResults); failure != nil {
		req.MarkAsBlocked(failure.Reason)
		blockErr := services.NewGuardrailError("blocked by guardrail: "+failure.Reason,
			map[string]interface{}{"guardrail": failure.GuardrailID, "phase": "input"})
		return s.fail(req, start, blockErr)
	}

	// Step 4: model invocation with the (possibly modified) input
	s.logger.Debug("step 4: invoking model",
		zap.String("request_id", req.ID.String()),
		zap.String("provider", sub.Provider))
	req.MarkAsProcessing()

	invoker, err := s.registry.Get(sub.Provider)
	if err != nil {
		return s.fail(req, start, err)
	}

	resp, err := invoker.Invoke(ctx, &providers.InvokeRequest{
		Kind:        sub.Kind,
		Model:       sub.Options.Model,
		Input:       preparedInput,
		MaxTokens:   sub.Options.MaxTokens,
		Temperature: sub.Options.Temperature,
	})
	if err != nil {
		if deadlineExpired(ctx, err) {
			// The in-flight provider call is abandoned; its eventual cost is
			// not reconciled here.
			return s.fail(req, start, services.NewTimeoutError("request timed out during model invocation", err))
		}
		if services.IsProviderError(err) {
			return s.fail(req, start, err)
		}
		return s.fail(req, start, services.NewProviderError("model invocation failed", err, nil))
	}

	// Step 5: output-phase guardrails against the model's output
	s.logger.Debug("step 5: output guardrails", zap.String("request_id", req.ID.String()))
	outRC := *rc
	outRC.Input = sub.Input
	outputResults, finalOutput, err := s.chain.Run(ctx, resp.Output, guardrails.PhaseOutput, &outRC)
	req.AppendGuardrailResults(outputResults)
	if err != nil {
		if deadlineExpired(ctx, err) {
			return s.fail(req, start, services.NewTimeoutError("request timed out during output guardrail evaluation", err))
		}
		return s.fail(req, start, services.NewInternalError("output guardrail evaluation failed", err))
	}
	if failure := guardrails.FirstFailure(outputResults); failure != nil {
		req.MarkAsBlocked(failure.Reason)
		blockErr := services.NewGuardrailError("output blocked by guardrail: "+failure.Reason,
			map[string]interface{}{"guardrail": failure.GuardrailID, "phase": "output"})
		return s.fail(req, start, blockErr)
	}

	// Step 6: finalize metrics, cache, log
	metrics := models.RequestMetrics{
		LatencyMs:    int(time.Since(start).Milliseconds()),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         s.estimator.ActualCost(resp.Usage.InputTokens, resp.Usage.OutputTokens, sub.Provider),
	}
	req.MarkAsCompleted(finalOutput, metrics)

	if s.cacheEnabled {
		s.cachePut(ctx, cacheKey, finalOutput)
	}
	s.logRequest(req, nil)

	s.logger.Info("gateway request completed",
		zap.String("request_id", req.ID.String()),
		zap.Int("latency_ms", metrics.LatencyMs),
		zap.Float64("cost", metrics.Cost),
		zap.Int("input_tokens", metrics.InputTokens),
		zap.Int("output_tokens", metrics.OutputTokens))

	return req, nil
}

// deadlineExpired reports whether an error from a pipeline step is the
// caller's context deadline expiring, either surfaced directly or wrapped by
// the step.
func deadlineExpired(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// fail terminates the request with the given error. A request already in a
// terminal state keeps it: blocked is never collapsed into failed, so the
// persisted record preserves the distinction while the returned error still
// carries the blocking reason.
func (s *Service) fail(req *models.AIRequest, start time.Time, err error) (*models.AIRequest, error) {
	req.MarkAsFailed(err.Error())
	req.Metrics.LatencyMs = int(time.Since(start).Milliseconds())

	s.logRequest(req, err)

	s.logger.Warn("gateway request terminated",
		zap.String("request_id", req.ID.String()),
		zap.String("status", string(req.Status)),
		zap.Error(err))

	return req, err
}

// cacheGet treats cache errors as misses; the cache must never take down a
// request.
func (s *Service) cacheGet(ctx context.Context, key string) (string, bool) {
	value, hit, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed", zap.Error(err))
		return "", false
	}
	return value, hit
}

func (s *Service) cachePut(ctx context.Context, key, value string) {
	if err := s.store.Put(ctx, key, value); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

// logRequest forwards the terminal record to analytics, best-effort
func (s *Service) logRequest(req *models.AIRequest, procErr error) {
	if s.analytics == nil {
		return
	}
	s.analytics.Log(req, procErr)
}
