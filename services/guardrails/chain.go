package guardrails

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/structura/aip-gateway/models"
	"go.uber.org/zap"
)

// registration pairs a guardrail with its chain-local state
type registration struct {
	guardrail Guardrail
	enabled   bool
	seq       int // registration sequence, tie-breaks equal priorities
}

// Chain orders, executes, and aggregates guardrail checks for one phase.
// Within a phase, guardrails run in ascending priority order; ties break by
// registration sequence. The chain does not short-circuit on failure, so a
// caller sees every violation, not just the first; whether a failure blocks
// the request is the orchestrator's decision.
type Chain struct {
	mu      sync.RWMutex
	entries map[string]*registration
	nextSeq int
	logger  *zap.Logger
}

// NewChain creates an empty guardrail chain
func NewChain(logger *zap.Logger) *Chain {
	return &Chain{
		entries: make(map[string]*registration),
		logger:  logger,
	}
}

// Register adds a guardrail to the chain, enabled by default. Registering an
// id twice replaces the previous guardrail but keeps its sequence position.
func (c *Chain) Register(g Guardrail) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[g.ID()]; ok {
		existing.guardrail = g
		return
	}

	c.entries[g.ID()] = &registration{guardrail: g, enabled: true, seq: c.nextSeq}
	c.nextSeq++
}

// Remove deletes a guardrail from the chain
func (c *Chain) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// SetEnabled toggles a guardrail without removing it
func (c *Chain) SetEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("unknown guardrail: %s", id)
	}
	entry.enabled = enabled
	return nil
}

// Run evaluates all enabled guardrails matching the phase against content,
// in order. Each guardrail sees the current content: any ModifiedContent
// produced by an earlier guardrail in the same phase, passing or failing, is
// folded in before the next check. Returns every result in execution order
// plus the final content.
func (c *Chain) Run(ctx context.Context, content string, phase Phase, rc *RequestContext) ([]models.GuardrailResult, string, error) {
	results := make([]models.GuardrailResult, 0)

	for _, g := range c.selectForPhase(phase) {
		result, err := g.Check(ctx, content, rc)
		if err != nil {
			return results, content, fmt.Errorf("guardrail %s: %w", g.ID(), err)
		}
		result.GuardrailID = g.ID()
		results = append(results, result)

		if result.ModifiedContent != "" {
			content = result.ModifiedContent
		}

		c.logger.Debug("guardrail evaluated",
			zap.String("guardrail", g.ID()),
			zap.String("phase", string(phase)),
			zap.Bool("passed", result.Passed))
	}

	return results, content, nil
}

// FirstFailure returns the first failing result in chain order, or nil
func FirstFailure(results []models.GuardrailResult) *models.GuardrailResult {
	for i := range results {
		if !results[i].Passed {
			return &results[i]
		}
	}
	return nil
}

// selectForPhase snapshots the enabled guardrails applicable to a phase,
// sorted by (priority, registration sequence).
func (c *Chain) selectForPhase(phase Phase) []Guardrail {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type candidate struct {
		g   Guardrail
		seq int
	}

	candidates := make([]candidate, 0, len(c.entries))
	for _, entry := range c.entries {
		if !entry.enabled {
			continue
		}
		gp := entry.guardrail.Phase()
		if gp == phase || gp == PhaseBoth {
			candidates = append(candidates, candidate{g: entry.guardrail, seq: entry.seq})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].g.Priority() != candidates[j].g.Priority() {
			return candidates[i].g.Priority() < candidates[j].g.Priority()
		}
		return candidates[i].seq < candidates[j].seq
	})

	selected := make([]Guardrail, len(candidates))
	for i, cand := range candidates {
		selected[i] = cand.g
	}
	return selected
}
