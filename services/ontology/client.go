package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/structura/aip-gateway/services"
	"go.uber.org/zap"
)

// Concept represents a domain concept returned by the ontology service
type Concept struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // e.g. "class", "property"
}

// Validation represents the result of validating data against a concept schema
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Client is the boundary to the external domain-ontology collaborator
type Client interface {
	// QueryConcepts finds domain concepts relevant to the given text
	QueryConcepts(ctx context.Context, text string) ([]Concept, error)

	// ValidateAgainstConcept validates structured data against a concept's schema
	ValidateAgainstConcept(ctx context.Context, data json.RawMessage, conceptID string) (*Validation, error)
}

// Config holds ontology service connection settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient implements Client against the ontology service's HTTP API
type HTTPClient struct {
	rest   *resty.Client
	logger *zap.Logger
}

// NewHTTPClient creates a new ontology HTTP client
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rest.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &HTTPClient{rest: rest, logger: logger}
}

type queryConceptsRequest struct {
	Text           string `json:"text"`
	IncludeRelated bool   `json:"include_related"`
	Depth          int    `json:"depth"`
}

type queryConceptsResponse struct {
	Concepts []Concept `json:"concepts"`
}

// QueryConcepts finds domain concepts relevant to the given text
func (c *HTTPClient) QueryConcepts(ctx context.Context, text string) ([]Concept, error) {
	var out queryConceptsResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(queryConceptsRequest{Text: text, IncludeRelated: true, Depth: 1}).
		SetResult(&out).
		Post("/concepts/query")
	if err != nil {
		return nil, services.NewInternalError("ontology concept query failed", err)
	}
	if resp.IsError() {
		return nil, services.NewInternalError(
			fmt.Sprintf("ontology concept query returned %d", resp.StatusCode()), nil)
	}

	c.logger.Debug("ontology concepts resolved",
		zap.Int("count", len(out.Concepts)))

	return out.Concepts, nil
}

// ValidateAgainstConcept validates structured data against a concept's schema
func (c *HTTPClient) ValidateAgainstConcept(ctx context.Context, data json.RawMessage, conceptID string) (*Validation, error) {
	var out Validation

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(data).
		SetResult(&out).
		Post(fmt.Sprintf("/concepts/%s/validate", conceptID))
	if err != nil {
		return nil, services.NewInternalError("ontology validation failed", err)
	}
	if resp.IsError() {
		return nil, services.NewInternalError(
			fmt.Sprintf("ontology validation returned %d", resp.StatusCode()), nil)
	}

	return &out, nil
}
