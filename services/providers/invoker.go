package providers

import (
	"context"

	"github.com/structura/aip-gateway/models"
)

// InvokeRequest represents a unified model invocation request
type InvokeRequest struct {
	// Kind is the logical request type (completion, embedding, ...)
	Kind models.RequestKind `json:"kind"`

	// Model identifier; the adapter default is used when empty
	Model string `json:"model,omitempty"`

	// Input is the prepared (possibly guardrail-modified) payload
	Input string `json:"input"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness
	Temperature float32 `json:"temperature,omitempty"`
}

// Usage holds provider-reported token counts
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// InvokeResponse represents a unified model invocation response
type InvokeResponse struct {
	Output string `json:"output"`
	Model  string `json:"model"`
	Usage  Usage  `json:"usage"`
}

// Invoker is the boundary to an external generative-model provider.
// The gateway does not specify provider wire formats, only that usage
// counts are returned when available.
type Invoker interface {
	// Name returns the provider name (e.g., "openai")
	Name() string

	// Invoke performs a model call
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}
