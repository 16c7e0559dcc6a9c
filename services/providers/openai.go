package providers

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services"
)

const (
	defaultCompletionModel = "gpt-4"
	defaultEmbeddingModel  = "text-embedding-3-small"
)

// OpenAIConfig holds OpenAI adapter configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIInvoker implements the Invoker interface for OpenAI
type OpenAIInvoker struct {
	client *openai.Client
}

// NewOpenAIInvoker creates a new OpenAI adapter
func NewOpenAIInvoker(cfg OpenAIConfig) *OpenAIInvoker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIInvoker{client: openai.NewClientWithConfig(clientCfg)}
}

// Name returns the provider name
func (a *OpenAIInvoker) Name() string {
	return "openai"
}

// Invoke performs a model call. Completion-style kinds go through chat
// completions; embeddings through the embeddings endpoint.
func (a *OpenAIInvoker) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	switch req.Kind {
	case models.RequestKindEmbedding:
		return a.invokeEmbedding(ctx, req)
	default:
		return a.invokeChat(ctx, req)
	}
}

func (a *OpenAIInvoker) invokeChat(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultCompletionModel
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Input},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, services.NewProviderError("openai chat completion failed", err,
			map[string]interface{}{"model": model})
	}
	if len(resp.Choices) == 0 {
		return nil, services.NewProviderError("openai returned no choices", nil,
			map[string]interface{}{"model": model})
	}

	return &InvokeResponse{
		Output: resp.Choices[0].Message.Content,
		Model:  resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (a *OpenAIInvoker) invokeEmbedding(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{req.Input},
	})
	if err != nil {
		return nil, services.NewProviderError("openai embedding failed", err,
			map[string]interface{}{"model": model})
	}
	if len(resp.Data) == 0 {
		return nil, services.NewProviderError("openai returned no embedding", nil,
			map[string]interface{}{"model": model})
	}

	encoded, err := encodeEmbedding(resp.Data[0].Embedding)
	if err != nil {
		return nil, services.NewInternalError("failed to encode embedding", err)
	}

	return &InvokeResponse{
		Output: encoded,
		Model:  string(resp.Model),
		Usage: Usage{
			InputTokens: resp.Usage.PromptTokens,
		},
	}, nil
}
