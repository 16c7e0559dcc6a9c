package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/services"
	"github.com/structura/aip-gateway/services/gateway"
	"github.com/structura/aip-gateway/utils"
	"go.uber.org/zap"
)

// GatewayService defines the orchestrator surface the handler depends on
type GatewayService interface {
	ProcessRequest(ctx context.Context, sub *gateway.SubmitRequest) (*models.AIRequest, error)
}

// ProcessRequestPayload is the JSON body of a gateway request submission
type ProcessRequestPayload struct {
	CallerID  string `json:"caller_id" validate:"required"`
	SubjectID string `json:"subject_id,omitempty"`
	Kind      string `json:"kind" validate:"required,oneof=completion embedding vision voice document"`
	Provider  string `json:"provider" validate:"required"`
	Input     string `json:"input" validate:"required"`

	Data                 json.RawMessage `json:"data,omitempty"`
	MaxCost              float64         `json:"max_cost,omitempty" validate:"omitempty,gt=0"`
	GroundTruth          []string        `json:"ground_truth,omitempty"`
	SkipDomainValidation bool            `json:"skip_domain_validation,omitempty"`

	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// GatewayHandler serves the gateway's HTTP surface
type GatewayHandler struct {
	service  GatewayService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(service GatewayService, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// ProcessRequest handles POST /api/v1/requests
func (h *GatewayHandler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	var payload ProcessRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		_ = utils.WriteBadRequest(w, "invalid JSON body", nil)
		return
	}

	if err := h.validate.Struct(&payload); err != nil {
		_ = utils.WriteBadRequest(w, "validation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	req, err := h.service.ProcessRequest(r.Context(), &gateway.SubmitRequest{
		CallerID:             payload.CallerID,
		SubjectID:            payload.SubjectID,
		Kind:                 models.RequestKind(payload.Kind),
		Provider:             payload.Provider,
		Input:                payload.Input,
		Data:                 payload.Data,
		MaxCost:              payload.MaxCost,
		GroundTruth:          payload.GroundTruth,
		SkipDomainValidation: payload.SkipDomainValidation,
		Options: gateway.InvokeOptions{
			Model:       payload.Model,
			MaxTokens:   payload.MaxTokens,
			Temperature: payload.Temperature,
		},
	})
	if err != nil {
		h.writeDomainError(w, req, err)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, req)
}

// writeDomainError maps the error taxonomy to HTTP statuses. The request
// record rides along in the details so callers can audit guardrail results
// even on rejection.
func (h *GatewayHandler) writeDomainError(w http.ResponseWriter, req *models.AIRequest, err error) {
	details := services.GetErrorDetails(err)
	if req != nil {
		if details == nil {
			details = make(map[string]interface{})
		}
		details["request"] = req
	}

	switch services.GetErrorType(err) {
	case services.ErrorTypeRateLimit:
		_ = utils.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error(), details)
	case services.ErrorTypeGuardrail:
		_ = utils.WriteError(w, http.StatusUnprocessableEntity, "guardrail_blocked", err.Error(), details)
	case services.ErrorTypeProvider:
		_ = utils.WriteError(w, http.StatusBadGateway, "provider_error", err.Error(), details)
	case services.ErrorTypeTimeout:
		_ = utils.WriteError(w, http.StatusGatewayTimeout, "timeout", err.Error(), details)
	case services.ErrorTypeValidation:
		_ = utils.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), details)
	default:
		h.logger.Error("gateway request failed", zap.Error(err))
		_ = utils.WriteInternalError(w, "request processing failed")
	}
}
