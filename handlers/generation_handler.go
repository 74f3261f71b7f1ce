package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/middleware"
	"github.com/upb/nexus-gateway/services"
	"github.com/upb/nexus-gateway/services/generation"
	"github.com/upb/nexus-gateway/services/inference"
	"github.com/upb/nexus-gateway/utils"
)

// GenerateRequest is the body of the generation endpoints
type GenerateRequest struct {
	Prompt  string                 `json:"prompt" validate:"required,notblank"`
	Type    string                 `json:"type,omitempty"`
	Model   string                 `json:"model"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse is returned by POST /api/v1/generate/code
type GenerateResponse struct {
	Content  string `json:"content"`
	Type     string `json:"type"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// AppPlanResponse is returned by POST /api/v1/generate/app
type AppPlanResponse struct {
	Status   string `json:"status"`
	Plan     string `json:"plan"`
	Message  string `json:"message"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// GenerationService defines the generation operations used by the handler
type GenerationService interface {
	GenerateCode(ctx context.Context, req *generation.Request) (*inference.ChatResponse, error)
	GenerateAppPlan(ctx context.Context, req *generation.Request) (*inference.ChatResponse, error)
}

// GenerationHandler handles prompt-templated generation requests
type GenerationHandler struct {
	service GenerationService
	logger  *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(service GenerationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerateCode handles POST /api/v1/generate/code
func (h *GenerationHandler) HandleGenerateCode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}

	result, err := h.service.GenerateCode(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, GenerateResponse{
		Content:  result.Content,
		Type:     "code",
		Model:    req.Model,
		Provider: result.Provider,
	})
}

// HandleGenerateApp handles POST /api/v1/generate/app
func (h *GenerationHandler) HandleGenerateApp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}

	result, err := h.service.GenerateAppPlan(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, AppPlanResponse{
		Status:   "success",
		Plan:     result.Content,
		Message:  "App generation plan created",
		Model:    req.Model,
		Provider: result.Provider,
	})
}

func (h *GenerationHandler) parse(w http.ResponseWriter, r *http.Request) (*generation.Request, bool) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to parse request body", append(requestFields(r.Context()), zap.Error(err))...)
		HandleServiceError(w, services.ErrInvalidInput, h.logger)
		return nil, false
	}
	if err := utils.ValidateStruct(&body); err != nil {
		HandleServiceError(w, services.ErrEmptyPrompt, h.logger)
		return nil, false
	}

	model := body.Model
	if model == "" {
		model = DefaultModel
	}

	return &generation.Request{
		RequestID: requestID,
		Prompt:    body.Prompt,
		Model:     model,
		Options:   body.Options,
	}, true
}
