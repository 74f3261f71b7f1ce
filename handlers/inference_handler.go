package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/middleware"
	"github.com/upb/nexus-gateway/services"
	"github.com/upb/nexus-gateway/services/inference"
	"github.com/upb/nexus-gateway/services/providers"
	"github.com/upb/nexus-gateway/utils"
)

// Request defaults applied when a field is omitted
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the body of the chat endpoints
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model       string        `json:"model"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResponse is the body returned by POST /api/v1/chat
type ChatResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// EmbeddingRequest is the body of POST /api/v1/embeddings
type EmbeddingRequest struct {
	Input string `json:"input" validate:"required,notblank"`
	Model string `json:"model"`
}

// InferenceService defines the dispatch operations used by the handler
type InferenceService interface {
	Chat(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error)
	StreamChat(ctx context.Context, req *inference.ChatRequest) (inference.ChatStream, error)
	Embed(ctx context.Context, req *inference.EmbedRequest) (*inference.EmbedResponse, error)
}

// InferenceHandler handles chat and embedding requests
type InferenceHandler struct {
	service InferenceService
	logger  *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler
func NewInferenceHandler(service InferenceService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *InferenceHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	serviceReq, ok := h.parseChatRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Chat(r.Context(), serviceReq)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, ChatResponse{
		Content:  result.Content,
		Model:    result.Model,
		Provider: result.Provider,
	})
}

// HandleChatStream handles POST /api/v1/chat/stream.
// Fragments are written as server-sent events: data: {"content": ...}, ending
// with data: [DONE]. A failure after streaming began is sent as an error event
// instead of the end marker. A client disconnect cancels the backend call.
func (h *InferenceHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	serviceReq, ok := h.parseChatRequest(w, r)
	if !ok {
		return
	}

	stream, err := h.service.StreamChat(ctx, serviceReq)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer stream.Close()

	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Provider", stream.Provider())
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for stream.Next() {
		payload, err := json.Marshal(map[string]string{"content": stream.Chunk()})
		if err != nil {
			h.logger.Error("failed to encode fragment", zap.String("request_id", requestID), zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			h.logger.Debug("client went away", zap.String("request_id", requestID), zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			h.logger.Debug("stream cancelled by client", zap.String("request_id", requestID))
			return
		}
		h.logger.Error("stream failed",
			append(requestFields(ctx), zap.String("provider", stream.Provider()), zap.Error(err))...)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// HandleEmbeddings handles POST /api/v1/embeddings
func (h *InferenceHandler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body", append(requestFields(ctx), zap.Error(err))...)
		HandleServiceError(w, services.ErrInvalidInput, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleServiceError(w, services.ErrEmptyEmbeddingText, h.logger)
		return
	}

	result, err := h.service.Embed(ctx, &inference.EmbedRequest{
		RequestID: middleware.GetRequestIDFromContext(ctx),
		Input:     req.Input,
		Model:     req.Model,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// parseChatRequest decodes, validates and defaults a chat body.
// It writes the error response and returns false when the body is unusable.
func (h *InferenceHandler) parseChatRequest(w http.ResponseWriter, r *http.Request) (*inference.ChatRequest, bool) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var chatReq ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse request body", append(requestFields(r.Context()), zap.Error(err))...)
		HandleServiceError(w, services.ErrInvalidInput, h.logger)
		return nil, false
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed", append(requestFields(r.Context()), zap.Error(err))...)
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	req := &inference.ChatRequest{
		RequestID:   requestID,
		Model:       chatReq.Model,
		Messages:    make([]providers.Message, len(chatReq.Messages)),
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if chatReq.Temperature != nil {
		req.Temperature = *chatReq.Temperature
	}
	if chatReq.MaxTokens != nil {
		req.MaxTokens = *chatReq.MaxTokens
	}
	for i, msg := range chatReq.Messages {
		req.Messages[i] = providers.Message{Role: msg.Role, Content: msg.Content}
	}

	return req, true
}

// requestFields identifies the request and, when auth is enabled, the caller
func requestFields(ctx context.Context) []zap.Field {
	fields := []zap.Field{zap.String("request_id", middleware.GetRequestIDFromContext(ctx))}
	if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
		fields = append(fields, zap.String("subject", claims.Sub))
	}
	return fields
}
