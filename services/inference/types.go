package inference

import (
	"context"

	"github.com/upb/nexus-gateway/services/providers"
)

// Router selects an adapter for a model and forwards calls to it
type Router interface {
	Route(model string) providers.Provider
	Chat(ctx context.Context, req *providers.ChatRequest) (string, error)
	StreamChat(ctx context.Context, req *providers.ChatRequest) (providers.Stream, error)
	Embed(ctx context.Context, text, model string) ([]float64, error)
}

// ChatStream is a dispatched stream that knows which backend serves it
type ChatStream interface {
	providers.Stream
	Provider() string
}

// ChatRequest is a chat call as received from the HTTP layer
type ChatRequest struct {
	// RequestID correlates the call with its HTTP request
	RequestID string `json:"request_id,omitempty"`

	// Model selects the backend
	Model string `json:"model"`

	// Messages in the conversation, in turn order
	Messages []providers.Message `json:"messages"`

	// Model parameters
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ChatResponse is the normalized answer of a chat call
type ChatResponse struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	LatencyMs int    `json:"latency_ms"`
}

// EmbedRequest is an embedding call as received from the HTTP layer
type EmbedRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Input     string `json:"input"`
	Model     string `json:"model"`
}

// EmbedResponse carries the embedding vector and the backend that produced it
type EmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
}

func (r *ChatRequest) toProvider() *providers.ChatRequest {
	return &providers.ChatRequest{
		Messages:    r.Messages,
		Model:       r.Model,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}
