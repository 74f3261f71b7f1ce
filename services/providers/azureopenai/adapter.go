// Package azureopenai implements the primary backend on Azure OpenAI using the
// official OpenAI Go SDK pointed at a deployment endpoint.
package azureopenai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/upb/nexus-gateway/services/providers"
)

const (
	// ProviderName is the name reported for the primary backend
	ProviderName = "azure-openai"

	// DefaultEmbeddingModel is used when an embed call names no model
	DefaultEmbeddingModel = "text-embedding-ada-002"

	defaultTimeout = 120 * time.Second
)

// Config holds the Azure OpenAI resource settings
type Config struct {
	// Endpoint is the resource base URL (e.g., https://name.openai.azure.com)
	Endpoint string

	// APIKey is sent in the api-key header
	APIKey string

	// Deployment serves chat calls
	Deployment string

	// APIVersion is appended as the api-version query parameter
	APIVersion string

	// Timeout for a whole call
	Timeout time.Duration

	// HTTPClient overrides the transport client (optional)
	HTTPClient *http.Client
}

// Adapter implements providers.Provider for Azure OpenAI
type Adapter struct {
	config Config
	client openai.Client
}

// NewAdapter creates a new Azure OpenAI adapter. The SDK client is built once here
// and shared by every call.
func NewAdapter(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithHeaderDel("authorization"),
		option.WithHeader("api-key", config.APIKey),
		option.WithQuery("api-version", config.APIVersion),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(config.Timeout),
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	return &Adapter{
		config: config,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return ProviderName
}

// Configured reports whether endpoint and key are present
func (a *Adapter) Configured() bool {
	return a.config.Endpoint != "" && a.config.APIKey != ""
}

// Chat performs a chat completion against the configured deployment
func (a *Adapter) Chat(ctx context.Context, req *providers.ChatRequest) (string, error) {
	if !a.Configured() {
		return "", a.notConfigured()
	}

	completion, err := a.client.Chat.Completions.New(ctx, a.buildParams(req), a.deploymentBase(a.config.Deployment))
	if err != nil {
		return "", a.handleError(err)
	}

	if len(completion.Choices) == 0 {
		return "", providers.NewProtocolError(ProviderName, "response contains no choices", nil)
	}

	return completion.Choices[0].Message.Content, nil
}

// StreamChat starts a streamed chat completion against the configured deployment
func (a *Adapter) StreamChat(ctx context.Context, req *providers.ChatRequest) (providers.Stream, error) {
	if !a.Configured() {
		return nil, a.notConfigured()
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, a.buildParams(req), a.deploymentBase(a.config.Deployment))

	// Request failures are carried on the stream; report them before any fragment.
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, a.handleError(err)
	}

	return &chunkStream{adapter: a, inner: stream}, nil
}

// Embed returns the embedding vector for text. The model names the embedding deployment.
func (a *Adapter) Embed(ctx context.Context, text, model string) ([]float64, error) {
	if !a.Configured() {
		return nil, a.notConfigured()
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(model),
	}, a.deploymentBase(model))
	if err != nil {
		return nil, a.handleError(err)
	}

	if len(resp.Data) == 0 {
		return nil, providers.NewProtocolError(ProviderName, "response contains no embeddings", nil)
	}

	return resp.Data[0].Embedding, nil
}

// deploymentBase points a single call at a deployment path
func (a *Adapter) deploymentBase(deployment string) option.RequestOption {
	return option.WithBaseURL(fmt.Sprintf("%s/openai/deployments/%s/", strings.TrimRight(a.config.Endpoint, "/"), deployment))
}

// buildParams converts the canonical request to SDK parameters
func (a *Adapter) buildParams(req *providers.ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       a.config.Deployment,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

// toOpenAIMessages converts canonical messages to the SDK union type
func toOpenAIMessages(msgs []providers.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case providers.RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case providers.RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}

func (a *Adapter) notConfigured() error {
	return providers.NewConfigurationError(ProviderName, "AZURE_OPENAI_ENDPOINT or AZURE_OPENAI_KEY not configured")
}

// handleError classifies SDK errors into the provider taxonomy
func (a *Adapter) handleError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}
		return providers.NewTransportError(ProviderName, message, apiErr.StatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return providers.NewProtocolError(ProviderName, "failed to decode response", err)
	}

	return providers.NewTransportError(ProviderName, "request failed", 0, err)
}

// chunkStream adapts the SDK stream to providers.Stream.
// Reads that fail after Close are not reported: closing is how a consumer abandons the stream.
type chunkStream struct {
	adapter *Adapter
	inner   *ssestream.Stream[openai.ChatCompletionChunk]
	current string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *chunkStream) Next() bool {
	if s.closed.Load() {
		return false
	}
	for s.inner.Next() {
		if s.closed.Load() {
			return false
		}
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.current = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *chunkStream) Chunk() string {
	return s.current
}

func (s *chunkStream) Err() error {
	if s.closed.Load() {
		return nil
	}
	if err := s.inner.Err(); err != nil {
		return s.adapter.handleError(err)
	}
	return nil
}

func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.inner.Close()
	})
	return s.closeErr
}
