// Package azurecompat implements backends hosted behind an Azure OpenAI-compatible
// deployment endpoint (Claude and DeepSeek deployments on Azure AI).
package azurecompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/nexus-gateway/services/providers"
	"github.com/upb/nexus-gateway/services/providers/sse"
)

// DefaultTimeout is the call-level timeout for a single backend round trip
const DefaultTimeout = 120 * time.Second

// Config holds the credentials of one Azure-hosted deployment family
type Config struct {
	// Name is the provider name reported in errors and metrics (e.g., "claude")
	Name string

	// Endpoint is the resource base URL
	Endpoint string

	// APIKey is sent in the api-key header
	APIKey string

	// APIVersion is appended as the api-version query parameter
	APIVersion string

	// Timeout for a whole call, including reading a streamed body
	Timeout time.Duration

	// HTTPClient overrides the transport client (optional)
	HTTPClient *http.Client
}

// Adapter implements providers.Provider for an Azure OpenAI-compatible deployment
type Adapter struct {
	providers.BaseProvider
	config     Config
	httpClient *http.Client
}

// NewAdapter creates a new adapter. Missing credentials are not an error here;
// calls fail with a configuration error instead.
func NewAdapter(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Adapter{
		BaseProvider: providers.BaseProvider{ProviderName: config.Name},
		config:       config,
		httpClient:   httpClient,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.config.Name
}

// Configured reports whether endpoint and key are present
func (a *Adapter) Configured() bool {
	return a.config.Endpoint != "" && a.config.APIKey != ""
}

// Chat performs a chat completion request
func (a *Adapter) Chat(ctx context.Context, req *providers.ChatRequest) (string, error) {
	httpResp, err := a.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewTransportError(a.Name(), "failed to read response", httpResp.StatusCode, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", providers.NewProtocolError(a.Name(), "failed to unmarshal response", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return "", providers.NewProtocolError(a.Name(), "response contains no choices", nil)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// StreamChat performs a streamed chat completion request
func (a *Adapter) StreamChat(ctx context.Context, req *providers.ChatRequest) (providers.Stream, error) {
	httpResp, err := a.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	return &chunkStream{name: a.Name(), reader: sse.NewReader(httpResp.Body)}, nil
}

// DeploymentURL builds the chat completions URL for a deployment
func (a *Adapter) DeploymentURL(deployment string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(a.config.Endpoint, "/"),
		url.PathEscape(deployment),
		url.QueryEscape(a.config.APIVersion),
	)
}

// send issues the request and returns a response with a 2xx status
func (a *Adapter) send(ctx context.Context, req *providers.ChatRequest, stream bool) (*http.Response, error) {
	if !a.Configured() {
		return nil, providers.NewConfigurationError(a.Name(), "endpoint or key not configured")
	}

	reqBody, err := json.Marshal(buildRequest(req, stream))
	if err != nil {
		return nil, providers.NewProtocolError(a.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.DeploymentURL(req.Model), bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewTransportError(a.Name(), "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", a.config.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewTransportError(a.Name(), "HTTP request failed", 0, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))
		return nil, a.handleErrorResponse(httpResp.StatusCode, body)
	}

	return httpResp, nil
}

// handleErrorResponse converts a non-success response into a transport error
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	message := http.StatusText(statusCode)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		message = trimmed
	}

	return providers.NewTransportError(a.Name(), message, statusCode, errors.New(http.StatusText(statusCode)))
}

// buildRequest converts the canonical request to the wire format.
// Messages pass through with their roles unchanged.
func buildRequest(req *providers.ChatRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Messages:    make([]wireMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for i, msg := range req.Messages {
		out.Messages[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// chunkStream turns SSE chat-completion chunks into text fragments
type chunkStream struct {
	name    string
	reader  *sse.Reader
	current string
	err     error
}

func (s *chunkStream) Next() bool {
	if s.err != nil {
		return false
	}

	for s.reader.Next() {
		var chunk streamChunk
		if err := json.Unmarshal([]byte(s.reader.Data()), &chunk); err != nil {
			s.err = providers.NewProtocolError(s.name, "malformed stream chunk", err)
			return false
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.current = chunk.Choices[0].Delta.Content
		return true
	}

	switch err := s.reader.Err(); {
	case errors.Is(err, sse.ErrUnterminated):
		s.err = providers.NewProtocolError(s.name, "stream ended before [DONE]", err)
	case err != nil:
		s.err = providers.NewTransportError(s.name, "stream interrupted", 0, err)
	}
	return false
}

func (s *chunkStream) Chunk() string {
	return s.current
}

func (s *chunkStream) Err() error {
	return s.err
}

func (s *chunkStream) Close() error {
	return s.reader.Close()
}

// Wire types

type chatRequest struct {
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *wireMessage `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}
