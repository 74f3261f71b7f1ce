// Package gemini implements the Google Gemini backend with the official Gen AI SDK.
//
// Gemini has no system role. Conversations are translated before sending: assistant
// turns become "model" turns, and system instructions are folded into a single
// user turn prefixed with "System: " and placed first.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/upb/nexus-gateway/services/providers"
)

const (
	// ProviderName is the name reported for the Gemini backend
	ProviderName = "gemini"

	// DefaultModel is used when a request names no model
	DefaultModel = "gemini-2.0-flash"

	roleUser       = "user"
	roleModel      = "model"
	systemPrefix   = "System: "
	defaultTimeout = 120 * time.Second
)

// Config holds the Gemini settings
type Config struct {
	// APIKey is sent in the x-goog-api-key header
	APIKey string

	// BaseURL overrides the API host (optional)
	BaseURL string

	// Timeout for a whole call
	Timeout time.Duration

	// HTTPClient overrides the transport client (optional)
	HTTPClient *http.Client
}

// Adapter implements providers.Provider for Gemini.
// Streaming and embeddings are not offered.
type Adapter struct {
	providers.BaseProvider
	config Config
	client *genai.Client
}

// NewAdapter creates a new Gemini adapter. The SDK client is built once here when
// an API key is present; without one the adapter stays registered but unconfigured.
func NewAdapter(ctx context.Context, config Config) (*Adapter, error) {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	adapter := &Adapter{
		BaseProvider: providers.BaseProvider{ProviderName: ProviderName},
		config:       config,
	}
	if config.APIKey == "" {
		return adapter, nil
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, providers.NewConfigurationError(ProviderName, "failed to create Gemini client: "+err.Error())
	}
	adapter.client = client

	return adapter, nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return ProviderName
}

// Configured reports whether an API key is present
func (a *Adapter) Configured() bool {
	return a.client != nil
}

// Chat performs a generateContent call
func (a *Adapter) Chat(ctx context.Context, req *providers.ChatRequest) (string, error) {
	if !a.Configured() {
		return "", providers.NewConfigurationError(ProviderName, "GEMINI_API_KEY not configured")
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, TranslateMessages(req.Messages), config)
	if err != nil {
		return "", handleError(err)
	}

	// A blocked or empty answer has no candidates; it is reported as empty text.
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// handleError classifies SDK errors into the provider taxonomy
func handleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiError(*apiErrPtr, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return providers.NewProtocolError(ProviderName, "failed to decode response", err)
	}

	return providers.NewTransportError(ProviderName, "request failed", 0, err)
}

func apiError(apiErr genai.APIError, cause error) error {
	message := apiErr.Message
	if message == "" {
		message = http.StatusText(apiErr.Code)
	}
	return providers.NewTransportError(ProviderName, message, apiErr.Code, cause)
}

// TranslateMessages maps a canonical conversation to Gemini contents.
// All system messages are joined, in order, into one leading user turn.
// The input slice is not modified.
func TranslateMessages(msgs []providers.Message) []*genai.Content {
	var system []string
	turns := make([]*genai.Content, 0, len(msgs)+1)

	for _, msg := range msgs {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)
		case providers.RoleAssistant:
			turns = append(turns, textContent(roleModel, msg.Content))
		default:
			turns = append(turns, textContent(roleUser, msg.Content))
		}
	}

	if len(system) == 0 {
		return turns
	}

	lead := textContent(roleUser, systemPrefix+strings.Join(system, "\n\n"))
	return append([]*genai.Content{lead}, turns...)
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}
