// Package generation builds prompt-templated chat calls for code and application planning.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/nexus-gateway/services/inference"
	"github.com/upb/nexus-gateway/services/providers"
)

const (
	// DefaultLanguage is used when the options name no target language
	DefaultLanguage = "Python"

	// MaxTokens bounds every generation call
	MaxTokens = 4096

	codeTemperature = 0.3
	planTemperature = 0.5
)

// Chatter performs a dispatched chat call
type Chatter interface {
	Chat(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error)
}

// Request is a generation prompt with free-form options
type Request struct {
	RequestID string
	Prompt    string
	Model     string
	Options   map[string]interface{}
}

// GenerationService turns generation prompts into chat calls
type GenerationService struct {
	chat Chatter
}

// NewGenerationService creates a new generation service
func NewGenerationService(chat Chatter) *GenerationService {
	return &GenerationService{chat: chat}
}

// Language returns the target language named by options["language"], or DefaultLanguage
func Language(options map[string]interface{}) string {
	if lang, ok := options["language"].(string); ok && strings.TrimSpace(lang) != "" {
		return lang
	}
	return DefaultLanguage
}

// CodePrompt returns the code generation prompt
func CodePrompt(prompt, language string) string {
	return fmt.Sprintf("Write clean, production-ready %s code for: %s. Include comments and best practices.", language, prompt)
}

// AppPlanPrompt returns the application planning prompt
func AppPlanPrompt(prompt string) string {
	return fmt.Sprintf("Create a detailed technical plan for: %s. Include architecture, database schema, API endpoints, and frontend components.", prompt)
}

// GenerateCode asks the routed backend for code in the requested language
func (s *GenerationService) GenerateCode(ctx context.Context, req *Request) (*inference.ChatResponse, error) {
	return s.generate(ctx, req, CodePrompt(req.Prompt, Language(req.Options)), codeTemperature)
}

// GenerateAppPlan asks the routed backend for an application plan
func (s *GenerationService) GenerateAppPlan(ctx context.Context, req *Request) (*inference.ChatResponse, error) {
	return s.generate(ctx, req, AppPlanPrompt(req.Prompt), planTemperature)
}

func (s *GenerationService) generate(ctx context.Context, req *Request, content string, temperature float64) (*inference.ChatResponse, error) {
	return s.chat.Chat(ctx, &inference.ChatRequest{
		RequestID:   req.RequestID,
		Model:       req.Model,
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: content}},
		Temperature: temperature,
		MaxTokens:   MaxTokens,
	})
}
