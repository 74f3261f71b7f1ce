package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/nexus-gateway/services/providers"
)

var (
	// ErrNoDefaultProvider is returned when the router is built without a fallback adapter
	ErrNoDefaultProvider = errors.New("default provider is required")

	// ErrInvalidRule is returned for a rule with an empty keyword or provider
	ErrInvalidRule = errors.New("invalid routing rule")
)

// Rule maps a model keyword to a provider name.
// A model matches when it contains the keyword, ignoring case.
type Rule struct {
	Keyword  string
	Provider string
}

// DefaultRules returns the gateway's keyword order: gpt, claude, deepseek, gemini
func DefaultRules(primary string) []Rule {
	return []Rule{
		{Keyword: "gpt", Provider: primary},
		{Keyword: "claude", Provider: "claude"},
		{Keyword: "deepseek", Provider: "deepseek"},
		{Keyword: "gemini", Provider: "gemini"},
	}
}

// KeywordMatch reports whether model contains keyword, ignoring case
func KeywordMatch(model, keyword string) bool {
	return strings.Contains(strings.ToLower(model), strings.ToLower(keyword))
}

// RoutedError tags an adapter failure with the provider that was selected
type RoutedError struct {
	Provider string
	Err      error
}

// Error implements the error interface
func (e *RoutedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap implements error unwrapping
func (e *RoutedError) Unwrap() error {
	return e.Err
}

// ProviderOf returns the provider name carried by a routed error, or empty string
func ProviderOf(err error) string {
	var routed *RoutedError
	if errors.As(err, &routed) {
		return routed.Provider
	}
	return ""
}

type route struct {
	keyword  string
	provider providers.Provider
}

// Router selects one adapter per call from the model identifier and delegates to it.
// The table is fixed at construction; a Router is safe for concurrent use.
type Router struct {
	routes   []route
	fallback providers.Provider
}

// NewRouter builds a router from rules evaluated in order, falling back to defaultProvider.
// Every provider named by a rule must be registered.
func NewRouter(registry *providers.Registry, rules []Rule, defaultProvider string) (*Router, error) {
	fallback, err := registry.GetProvider(defaultProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDefaultProvider, defaultProvider)
	}

	routes := make([]route, 0, len(rules))
	for _, rule := range rules {
		if rule.Keyword == "" || rule.Provider == "" {
			return nil, fmt.Errorf("%w: keyword %q provider %q", ErrInvalidRule, rule.Keyword, rule.Provider)
		}
		provider, err := registry.GetProvider(rule.Provider)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w: %s", rule.Keyword, err, rule.Provider)
		}
		routes = append(routes, route{keyword: rule.Keyword, provider: provider})
	}

	return &Router{routes: routes, fallback: fallback}, nil
}

// Route returns the adapter for a model. The first matching rule wins; unmatched
// models (including the empty string) go to the default adapter.
func (r *Router) Route(model string) providers.Provider {
	for _, rt := range r.routes {
		if KeywordMatch(model, rt.keyword) {
			return rt.provider
		}
	}
	return r.fallback
}

// Default returns the fallback adapter
func (r *Router) Default() providers.Provider {
	return r.fallback
}

// Chat routes a blocking chat call
func (r *Router) Chat(ctx context.Context, req *providers.ChatRequest) (string, error) {
	provider := r.Route(req.Model)

	text, err := provider.Chat(ctx, req)
	if err != nil {
		return "", &RoutedError{Provider: provider.Name(), Err: err}
	}
	return text, nil
}

// StreamChat routes a streamed chat call. Failures raised while the stream is
// consumed carry the provider tag too.
func (r *Router) StreamChat(ctx context.Context, req *providers.ChatRequest) (providers.Stream, error) {
	provider := r.Route(req.Model)

	stream, err := provider.StreamChat(ctx, req)
	if err != nil {
		return nil, &RoutedError{Provider: provider.Name(), Err: err}
	}
	return &routedStream{Stream: stream, provider: provider.Name()}, nil
}

// Embed routes an embedding call by model
func (r *Router) Embed(ctx context.Context, text, model string) ([]float64, error) {
	provider := r.Route(model)

	vec, err := provider.Embed(ctx, text, model)
	if err != nil {
		return nil, &RoutedError{Provider: provider.Name(), Err: err}
	}
	return vec, nil
}

type routedStream struct {
	providers.Stream
	provider string
}

func (s *routedStream) Err() error {
	if err := s.Stream.Err(); err != nil {
		return &RoutedError{Provider: s.provider, Err: err}
	}
	return nil
}
