package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upb/nexus-gateway/services/providers"
)

// MockProvider is a mock implementation of providers.Provider
type MockProvider struct {
	mock.Mock
	name string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string     { return m.name }
func (m *MockProvider) Configured() bool { return true }

func (m *MockProvider) Chat(ctx context.Context, req *providers.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) StreamChat(ctx context.Context, req *providers.ChatRequest) (providers.Stream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(providers.Stream), args.Error(1)
}

func (m *MockProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	args := m.Called(ctx, text, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

type testProviders struct {
	primary  *MockProvider
	claude   *MockProvider
	deepseek *MockProvider
	gemini   *MockProvider
}

func setupRouter(t *testing.T) (*Router, testProviders) {
	t.Helper()

	tp := testProviders{
		primary:  NewMockProvider("azure-openai"),
		claude:   NewMockProvider("claude"),
		deepseek: NewMockProvider("deepseek"),
		gemini:   NewMockProvider("gemini"),
	}

	registry := providers.NewRegistry()
	for _, p := range []*MockProvider{tp.primary, tp.claude, tp.deepseek, tp.gemini} {
		require.NoError(t, registry.RegisterProvider(p))
	}

	router, err := NewRouter(registry, DefaultRules("azure-openai"), "azure-openai")
	require.NoError(t, err)

	return router, tp
}

func TestRouter_Route(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4o", "azure-openai"},
		{"GPT-4.1", "azure-openai"},
		{"Claude-3-Opus", "claude"},
		{"claude-3-sonnet", "claude"},
		{"deepseek-r1", "deepseek"},
		{"DeepSeek-V3", "deepseek"},
		{"gemini-2.0-flash", "gemini"},
		{"models/Gemini-2.5-Pro", "gemini"},
		{"my-custom-model", "azure-openai"},
		{"text-embedding-ada-002", "azure-openai"},
		{"", "azure-openai"},
		// priority order decides identifiers naming several backends
		{"gpt-vs-claude", "azure-openai"},
		{"claude-distilled-deepseek", "claude"},
		{"deepseek-gemini-merge", "deepseek"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, router.Route(tt.model).Name())
		})
	}
}

func TestKeywordMatch(t *testing.T) {
	assert.True(t, KeywordMatch("Claude-3-Opus", "claude"))
	assert.True(t, KeywordMatch("x-GEMINI-y", "Gemini"))
	assert.False(t, KeywordMatch("llama-3", "gpt"))
}

func TestRouter_RouteMixedCaseRule(t *testing.T) {
	registry := providers.NewRegistry()
	require.NoError(t, registry.RegisterProvider(NewMockProvider("azure-openai")))
	require.NoError(t, registry.RegisterProvider(NewMockProvider("claude")))

	router, err := NewRouter(registry, []Rule{{Keyword: "Claude", Provider: "claude"}}, "azure-openai")
	require.NoError(t, err)

	assert.Equal(t, "claude", router.Route("CLAUDE-3-opus").Name())
	assert.Equal(t, "claude", router.Route("claude-3-opus").Name())
	assert.Equal(t, "azure-openai", router.Route("gpt-4o").Name())
}

func TestNewRouter_Errors(t *testing.T) {
	registry := providers.NewRegistry()
	require.NoError(t, registry.RegisterProvider(NewMockProvider("azure-openai")))

	_, err := NewRouter(registry, nil, "missing")
	assert.ErrorIs(t, err, ErrNoDefaultProvider)

	_, err = NewRouter(registry, []Rule{{Keyword: "", Provider: "azure-openai"}}, "azure-openai")
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewRouter(registry, []Rule{{Keyword: "claude", Provider: "claude"}}, "azure-openai")
	assert.ErrorIs(t, err, providers.ErrProviderNotFound)

	router, err := NewRouter(registry, nil, "azure-openai")
	require.NoError(t, err)
	assert.Equal(t, "azure-openai", router.Route("claude-3-opus").Name())
	assert.Equal(t, "azure-openai", router.Default().Name())
}

func TestRouter_Chat(t *testing.T) {
	router, tp := setupRouter(t)
	ctx := context.Background()
	req := &providers.ChatRequest{Model: "claude-3-opus", Messages: []providers.Message{{Role: "user", Content: "Hi"}}}

	tp.claude.On("Chat", ctx, req).Return("Hello from Claude", nil)

	text, err := router.Chat(ctx, req)

	require.NoError(t, err)
	assert.Equal(t, "Hello from Claude", text)
	tp.claude.AssertExpectations(t)
	tp.primary.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestRouter_ChatErrorTagged(t *testing.T) {
	router, tp := setupRouter(t)
	ctx := context.Background()
	req := &providers.ChatRequest{Model: "deepseek-r1"}
	adapterErr := providers.NewTransportError("deepseek", "Internal Server Error", 500, nil)

	tp.deepseek.On("Chat", ctx, req).Return("", adapterErr)

	_, err := router.Chat(ctx, req)

	require.Error(t, err)
	assert.Equal(t, "deepseek", ProviderOf(err))
	assert.ErrorIs(t, err, providers.ErrTransport)

	var provErr *providers.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Same(t, adapterErr, provErr)
}

func TestRouter_StreamChat(t *testing.T) {
	router, tp := setupRouter(t)
	ctx := context.Background()
	req := &providers.ChatRequest{Model: "gpt-4o"}
	midStream := providers.NewTransportError("azure-openai", "stream interrupted", 0, errors.New("connection reset"))

	tp.primary.On("StreamChat", ctx, req).Return(providers.NewSliceStream([]string{"Hel", "lo"}, midStream), nil)

	stream, err := router.StreamChat(ctx, req)
	require.NoError(t, err)

	text, err := providers.Collect(stream)
	assert.Equal(t, "Hello", text)
	assert.ErrorIs(t, err, providers.ErrTransport)
	assert.Equal(t, "azure-openai", ProviderOf(err))
}

func TestRouter_StreamChatUnsupported(t *testing.T) {
	router, tp := setupRouter(t)
	ctx := context.Background()
	req := &providers.ChatRequest{Model: "gemini-2.0-flash"}

	tp.gemini.On("StreamChat", ctx, req).Return(nil, providers.NewUnsupportedError("gemini", "stream_chat"))

	stream, err := router.StreamChat(ctx, req)

	assert.Nil(t, stream)
	assert.ErrorIs(t, err, providers.ErrUnsupported)
	assert.Equal(t, "gemini", ProviderOf(err))
}

func TestRouter_Embed(t *testing.T) {
	router, tp := setupRouter(t)
	ctx := context.Background()

	tp.primary.On("Embed", ctx, "hello", "text-embedding-ada-002").Return([]float64{0.1, 0.2}, nil)
	tp.claude.On("Embed", ctx, "hello", "claude-3-opus").Return(nil, providers.NewUnsupportedError("claude", "embed"))

	vec, err := router.Embed(ctx, "hello", "text-embedding-ada-002")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vec)

	_, err = router.Embed(ctx, "hello", "claude-3-opus")
	assert.ErrorIs(t, err, providers.ErrUnsupported)
	assert.Equal(t, "claude", ProviderOf(err))
}

func TestRouter_ConcurrentCallsIndependent(t *testing.T) {
	router, tp := setupRouter(t)

	tp.primary.On("Chat", mock.Anything, mock.Anything).Return("primary", nil)
	tp.claude.On("Chat", mock.Anything, mock.Anything).Return("", providers.NewTransportError("claude", "overloaded", 529, nil))
	tp.gemini.On("Chat", mock.Anything, mock.Anything).Return("gemini", nil)

	models := []string{"gpt-4o", "claude-3-opus", "gemini-2.0-flash", "custom"}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		model := models[i%len(models)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := router.Chat(context.Background(), &providers.ChatRequest{Model: model})
			switch model {
			case "claude-3-opus":
				assert.Error(t, err)
				assert.Equal(t, "claude", ProviderOf(err))
			case "gemini-2.0-flash":
				assert.NoError(t, err)
				assert.Equal(t, "gemini", text)
			default:
				assert.NoError(t, err)
				assert.Equal(t, "primary", text)
			}
		}()
	}
	wg.Wait()
}

func TestRouter_SlowBackendDoesNotBlockOthers(t *testing.T) {
	router, tp := setupRouter(t)

	started := make(chan struct{})
	unblock := make(chan struct{})
	tp.claude.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-unblock
	}).Return("late", nil).Once()
	tp.gemini.On("Chat", mock.Anything, mock.Anything).Return("", providers.NewTransportError("gemini", "overloaded", 503, nil))
	tp.primary.On("Chat", mock.Anything, mock.Anything).Return("primary", nil)

	slow := make(chan string, 1)
	go func() {
		text, err := router.Chat(context.Background(), &providers.ChatRequest{Model: "claude-3-opus"})
		assert.NoError(t, err)
		slow <- text
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow backend never called")
	}

	text, err := router.Chat(context.Background(), &providers.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "primary", text)

	_, err = router.Chat(context.Background(), &providers.ChatRequest{Model: "gemini-2.0-flash"})
	assert.ErrorIs(t, err, providers.ErrTransport)
	assert.Equal(t, "gemini", ProviderOf(err))

	select {
	case <-slow:
		t.Fatal("slow call finished before it was released")
	default:
	}

	close(unblock)
	select {
	case text := <-slow:
		assert.Equal(t, "late", text)
	case <-time.After(5 * time.Second):
		t.Fatal("slow call did not finish after release")
	}
}
