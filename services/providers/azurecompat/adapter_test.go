package azurecompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/nexus-gateway/services/providers"
)

func newTestAdapter(serverURL string) *Adapter {
	return NewAdapter(Config{
		Name:       "claude",
		Endpoint:   serverURL + "/",
		APIKey:     "test-key",
		APIVersion: "2024-02-15-preview",
	})
}

func testRequest() *providers.ChatRequest {
	return &providers.ChatRequest{
		Model: "claude-3-opus",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "Be brief."},
			{Role: providers.RoleUser, Content: "Hi"},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter := NewAdapter(Config{Name: "deepseek"})

	assert.Equal(t, "deepseek", adapter.Name())
	assert.Equal(t, 120*time.Second, adapter.config.Timeout)
	assert.Equal(t, 120*time.Second, adapter.httpClient.Timeout)
	assert.False(t, adapter.Configured())
}

func TestDeploymentURL(t *testing.T) {
	adapter := NewAdapter(Config{
		Name:       "claude",
		Endpoint:   "https://example.services.ai.azure.com/",
		APIKey:     "k",
		APIVersion: "2024-02-15-preview",
	})

	assert.Equal(t,
		"https://example.services.ai.azure.com/openai/deployments/claude-3-opus/chat/completions?api-version=2024-02-15-preview",
		adapter.DeploymentURL("claude-3-opus"),
	)
}

func TestChat_Success(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/deployments/claude-3-opus/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`)
	}))
	defer server.Close()

	text, err := newTestAdapter(server.URL).Chat(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)
	assert.Equal(t, 4096, captured.MaxTokens)
	assert.Equal(t, 0.7, captured.Temperature)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Hi", captured.Messages[1].Content)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		expected   error
		statusCode int
		message    string
	}{
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit exceeded","code":"429"}}`,
			expected:   providers.ErrTransport,
			statusCode: 429,
			message:    "Rate limit exceeded",
		},
		{
			name:       "plain text failure",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable",
			expected:   providers.ErrTransport,
			statusCode: 502,
			message:    "upstream unavailable",
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			body:     `{"choices": [`,
			expected: providers.ErrProtocol,
			message:  "failed to unmarshal response",
		},
		{
			name:     "no choices",
			status:   http.StatusOK,
			body:     `{"choices":[]}`,
			expected: providers.ErrProtocol,
			message:  "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestAdapter(server.URL).Chat(context.Background(), testRequest())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, tt.statusCode, providers.StatusCodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestChat_NotConfigured(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	adapter := NewAdapter(Config{Name: "deepseek", Endpoint: server.URL})

	_, err := adapter.Chat(context.Background(), testRequest())

	assert.ErrorIs(t, err, providers.ErrConfiguration)
	assert.Contains(t, err.Error(), "deepseek")
	assert.False(t, called)
}

func TestChat_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	_, err := newTestAdapter(serverURL).Chat(context.Background(), testRequest())

	assert.ErrorIs(t, err, providers.ErrTransport)
}

func TestChat_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	adapter := NewAdapter(Config{
		Name:     "claude",
		Endpoint: server.URL,
		APIKey:   "k",
		Timeout:  50 * time.Millisecond,
	})

	_, err := adapter.Chat(context.Background(), testRequest())

	assert.ErrorIs(t, err, providers.ErrTransport)
}

func TestStreamChat_Fragments(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stream, err := newTestAdapter(server.URL).StreamChat(context.Background(), testRequest())
	require.NoError(t, err)

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Chunk())
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())

	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.True(t, captured.Stream)
}

func TestStreamChat_CloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		w.(http.Flusher).Flush()

		<-r.Context().Done()
		close(released)
	}))
	defer server.Close()

	stream, err := newTestAdapter(server.URL).StreamChat(context.Background(), testRequest())
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "Hel", stream.Chunk())
	require.NoError(t, stream.Close())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("backend connection still open after Close")
	}

	assert.False(t, stream.Next())
	assert.NoError(t, stream.Err())
}

func TestStreamChat_TruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
	}))
	defer server.Close()

	stream, err := newTestAdapter(server.URL).StreamChat(context.Background(), testRequest())
	require.NoError(t, err)

	text, err := providers.Collect(stream)
	assert.Equal(t, "a", text)
	assert.ErrorIs(t, err, providers.ErrProtocol)
	assert.Contains(t, err.Error(), "[DONE]")
}

func TestStreamChat_MalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
	}))
	defer server.Close()

	stream, err := newTestAdapter(server.URL).StreamChat(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	text, err := providers.Collect(stream)
	assert.Equal(t, "ok", text)
	assert.ErrorIs(t, err, providers.ErrProtocol)
}

func TestStreamChat_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Access denied due to invalid subscription key"}}`)
	}))
	defer server.Close()

	stream, err := newTestAdapter(server.URL).StreamChat(context.Background(), testRequest())

	assert.Nil(t, stream)
	assert.ErrorIs(t, err, providers.ErrTransport)
	assert.Equal(t, 401, providers.StatusCodeOf(err))
}

func TestEmbed_Unsupported(t *testing.T) {
	adapter := NewAdapter(Config{Name: "claude", Endpoint: "https://x", APIKey: "k"})

	vec, err := adapter.Embed(context.Background(), "hello", "")

	assert.Nil(t, vec)
	assert.ErrorIs(t, err, providers.ErrUnsupported)
	assert.Contains(t, err.Error(), "claude")
}
