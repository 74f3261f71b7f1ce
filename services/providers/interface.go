package providers

import (
	"context"
	"strings"
)

// Role values accepted in a canonical conversation
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider represents one LLM backend behind the gateway.
// Implementations own their transport client and never mutate the request.
type Provider interface {
	// Name returns the backend name (e.g., "azure-openai", "claude", "gemini")
	Name() string

	// Configured reports whether the credentials required to call the backend are present
	Configured() bool

	// Chat performs a blocking chat completion and returns the response text
	Chat(ctx context.Context, req *ChatRequest) (string, error)

	// StreamChat starts a streamed chat completion
	StreamChat(ctx context.Context, req *ChatRequest) (Stream, error)

	// Embed returns the embedding vector for text
	Embed(ctx context.Context, text, model string) ([]float64, error)
}

// ChatRequest represents a provider-agnostic chat completion request
type ChatRequest struct {
	// Messages in the conversation, in turn order
	Messages []Message `json:"messages"`

	// Model identifier (e.g., "gpt-4o", "claude-3-opus")
	Model string `json:"model"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Stream is a pull-based, ordered, finite sequence of text fragments.
//
// Next advances to the next fragment and reports whether one is available.
// When Next returns false the consumer must check Err to tell a clean end from
// a failure. Close releases the underlying connection; it is safe to call more
// than once and at any point, which is how a consumer abandons a stream early.
type Stream interface {
	Next() bool
	Chunk() string
	Err() error
	Close() error
}

// Collect drains a stream and returns the concatenated fragments.
// The stream is closed before returning.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Chunk())
	}
	if err := s.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// BaseProvider supplies the optional capabilities for adapters that lack them.
// Embed it in an adapter and override the methods the backend supports.
type BaseProvider struct {
	ProviderName string
}

// StreamChat reports that streaming is not available for the backend
func (b BaseProvider) StreamChat(ctx context.Context, req *ChatRequest) (Stream, error) {
	return nil, NewUnsupportedError(b.ProviderName, "stream_chat")
}

// Embed reports that embeddings are not available for the backend
func (b BaseProvider) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return nil, NewUnsupportedError(b.ProviderName, "embed")
}

// SliceStream is an in-memory Stream over fixed fragments, used as a test double
// for the streaming surface.
type SliceStream struct {
	chunks  []string
	err     error
	pos     int
	current string
	closed  bool
}

// NewSliceStream creates a stream that yields chunks and then fails with err (nil for a clean end)
func NewSliceStream(chunks []string, err error) *SliceStream {
	return &SliceStream{chunks: chunks, err: err}
}

// Next advances to the next fragment
func (s *SliceStream) Next() bool {
	if s.closed || s.pos >= len(s.chunks) {
		return false
	}
	s.current = s.chunks[s.pos]
	s.pos++
	return true
}

// Chunk returns the current fragment
func (s *SliceStream) Chunk() string {
	return s.current
}

// Err returns the terminal error once all fragments were consumed
func (s *SliceStream) Err() error {
	if s.closed || s.pos < len(s.chunks) {
		return nil
	}
	return s.err
}

// Close stops the stream
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *SliceStream) Closed() bool {
	return s.closed
}
