package inference

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/internal/observability"
	"github.com/upb/nexus-gateway/models"
	"github.com/upb/nexus-gateway/services/audit"
	"github.com/upb/nexus-gateway/services/providers"
	"github.com/upb/nexus-gateway/services/providers/azureopenai"
)

// DefaultEmbeddingModel is used when an embedding request names no model
const DefaultEmbeddingModel = azureopenai.DefaultEmbeddingModel

// InferenceService dispatches calls through the router and records each outcome
type InferenceService struct {
	router   Router
	recorder audit.Recorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewInferenceService creates a new inference service. A nil recorder or metrics disables that output.
func NewInferenceService(router Router, recorder audit.Recorder, metrics *observability.Metrics, logger *zap.Logger) *InferenceService {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &InferenceService{
		router:   router,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProviderFor returns the name of the backend a model routes to
func (s *InferenceService) ProviderFor(model string) string {
	return s.router.Route(model).Name()
}

// Chat performs a blocking chat completion
func (s *InferenceService) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	provider := s.ProviderFor(req.Model)
	start := time.Now()

	s.logger.Debug("dispatching chat",
		zap.String("request_id", req.RequestID),
		zap.String("model", req.Model),
		zap.String("provider", provider),
		zap.Int("messages", len(req.Messages)))

	content, err := s.router.Chat(ctx, req.toProvider())
	latency := time.Since(start)

	record := models.NewDispatchRecord(models.OperationChat, req.Model, provider).
		WithRequest(req.RequestID).
		WithLatency(latency)
	s.finish(ctx, record, err)

	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Content:   content,
		Model:     req.Model,
		Provider:  provider,
		LatencyMs: record.LatencyMs,
	}, nil
}

// StreamChat starts a streamed chat completion. The returned stream must be closed;
// its outcome is recorded once, on Close.
func (s *InferenceService) StreamChat(ctx context.Context, req *ChatRequest) (ChatStream, error) {
	provider := s.ProviderFor(req.Model)
	start := time.Now()

	s.logger.Debug("dispatching stream",
		zap.String("request_id", req.RequestID),
		zap.String("model", req.Model),
		zap.String("provider", provider))

	inner, err := s.router.StreamChat(ctx, req.toProvider())
	if err != nil {
		record := models.NewDispatchRecord(models.OperationStreamChat, req.Model, provider).
			WithRequest(req.RequestID).
			WithLatency(time.Since(start))
		s.finish(ctx, record, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StreamsActive.Inc()
	}

	return &Stream{
		inner:     inner,
		ctx:       ctx,
		service:   s,
		provider:  provider,
		model:     req.Model,
		requestID: req.RequestID,
		start:     start,
	}, nil
}

// Embed returns the embedding vector for the request input
func (s *InferenceService) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	provider := s.ProviderFor(model)
	start := time.Now()

	vec, err := s.router.Embed(ctx, req.Input, model)

	record := models.NewDispatchRecord(models.OperationEmbed, model, provider).
		WithRequest(req.RequestID).
		WithLatency(time.Since(start))
	s.finish(ctx, record, err)

	if err != nil {
		return nil, err
	}

	return &EmbedResponse{Embedding: vec, Model: model, Provider: provider}, nil
}

// finish completes a record from the call outcome, then logs, measures and audits it
func (s *InferenceService) finish(ctx context.Context, record *models.DispatchRecord, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		record.WithStatus(models.DispatchStatusCancelled)
	default:
		record.WithError(string(providers.KindOf(err)), err.Error())
	}

	fields := []zap.Field{
		zap.String("dispatch_id", record.ID.String()),
		zap.String("request_id", record.RequestID),
		zap.String("operation", string(record.Operation)),
		zap.String("model", record.Model),
		zap.String("provider", record.Provider),
		zap.String("status", string(record.Status)),
		zap.Int("latency_ms", record.LatencyMs),
	}
	if record.Failed() {
		s.logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("dispatch completed", fields...)
	}

	if s.metrics != nil {
		s.metrics.ObserveDispatch(record.Provider, string(record.Operation), string(record.Status),
			time.Duration(record.LatencyMs)*time.Millisecond)
	}

	if err := s.recorder.Record(record); err != nil {
		s.logger.Warn("failed to submit dispatch record",
			zap.String("dispatch_id", record.ID.String()),
			zap.Error(err))
	}
}

// Stream is a provider stream that reports its outcome when closed.
// It is meant for a single consumer goroutine.
type Stream struct {
	inner     providers.Stream
	ctx       context.Context
	service   *InferenceService
	provider  string
	model     string
	requestID string
	start     time.Time
	fragments int
	exhausted bool
	once      sync.Once
}

// Provider returns the backend serving the stream
func (s *Stream) Provider() string {
	return s.provider
}

// Fragments returns the number of fragments delivered so far
func (s *Stream) Fragments() int {
	return s.fragments
}

// Next advances to the next fragment
func (s *Stream) Next() bool {
	if !s.inner.Next() {
		s.exhausted = true
		return false
	}
	s.fragments++
	if s.service.metrics != nil {
		s.service.metrics.StreamFragments.WithLabelValues(s.provider).Inc()
	}
	return true
}

// Chunk returns the current fragment
func (s *Stream) Chunk() string {
	return s.inner.Chunk()
}

// Err returns the failure that ended the stream, if any
func (s *Stream) Err() error {
	return s.inner.Err()
}

// Close releases the backend connection and records the outcome.
// A stream closed before its end is recorded as cancelled.
func (s *Stream) Close() error {
	streamErr := s.inner.Err()
	err := s.inner.Close()
	s.once.Do(func() {
		if s.service.metrics != nil {
			s.service.metrics.StreamsActive.Dec()
		}

		record := models.NewDispatchRecord(models.OperationStreamChat, s.model, s.provider).
			WithRequest(s.requestID).
			WithLatency(time.Since(s.start)).
			WithDetails(map[string]int{"fragments": s.fragments})

		if streamErr == nil && !s.exhausted {
			record.WithStatus(models.DispatchStatusCancelled)
		}
		s.service.finish(s.ctx, record, streamErr)
	})
	return err
}
