package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/models"
	"github.com/upb/nexus-gateway/repositories"
)

// Recorder accepts dispatch records for persistence
type Recorder interface {
	Record(record *models.DispatchRecord) error
}

// NopRecorder discards records; it is used when no database is configured
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(*models.DispatchRecord) error { return nil }

// AuditService persists dispatch records asynchronously through a worker pool
type AuditService struct {
	repo        repositories.DispatchRepository
	logger      *zap.Logger
	recordChan  chan *models.DispatchRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	dropped     atomic.Int64
	written     atomic.Int64
	failed      atomic.Int64
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the record buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.DispatchRepository, logger *zap.Logger, config Config) *AuditService {
	return &AuditService{
		repo:        repo,
		logger:      logger,
		recordChan:  make(chan *models.DispatchRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting records and waits for pending ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_records", len(s.recordChan)))
	close(s.recordChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues a record without blocking. The record is dropped when the buffer is full.
func (s *AuditService) Record(record *models.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.recordChan <- record:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit buffer full, dropping dispatch record",
			zap.String("operation", string(record.Operation)),
			zap.String("provider", record.Provider))
		return fmt.Errorf("audit buffer full")
	}
}

// worker writes records from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for record := range s.recordChan {
		if err := s.write(record); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write dispatch record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("record_id", record.ID.String()),
				zap.String("provider", record.Provider))
			continue
		}
		s.written.Add(1)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) write(record *models.DispatchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.repo.Insert(ctx, record)
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingRecords: len(s.recordChan),
		WorkerCount:    s.workerCount,
		Started:        s.started && !s.stopped,
		Written:        s.written.Load(),
		Failed:         s.failed.Load(),
		Dropped:        s.dropped.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize     int   `json:"buffer_size"`
	PendingRecords int   `json:"pending_records"`
	WorkerCount    int   `json:"worker_count"`
	Started        bool  `json:"started"`
	Written        int64 `json:"written"`
	Failed         int64 `json:"failed"`
	Dropped        int64 `json:"dropped"`
}
