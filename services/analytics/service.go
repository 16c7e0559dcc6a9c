package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/structura/aip-gateway/models"
	"github.com/structura/aip-gateway/repositories"
	"go.uber.org/zap"
)

// event carries one terminal request record to the persistence workers
type event struct {
	request  *models.AIRequest
	errcause string
}

// Config holds configuration for the analytics service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// Service persists terminal request records asynchronously and serves
// aggregate usage analytics. Logging is best-effort: a failure to persist
// never affects the caller-visible result of a request.
type Service struct {
	repo        repositories.RequestLogRepository
	logger      *zap.Logger
	eventChan   chan *event
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// NewService creates a new analytics service
func NewService(repo repositories.RequestLogRepository, logger *zap.Logger, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *event, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("analytics service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started analytics service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the service, waiting for pending events up to timeout
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("analytics service not started")
	}
	// Flip started before closing so a concurrent Log drops instead of
	// sending on the closed channel.
	s.started = false

	s.logger.Info("stopping analytics service",
		zap.Int("pending_events", len(s.eventChan)))

	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("analytics service stopped")
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("analytics service stop timeout after %v", timeout)
	}
}

// Log queues a terminal request record for persistence. Non-blocking: when
// the buffer is full the event is dropped with a warning.
func (s *Service) Log(req *models.AIRequest, procErr error) {
	// The lock is held across the send attempt so Stop cannot close the
	// channel between the started check and the send. The send is
	// non-blocking, so callers never wait on the mutex behind a full buffer.
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.logger.Warn("analytics service not running, dropping record",
			zap.String("request_id", req.ID.String()))
		return
	}

	ev := &event{request: req}
	if procErr != nil {
		ev.errcause = procErr.Error()
	}

	select {
	case s.eventChan <- ev:
	default:
		s.logger.Warn("analytics buffer full, dropping record",
			zap.String("request_id", req.ID.String()),
			zap.String("status", string(req.Status)))
	}
}

// Aggregate computes usage analytics over persisted records
func (s *Service) Aggregate(ctx context.Context, filter repositories.RequestLogFilter) (*models.UsageAnalytics, error) {
	return s.repo.Aggregate(ctx, filter)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("analytics worker started", zap.Int("worker_id", id))

	for ev := range s.eventChan {
		if err := s.processEvent(ev); err != nil {
			s.logger.Error("failed to persist analytics record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("request_id", ev.request.ID.String()))
		}
	}

	s.logger.Debug("analytics worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(ev *event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.repo.Insert(ctx, ev.request, ev.errcause)
}

// Stats represents analytics service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the analytics service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}
