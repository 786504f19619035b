// Package service ties the broker, the worker pool and the review pipeline
// into one runnable unit.
package service

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/aireview/internal/adapters/mq/worker"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// ErrNoReviewReader is returned by read helpers when no review store is wired.
var ErrNoReviewReader = errors.New("review reader not configured")

// Broker is the slice of the AMQP broker the service drives.
type Broker interface {
	worker.Queue
	Consume() error
	StopConsuming() error
	Close() error
	Healthy() bool
}

// ReviewReader exposes stored reviews.
type ReviewReader interface {
	FindLatestByApplication(ctx context.Context, applicationID string) (model.FitReview, error)
	JobStats(ctx context.Context, jobID string) (model.JobStats, error)
}

// Service consumes inbound events with a pool of delivery workers.
type Service struct {
	mu sync.RWMutex

	broker   Broker
	handler  worker.DeliveryHandler
	pipeline *Pipeline
	reviews  ReviewReader
	pool     *worker.Pool

	workerCount int
	started     bool
	startedAt   time.Time

	stopping     atomic.Bool
	consumerLost atomic.Bool
	lost         chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReviewReader enables LatestReview and JobStats.
func WithReviewReader(r ReviewReader) Option {
	return func(s *Service) {
		s.reviews = r
	}
}

// New constructs a Service. handler settles each delivery, usually an
// *mq.Consumer wrapping pipeline.
func New(broker Broker, handler worker.DeliveryHandler, pipeline *Pipeline, opts ...Option) *Service {
	s := &Service{
		broker:      broker,
		handler:     handler,
		pipeline:    pipeline,
		workerCount: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}

// Start begins consuming and launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting ai review service...")
	if err := s.broker.Consume(); err != nil {
		return err
	}

	s.pool = worker.NewPool(s.workerCount, s.broker, s.handler)
	s.pool.Start(ctx)

	s.stopping.Store(false)
	s.consumerLost.Store(false)
	s.lost = make(chan struct{})
	go s.supervise(ctx, s.pool, s.lost)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "ai review service started", logger.Int("workers", s.pool.Size()))
	return nil
}

// Stop cancels the consumer, drains in-flight deliveries and closes the
// broker. ctx bounds the drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.stopping.Store(true)
	s.logger.Info(ctx, "stopping ai review service...")

	var errs []error
	if err := s.broker.StopConsuming(); err != nil {
		errs = append(errs, err)
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.broker.Close(); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "ai review service stopped")
	return errors.Join(errs...)
}

// supervise marks the consumer as lost when every worker returns without a
// Stop, which happens once the broker closes the delivery channel.
func (s *Service) supervise(ctx context.Context, pool *worker.Pool, lost chan struct{}) {
	<-pool.Done()
	if s.stopping.Load() || ctx.Err() != nil {
		return
	}
	s.consumerLost.Store(true)
	metrics.RecordErrorByComponent("service", "consumer_lost")
	s.logger.Error(ctx, "delivery channel closed unexpectedly, no longer consuming")
	close(lost)
}

// ConsumerLost is closed when consumption ends without Stop being called.
// It is nil before Start.
func (s *Service) ConsumerLost() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lost
}

// RequestReview runs a fit review for in outside the event flow.
func (s *Service) RequestReview(ctx context.Context, in model.AnalysisInput) (model.FitReview, error) {
	if strings.TrimSpace(in.ApplicationID) == "" {
		return model.FitReview{}, model.ErrMalformedEvent
	}
	if in.TriggeredBy == "" {
		in.TriggeredBy = "manual"
	}
	return s.pipeline.Review(ctx, in)
}

// LatestReview returns the current review of an application.
func (s *Service) LatestReview(ctx context.Context, applicationID string) (model.ReviewView, error) {
	if s.reviews == nil {
		return model.ReviewView{}, ErrNoReviewReader
	}
	r, err := s.reviews.FindLatestByApplication(ctx, applicationID)
	if err != nil {
		return model.ReviewView{}, err
	}
	return r.View(), nil
}

// JobStats aggregates the reviews of a job.
func (s *Service) JobStats(ctx context.Context, jobID string) (model.JobStats, error) {
	if s.reviews == nil {
		return model.JobStats{}, ErrNoReviewReader
	}
	return s.reviews.JobStats(ctx, jobID)
}

// Healthy reports whether the service is consuming over a live connection.
func (s *Service) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.consumerLost.Load() && s.broker.Healthy()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		stats["brokerHealthy"] = s.broker.Healthy()
		stats["consuming"] = !s.consumerLost.Load()
		if s.pool != nil {
			stats["processed"] = s.pool.Processed()
			metrics.UpdateWorkerCount(s.pool.Size())
		}
	}
	return stats
}
