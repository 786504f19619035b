// Package worker drains broker deliveries with a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 8
	poolShutdownTimeout = 30 * time.Second
)

// Queue defines how workers receive deliveries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan amqp.Delivery
}

// DeliveryHandler settles one delivery.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, d amqp.Delivery)
}

// Worker processes deliveries until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker once its current delivery is settled.
	Shutdown(ctx context.Context) error
}

// DeliveryWorker implements Worker over a delivery channel.
type DeliveryWorker struct {
	queue   Queue
	handler DeliveryHandler
	name    string

	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewDeliveryWorker creates a worker with configuration options.
func NewDeliveryWorker(queue Queue, handler DeliveryHandler, opts ...Option) *DeliveryWorker {
	w := &DeliveryWorker{
		queue:     queue,
		handler:   handler,
		name:      "worker",
		processed: &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. Cancelling ctx stops the loop but the delivery
// in hand is always settled first.
func (w *DeliveryWorker) Run(ctx context.Context) {
	defer close(w.done)

	deliveries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn(ctx, "delivery channel closed")
				return
			}
			w.process(context.WithoutCancel(ctx), d)
		}
	}
}

// process settles d through the handler. mq.Consumer recovers pipeline
// panics itself so they stay bounded by its retry limit; the recover here
// only covers panics escaping the handler.
func (w *DeliveryWorker) process(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "handler panicked, requeueing",
				logger.String("routing_key", d.RoutingKey),
				logger.Any("panic", r))
			_ = d.Nack(false, true)
		}
	}()
	w.handler.HandleDelivery(ctx, d)
	w.processed.Add(1)
}

// Shutdown gracefully stops the worker.
func (w *DeliveryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers   []*DeliveryWorker
	processed atomic.Int64
	wg        sync.WaitGroup
	done      chan struct{}
	logger    logger.Logger
}

// NewPool creates a pool of workerCount workers.
func NewPool(workerCount int, queue Queue, handler DeliveryHandler) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*DeliveryWorker, workerCount),
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewDeliveryWorker(queue, handler,
			WithName("worker-"+strconv.Itoa(i)),
			withCounter(&p.processed),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool. It must be called once.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go func(w *DeliveryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Done is closed once every worker has returned, whatever the cause:
// Shutdown, a cancelled context or a closed delivery channel.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of deliveries settled since start.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Shutdown stops every worker, waiting at most poolShutdownTimeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
