package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	"github.com/sony/gobreaker/v2"
)

// WithBreaker stops calling the provider while its failure ratio is above
// the configured threshold. Callers see ErrCircuitOpen while tripped.
func WithBreaker(name string, cfg config.Breaker, log logger.Logger) Middleware {
	if !cfg.Enabled {
		return nil
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.UpdateAIBreakerState(name, float64(to))
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
		// Caller cancellations and missing credentials say nothing about
		// provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrMissingAPIKey)
		},
	}
	cb := gobreaker.NewCircuitBreaker[Response](settings)
	metrics.UpdateAIBreakerState(name, float64(gobreaker.StateClosed))

	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (Response, error) {
			resp, err := cb.Execute(func() (Response, error) {
				return next.Complete(ctx, req)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Response{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
			}
			return resp, err
		})
	}
}
