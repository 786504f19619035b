package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// WithRateLimit bounds the request rate sent to the provider. A non-positive
// limit disables it.
func WithRateLimit(perSecond float64, burst int) Middleware {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return Response{}, fmt.Errorf("ai rate limit wait: %w", err)
			}
			return next.Complete(ctx, req)
		})
	}
}
