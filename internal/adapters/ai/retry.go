package ai

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/okian/aireview/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// RetryPolicy controls WithRetry.
type RetryPolicy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// WithRetry retries transient provider failures with exponential backoff
// and full jitter. Non-transient errors return immediately.
func WithRetry(provider string, p RetryPolicy) Middleware {
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (Response, error) {
			var lastErr error
			for attempt := 0; attempt <= p.MaxRetries; attempt++ {
				if err := ctx.Err(); err != nil {
					return Response{}, err
				}
				resp, err := next.Complete(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if !IsRetryable(err) || attempt == p.MaxRetries {
					break
				}

				metrics.RecordAIRetry(provider, req.Operation)
				select {
				case <-time.After(backoff(p, attempt)):
				case <-ctx.Done():
					return Response{}, ctx.Err()
				}
			}
			return Response{}, lastErr
		})
	}
}

func backoff(p RetryPolicy, attempt int) time.Duration {
	wait := time.Duration(float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt)))
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	if wait <= 0 {
		return 0
	}
	// Full jitter in [wait/2, wait].
	half := wait / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// IsRetryable reports whether err is a transient provider or network failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if code, ok := StatusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// StatusCode extracts the HTTP status reported by a provider error.
func StatusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Code > 0 {
		return gErr.Code, true
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr.Code > 0 {
		return gErrPtr.Code, true
	}
	return 0, false
}
