package ai

import (
	"context"
	"time"

	"github.com/okian/aireview/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/okian/aireview/internal/adapters/ai"

// WithInstrumentation records a span and latency metrics for every call.
func WithInstrumentation(provider string) Middleware {
	tracer := otel.Tracer(tracerName)
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, req Request) (Response, error) {
			ctx, span := tracer.Start(ctx, "ai."+req.Operation,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("ai.provider", provider),
					attribute.String("ai.operation", req.Operation),
					attribute.Int("ai.prompt_chars", len(req.System)+len(req.User)),
				),
			)
			defer span.End()

			start := time.Now()
			resp, err := next.Complete(ctx, req)
			latency := float64(time.Since(start).Milliseconds())

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				metrics.RecordAIRequest(provider, req.Operation, "error", latency)
				return resp, err
			}
			span.SetAttributes(
				attribute.String("ai.model", resp.Model),
				attribute.Int("ai.response_chars", len(resp.Content)),
			)
			metrics.RecordAIRequest(provider, req.Operation, "success", latency)
			return resp, nil
		})
	}
}
