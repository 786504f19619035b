package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/pkg/logger"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// New builds the configured provider wrapped with instrumentation, rate
// limiting, circuit breaking and retries, outermost first.
func New(ctx context.Context, cfg config.AI, log logger.Logger) (Completer, error) {
	if log == nil {
		log = logger.Get()
	}
	log = log.Named("ai")

	var base Completer
	switch cfg.Provider {
	case ProviderOpenAI:
		base = NewOpenAI(cfg)
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Error(ctx, "ai api key is not configured; analyses will fail until it is set",
			logger.String("provider", cfg.Provider))
	}

	return Chain(base,
		WithInstrumentation(cfg.Provider),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		WithBreaker("ai-"+cfg.Provider, cfg.Breaker, log),
		WithRetry(cfg.Provider, RetryPolicy{
			MaxRetries:  cfg.MaxRetries,
			InitialWait: cfg.RetryWait,
			MaxWait:     cfg.MaxWait,
		}),
	), nil
}
