// Package extraction turns free-text résumés into PII-free structured
// career data.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/aireview/internal/adapters/ai"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
)

// Operation labels AI requests issued by this package.
const Operation = "resume_extraction"

// FixedConfidence is recorded on every extraction. It is a placeholder, not
// a measured value.
const FixedConfidence = 0.85

// Analyzer extracts ResumeStructuredData with an external model.
type Analyzer struct {
	completer ai.Completer
	log       logger.Logger
	now       func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer builds an analyzer over c.
func NewAnalyzer(c ai.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{
		completer: c,
		log:       logger.Get().Named("extraction"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Extract runs the model over text and stamps the result with documentID.
func (a *Analyzer) Extract(ctx context.Context, text, documentID string) (model.ResumeStructuredData, error) {
	if strings.TrimSpace(text) == "" {
		return model.ResumeStructuredData{}, ErrEmptyText
	}

	system, user := BuildPrompt(text)
	resp, err := a.completer.Complete(ctx, ai.Request{Operation: Operation, System: system, User: user})
	if err != nil {
		return model.ResumeStructuredData{}, fmt.Errorf("resume extraction completion: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(ai.CleanJSON(resp.Content)), &raw); err != nil {
		return model.ResumeStructuredData{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if raw == nil {
		return model.ResumeStructuredData{}, fmt.Errorf("%w: reply is null", ErrMalformedOutput)
	}

	data := Coerce(raw)
	data.ExtractedAt = a.now().UTC()
	data.SourceDocumentID = documentID
	data.ExtractionConfidence = FixedConfidence

	a.log.Debug(ctx, "resume extracted",
		logger.String("document_id", documentID),
		logger.Int("skills", len(data.Skills)),
		logger.Int("experience", len(data.Experience)),
		logger.Int("education", len(data.Education)))
	return data, nil
}
