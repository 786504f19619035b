// Package fitreview scores how well a candidate matches a job with an
// external model and validates the result before it is persisted.
package fitreview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/aireview/internal/adapters/ai"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
)

// Operation labels AI requests issued by this package.
const Operation = "fit_review"

// Analyzer turns an AnalysisInput into a validated FitReview.
type Analyzer struct {
	completer ai.Completer
	log       logger.Logger
	now       func() time.Time
	newID     func() string
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

// WithIDGenerator overrides review id generation.
func WithIDGenerator(gen func() string) Option {
	return func(a *Analyzer) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// NewAnalyzer builds an analyzer over c.
func NewAnalyzer(c ai.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{
		completer: c,
		log:       logger.Get().Named("fitreview"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds the prompt, calls the model and validates its reply. Any
// error means nothing may be persisted.
func (a *Analyzer) Analyze(ctx context.Context, in model.AnalysisInput) (model.FitReview, error) {
	if strings.TrimSpace(in.ApplicationID) == "" {
		return model.FitReview{}, ErrMissingIDs
	}
	start := a.now()

	system, user := BuildPrompt(in)
	resp, err := a.completer.Complete(ctx, ai.Request{Operation: Operation, System: system, User: user})
	if err != nil {
		return model.FitReview{}, fmt.Errorf("fit review completion: %w", err)
	}

	out, err := ParseOutput(ai.CleanJSON(resp.Content))
	if err != nil {
		a.log.Warn(ctx, "unparseable fit review output",
			logger.String("application_id", in.ApplicationID),
			logger.Int("content_length", len(resp.Content)))
		return model.FitReview{}, err
	}
	if err := Validate(out); err != nil {
		a.log.Warn(ctx, "fit review output rejected",
			logger.String("application_id", in.ApplicationID),
			logger.Error(err))
		return model.FitReview{}, err
	}

	end := a.now()
	review := model.FitReview{
		ID:                         a.newID(),
		ApplicationID:              in.ApplicationID,
		CandidateID:                in.CandidateID,
		JobID:                      in.JobID,
		FitScore:                   round(out.FitScore),
		Recommendation:             out.Recommendation,
		OverallSummary:             out.OverallSummary,
		ConfidenceLevel:            round(out.ConfidenceLevel),
		Strengths:                  nonNil(out.Strengths),
		Concerns:                   nonNil(out.Concerns),
		MatchedSkills:              nonNil(out.MatchedSkills),
		MissingSkills:              nonNil(out.MissingSkills),
		SkillsMatchPercentage:      roundPtr(out.SkillsMatchPercentage),
		CandidateYears:             out.CandidateYears,
		RequiredYears:              out.RequiredYears,
		MeetsExperienceRequirement: out.MeetsExperienceRequirement,
		LocationCompatibility:      out.LocationCompatibility,
		ModelVersion:               resp.Model,
		ProcessingTimeMS:           end.Sub(start).Milliseconds(),
		AnalyzedAt:                 end.UTC(),
	}
	if review.RequiredYears == nil {
		review.RequiredYears = in.RequiredExperienceYears
	}
	return review, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
