package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
)

const defaultMinExtractedText = 50

// Review failure stages.
const (
	StageEnrichment = "enrichment"
	StageAnalysis   = "analysis"
	StagePersist    = "persist"
)

// Enricher hydrates a partial analysis input.
type Enricher interface {
	Enrich(ctx context.Context, in model.AnalysisInput) (model.AnalysisInput, error)
}

// FitAnalyzer produces a validated review.
type FitAnalyzer interface {
	Analyze(ctx context.Context, in model.AnalysisInput) (model.FitReview, error)
}

// Extractor produces structured résumé data.
type Extractor interface {
	Extract(ctx context.Context, text, documentID string) (model.ResumeStructuredData, error)
}

// ReviewWriter appends reviews.
type ReviewWriter interface {
	Create(ctx context.Context, r *model.FitReview) error
}

// DocumentRepository reads documents and merges metadata.
type DocumentRepository interface {
	FindDocument(ctx context.Context, id string) (*model.Document, error)
	MergeMetadata(ctx context.Context, id, key string, value any) error
}

// EventPublisher emits lifecycle events, best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any)
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Enricher  Enricher
	Analyzer  FitAnalyzer
	Extractor Extractor
	Reviews   ReviewWriter
	Documents DocumentRepository
	Publisher EventPublisher
}

// Pipeline routes normalized events to the fit-review and extraction flows.
type Pipeline struct {
	deps          Dependencies
	minTextLength int
	logger        logger.Logger
	now           func() time.Time
}

// PipelineOption applies a configuration option to the Pipeline.
type PipelineOption func(*Pipeline)

// WithMinExtractedText sets the shortest résumé text worth extracting.
func WithMinExtractedText(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.minTextLength = n
		}
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPipelineClock overrides time.Now for event timestamps.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline wires a pipeline over deps.
func NewPipeline(deps Dependencies, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		deps:          deps,
		minTextLength: defaultMinExtractedText,
		logger:        logger.Get().Named("pipeline"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle applies the routing predicate of ev's type. A returned error always
// comes with the Retry disposition.
func (p *Pipeline) Handle(ctx context.Context, ev model.Event) (model.Disposition, error) {
	switch e := ev.(type) {
	case model.ApplicationCreated:
		if e.Stage != model.StageAIReview {
			p.logger.Debug(ctx, "application created outside ai_review, skipping",
				logger.String("application_id", e.ApplicationID), logger.String("stage", e.Stage))
			return model.Skip, nil
		}
		return p.reviewFromEvent(ctx, model.AnalysisInput{
			ApplicationID:  e.ApplicationID,
			CandidateID:    e.CandidateID,
			JobID:          e.JobID,
			AutoTransition: e.AutoTransition,
			TriggeredBy:    e.Type(),
		})

	case model.ApplicationStageChanged:
		if e.NewStage != model.StageAIReview {
			p.logger.Debug(ctx, "stage change not into ai_review, skipping",
				logger.String("application_id", e.ApplicationID), logger.String("new_stage", e.NewStage))
			return model.Skip, nil
		}
		p.logger.Info(ctx, "application entered ai_review",
			logger.String("application_id", e.ApplicationID),
			logger.String("previous_stage", e.PreviousStage))
		return p.reviewFromEvent(ctx, model.AnalysisInput{
			ApplicationID:  e.ApplicationID,
			CandidateID:    e.CandidateID,
			JobID:          e.JobID,
			AutoTransition: e.AutoTransition,
			TriggeredBy:    e.Type(),
		})

	case model.DocumentProcessed:
		return p.extract(ctx, e), nil

	default:
		p.logger.Debug(ctx, "unhandled event type", logger.String("event_type", ev.Type()), logger.String("event_id", ev.ID()))
		return model.Skip, nil
	}
}

func (p *Pipeline) reviewFromEvent(ctx context.Context, in model.AnalysisInput) (model.Disposition, error) {
	if strings.TrimSpace(in.ApplicationID) == "" {
		p.logger.Warn(ctx, "ai_review event without application_id, skipping", logger.String("triggered_by", in.TriggeredBy))
		return model.Skip, nil
	}
	if _, err := p.Review(ctx, in); err != nil {
		return model.Retry, err
	}
	return model.Ack, nil
}

// Review runs enrichment, analysis and persistence for in. Every failure is
// announced with ai_review.failed before it is returned.
func (p *Pipeline) Review(ctx context.Context, in model.AnalysisInput) (model.FitReview, error) {
	log := p.logger.With(logger.String("application_id", in.ApplicationID))
	p.deps.Publisher.Publish(ctx, model.EventReviewStarted, model.ReviewStarted{
		ApplicationID: in.ApplicationID,
		CandidateID:   in.CandidateID,
		JobID:         in.JobID,
		TriggeredBy:   in.TriggeredBy,
		StartedAt:     p.now().UTC(),
	})

	enriched, err := p.deps.Enricher.Enrich(ctx, in)
	if err != nil {
		return model.FitReview{}, p.fail(ctx, in, StageEnrichment, err)
	}

	review, err := p.deps.Analyzer.Analyze(ctx, enriched)
	if err != nil {
		return model.FitReview{}, p.fail(ctx, enriched, StageAnalysis, err)
	}

	if err := p.deps.Reviews.Create(ctx, &review); err != nil {
		return model.FitReview{}, p.fail(ctx, enriched, StagePersist, err)
	}
	metrics.RecordReviewCreated(review.Recommendation, review.FitScore)

	p.deps.Publisher.Publish(ctx, model.EventReviewCompleted, model.ReviewCompleted{
		ReviewID:       review.ID,
		ApplicationID:  review.ApplicationID,
		CandidateID:    review.CandidateID,
		JobID:          review.JobID,
		FitScore:       review.FitScore,
		Recommendation: review.Recommendation,
		AutoTransition: in.AutoTransition,
		CompletedAt:    p.now().UTC(),
	})
	log.Info(ctx, "fit review completed",
		logger.String("review_id", review.ID),
		logger.Int("fit_score", review.FitScore),
		logger.String("recommendation", review.Recommendation),
		logger.Int64("processing_time_ms", review.ProcessingTimeMS))
	return review, nil
}

func (p *Pipeline) fail(ctx context.Context, in model.AnalysisInput, stage string, err error) error {
	metrics.RecordReviewFailed(stage)
	metrics.RecordErrorByComponent("pipeline", stage)
	p.logger.Error(ctx, "fit review failed",
		logger.String("application_id", in.ApplicationID),
		logger.String("stage", stage),
		logger.Error(err))
	p.deps.Publisher.Publish(ctx, model.EventReviewFailed, model.ReviewFailed{
		ApplicationID: in.ApplicationID,
		CandidateID:   in.CandidateID,
		JobID:         in.JobID,
		Error:         err.Error(),
		FailedAt:      p.now().UTC(),
	})
	return fmt.Errorf("%s: %w", stage, err)
}

// extract never fails the triggering event: every outcome is Skip or Ack.
func (p *Pipeline) extract(ctx context.Context, e model.DocumentProcessed) model.Disposition {
	log := p.logger.With(logger.String("document_id", e.DocumentID))
	if e.ProcessingStatus != model.StatusProcessed {
		log.Debug(ctx, "document not processed, skipping", logger.String("status", e.ProcessingStatus))
		return model.Skip
	}

	doc, err := p.deps.Documents.FindDocument(ctx, e.DocumentID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		log.Info(ctx, "document not found, skipping")
		metrics.RecordExtraction("skipped")
		return model.Skip
	case err != nil:
		log.Error(ctx, "document lookup failed, skipping extraction", logger.Error(err))
		metrics.RecordExtraction("error")
		return model.Skip
	}

	if reason := p.skipReason(doc); reason != "" {
		log.Info(ctx, "document not eligible for extraction", logger.String("reason", reason))
		metrics.RecordExtraction("skipped")
		return model.Skip
	}

	data, err := p.deps.Extractor.Extract(ctx, doc.ExtractedText(), doc.ID)
	if err == nil {
		err = p.deps.Documents.MergeMetadata(ctx, doc.ID, model.StructuredDataKey, data)
	}
	if err != nil {
		p.extractionFailed(ctx, doc, err)
		return model.Ack
	}

	metrics.RecordExtraction("extracted")
	p.deps.Publisher.Publish(ctx, model.EventMetadataExtracted, model.MetadataExtracted{
		DocumentID:              doc.ID,
		EntityType:              doc.EntityType,
		EntityID:                doc.EntityID,
		StructuredDataAvailable: true,
		SkillsCount:             len(data.Skills),
		ExperienceCount:         len(data.Experience),
		EducationCount:          len(data.Education),
		ExtractedAt:             data.ExtractedAt,
	})
	log.Info(ctx, "resume metadata extracted",
		logger.Int("skills", len(data.Skills)),
		logger.Int("experience", len(data.Experience)))
	return model.Ack
}

func (p *Pipeline) skipReason(doc *model.Document) string {
	switch {
	case doc.DocumentType != model.DocumentTypeResume:
		return "not a resume"
	case doc.EntityType != model.EntityTypeCandidate:
		return "not attached to a candidate"
	case utf8.RuneCountInString(strings.TrimSpace(doc.ExtractedText())) < p.minTextLength:
		return "extracted text too short"
	case doc.HasStructuredData():
		return "structured data already present"
	default:
		return ""
	}
}

func (p *Pipeline) extractionFailed(ctx context.Context, doc *model.Document, err error) {
	metrics.RecordExtraction("failed")
	metrics.RecordErrorByComponent("pipeline", "extraction")
	p.logger.Error(ctx, "resume extraction failed",
		logger.String("document_id", doc.ID),
		logger.Error(err))
	p.deps.Publisher.Publish(ctx, model.EventMetadataExtracted, model.MetadataExtracted{
		DocumentID:              doc.ID,
		EntityType:              doc.EntityType,
		EntityID:                doc.EntityID,
		StructuredDataAvailable: false,
		Error:                   err.Error(),
		ExtractedAt:             p.now().UTC(),
	})
}
