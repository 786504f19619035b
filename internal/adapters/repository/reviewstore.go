package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	"gorm.io/gorm"
)

// ReviewStore persists fit reviews. Rows are only ever inserted.
type ReviewStore struct {
	db           *gorm.DB
	log          logger.Logger
	defaultLimit int
}

// NewReviewStore creates a review store over db.
func NewReviewStore(db *DB, opts ...Option) *ReviewStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("review_store")
	}
	return &ReviewStore{db: db.gorm, log: o.log, defaultLimit: o.defaultLimit}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// Create inserts r as a new history row, assigning an id when it has none.
func (s *ReviewStore) Create(ctx context.Context, r *model.FitReview) error {
	defer observe("create_review", time.Now())
	if r.ApplicationID == "" {
		return fmt.Errorf("create review: %w", ErrEmptyID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.AnalyzedAt.IsZero() {
		r.AnalyzedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// FindByID loads one review.
func (s *ReviewStore) FindByID(ctx context.Context, id string) (model.FitReview, error) {
	defer observe("find_review", time.Now())
	var r model.FitReview
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FitReview{}, fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.FitReview{}, fmt.Errorf("find review %s: %w", id, err)
	}
	return r, nil
}

// FindByApplication returns the review history of an application, newest first.
func (s *ReviewStore) FindByApplication(ctx context.Context, applicationID string) ([]model.FitReview, error) {
	defer observe("find_by_application", time.Now())
	var rows []model.FitReview
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("analyzed_at DESC").Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find reviews for %s: %w", applicationID, err)
	}
	return rows, nil
}

// FindLatestByApplication returns the current review of an application.
func (s *ReviewStore) FindLatestByApplication(ctx context.Context, applicationID string) (model.FitReview, error) {
	defer observe("find_latest", time.Now())
	var r model.FitReview
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("analyzed_at DESC").Order("created_at DESC").
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FitReview{}, fmt.Errorf("review for application %s: %w", applicationID, ErrNotFound)
	}
	if err != nil {
		return model.FitReview{}, fmt.Errorf("find latest review for %s: %w", applicationID, err)
	}
	return r, nil
}

// List returns reviews matching f, newest first.
func (s *ReviewStore) List(ctx context.Context, f model.ReviewFilter) ([]model.FitReview, error) {
	defer observe("list_reviews", time.Now())
	if f.Limit < 0 || f.Limit > maxListLimit || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidLimit, f.Limit, f.Offset)
	}
	limit := f.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}

	q := s.db.WithContext(ctx).Model(&model.FitReview{})
	if f.ApplicationID != "" {
		q = q.Where("application_id = ?", f.ApplicationID)
	}
	if f.CandidateID != "" {
		q = q.Where("candidate_id = ?", f.CandidateID)
	}
	if f.JobID != "" {
		q = q.Where("job_id = ?", f.JobID)
	}
	if f.Recommendation != "" {
		q = q.Where("recommendation = ?", f.Recommendation)
	}
	if f.MinScore != nil {
		q = q.Where("fit_score >= ?", *f.MinScore)
	}
	if f.MaxScore != nil {
		q = q.Where("fit_score <= ?", *f.MaxScore)
	}

	var rows []model.FitReview
	if err := q.Order("analyzed_at DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return rows, nil
}

// statsRow is the projection JobStats scans.
type statsRow struct {
	ApplicationID         string
	FitScore              int
	Recommendation        string
	SkillsMatchPercentage *int
	AnalyzedAt            time.Time
}

// JobStats aggregates every review of a job. Averages and the distribution
// count only the latest review of each application.
func (s *ReviewStore) JobStats(ctx context.Context, jobID string) (model.JobStats, error) {
	defer observe("job_stats", time.Now())
	var rows []statsRow
	err := s.db.WithContext(ctx).Model(&model.FitReview{}).
		Select("application_id", "fit_score", "recommendation", "skills_match_percentage", "analyzed_at").
		Where("job_id = ?", jobID).
		Order("analyzed_at DESC").Order("created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return model.JobStats{}, fmt.Errorf("job stats %s: %w", jobID, err)
	}

	stats := model.JobStats{
		JobID:                jobID,
		TotalReviews:         len(rows),
		RecommendationCounts: make(map[string]int, len(model.Recommendations())),
	}
	for _, rec := range model.Recommendations() {
		stats.RecommendationCounts[rec] = 0
	}
	if len(rows) == 0 {
		return stats, nil
	}
	latest := rows[0].AnalyzedAt
	stats.LatestAnalyzedAt = &latest

	seen := make(map[string]struct{}, len(rows))
	var scoreSum, matchSum, matchN int
	for _, r := range rows {
		if _, dup := seen[r.ApplicationID]; dup {
			continue
		}
		seen[r.ApplicationID] = struct{}{}
		scoreSum += r.FitScore
		stats.RecommendationCounts[r.Recommendation]++
		if r.SkillsMatchPercentage != nil {
			matchSum += *r.SkillsMatchPercentage
			matchN++
		}
	}
	stats.Applications = len(seen)
	stats.AverageScore = float64(scoreSum) / float64(stats.Applications)
	if matchN > 0 {
		stats.AverageSkillsMatch = float64(matchSum) / float64(matchN)
	}
	return stats, nil
}
