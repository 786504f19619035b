package model

import "time"

// Recommendation tiers.
const (
	RecommendationStrongFit = "strong_fit"
	RecommendationGoodFit   = "good_fit"
	RecommendationFairFit   = "fair_fit"
	RecommendationPoorFit   = "poor_fit"
)

// Location compatibility grades.
const (
	LocationPerfect     = "perfect"
	LocationGood        = "good"
	LocationChallenging = "challenging"
	LocationMismatch    = "mismatch"
)

// Recommendations lists the valid tiers from strongest to weakest.
func Recommendations() []string {
	return []string{RecommendationStrongFit, RecommendationGoodFit, RecommendationFairFit, RecommendationPoorFit}
}

// LocationGrades lists the valid location compatibility values.
func LocationGrades() []string {
	return []string{LocationPerfect, LocationGood, LocationChallenging, LocationMismatch}
}

// FitReview is one persisted AI assessment. Rows are append-only: every
// analysis of an application adds a row and the newest by AnalyzedAt is the
// current one.
type FitReview struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	ApplicationID string `gorm:"type:varchar(64);index;not null"`
	CandidateID   string `gorm:"type:varchar(64);index"`
	JobID         string `gorm:"type:varchar(64);index"`

	FitScore        int    `gorm:"not null"`
	Recommendation  string `gorm:"type:varchar(16);index;not null"`
	OverallSummary  string `gorm:"type:text"`
	ConfidenceLevel int

	Strengths     []string `gorm:"type:text;serializer:json"`
	Concerns      []string `gorm:"type:text;serializer:json"`
	MatchedSkills []string `gorm:"type:text;serializer:json"`
	MissingSkills []string `gorm:"type:text;serializer:json"`

	SkillsMatchPercentage      *int
	RequiredYears              *float64
	CandidateYears             *float64
	MeetsExperienceRequirement *bool

	LocationCompatibility string `gorm:"type:varchar(16)"`
	ModelVersion          string `gorm:"type:varchar(128)"`
	ProcessingTimeMS      int64
	AnalyzedAt            time.Time `gorm:"index;not null"`
	CreatedAt             time.Time
}

// TableName pins the gorm table name.
func (FitReview) TableName() string { return "fit_reviews" }

// SkillsMatch is the nested skills section of the read shape.
type SkillsMatch struct {
	MatchPercentage int      `json:"match_percentage"`
	MatchedSkills   []string `json:"matched_skills"`
	MissingSkills   []string `json:"missing_skills"`
}

// ExperienceAnalysis is the nested experience section of the read shape.
type ExperienceAnalysis struct {
	CandidateYears   float64 `json:"candidate_years"`
	RequiredYears    float64 `json:"required_years"`
	MeetsRequirement bool    `json:"meets_requirement"`
}

// ReviewView is the read shape exposed to other services. It never carries
// nulls: absent numbers are 0, absent lists are empty, absent flags false.
type ReviewView struct {
	ID                    string             `json:"id"`
	ApplicationID         string             `json:"application_id"`
	CandidateID           string             `json:"candidate_id,omitempty"`
	JobID                 string             `json:"job_id,omitempty"`
	FitScore              int                `json:"fit_score"`
	Recommendation        string             `json:"recommendation"`
	OverallSummary        string             `json:"overall_summary"`
	ConfidenceLevel       int                `json:"confidence_level"`
	Strengths             []string           `json:"strengths"`
	Concerns              []string           `json:"concerns"`
	SkillsMatch           SkillsMatch        `json:"skills_match"`
	ExperienceAnalysis    ExperienceAnalysis `json:"experience_analysis"`
	LocationCompatibility string             `json:"location_compatibility"`
	ModelVersion          string             `json:"model_version"`
	ProcessingTimeMS      int64              `json:"processing_time_ms"`
	AnalyzedAt            time.Time          `json:"analyzed_at"`
}

// View maps the flat row to the nested read shape.
func (r *FitReview) View() ReviewView {
	v := ReviewView{
		ID:                    r.ID,
		ApplicationID:         r.ApplicationID,
		CandidateID:           r.CandidateID,
		JobID:                 r.JobID,
		FitScore:              r.FitScore,
		Recommendation:        r.Recommendation,
		OverallSummary:        r.OverallSummary,
		ConfidenceLevel:       r.ConfidenceLevel,
		Strengths:             nonNil(r.Strengths),
		Concerns:              nonNil(r.Concerns),
		LocationCompatibility: r.LocationCompatibility,
		ModelVersion:          r.ModelVersion,
		ProcessingTimeMS:      r.ProcessingTimeMS,
		AnalyzedAt:            r.AnalyzedAt,
		SkillsMatch: SkillsMatch{
			MatchedSkills: nonNil(r.MatchedSkills),
			MissingSkills: nonNil(r.MissingSkills),
		},
	}
	if r.SkillsMatchPercentage != nil {
		v.SkillsMatch.MatchPercentage = *r.SkillsMatchPercentage
	}
	if r.CandidateYears != nil {
		v.ExperienceAnalysis.CandidateYears = *r.CandidateYears
	}
	if r.RequiredYears != nil {
		v.ExperienceAnalysis.RequiredYears = *r.RequiredYears
	}
	if r.MeetsExperienceRequirement != nil {
		v.ExperienceAnalysis.MeetsRequirement = *r.MeetsExperienceRequirement
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ReviewFilter narrows List queries. Zero values mean "any".
type ReviewFilter struct {
	ApplicationID  string
	CandidateID    string
	JobID          string
	Recommendation string
	MinScore       *int
	MaxScore       *int
	Limit          int
	Offset         int
}

// JobStats aggregates the current review of every application for a job.
type JobStats struct {
	JobID string `json:"job_id"`
	// TotalReviews counts every history row.
	TotalReviews int `json:"total_reviews"`
	// Applications counts distinct applications; averages and the
	// distribution use the latest review of each.
	Applications         int            `json:"applications"`
	AverageScore         float64        `json:"average_score"`
	AverageSkillsMatch   float64        `json:"average_skills_match"`
	RecommendationCounts map[string]int `json:"recommendation_counts"`
	LatestAnalyzedAt     *time.Time     `json:"latest_analyzed_at,omitempty"`
}
