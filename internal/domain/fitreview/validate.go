package fitreview

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/okian/aireview/internal/domain/model"
)

// Output is the decoded model reply. Numbers are floats because models do
// not reliably emit integers.
type Output struct {
	FitScore                   *float64 `json:"fit_score"`
	Recommendation             string   `json:"recommendation"`
	OverallSummary             string   `json:"overall_summary"`
	ConfidenceLevel            *float64 `json:"confidence_level"`
	Strengths                  []string `json:"strengths"`
	Concerns                   []string `json:"concerns"`
	MatchedSkills              []string `json:"matched_skills"`
	MissingSkills              []string `json:"missing_skills"`
	SkillsMatchPercentage      *float64 `json:"skills_match_percentage"`
	CandidateYears             *float64 `json:"candidate_years"`
	RequiredYears              *float64 `json:"required_years"`
	MeetsExperienceRequirement *bool    `json:"meets_experience_requirement"`
	LocationCompatibility      string   `json:"location_compatibility"`
}

// ParseOutput decodes a cleaned JSON reply.
func ParseOutput(content string) (Output, error) {
	var out Output
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

// Validate enforces score ranges and enum membership. fit_score,
// confidence_level, recommendation and location_compatibility are required;
// skills_match_percentage is range-checked when present.
func Validate(out Output) error {
	if err := checkPercent("fit_score", out.FitScore, true); err != nil {
		return err
	}
	if !slices.Contains(model.Recommendations(), out.Recommendation) {
		return fmt.Errorf("%w: recommendation %q", ErrInvalidOutput, out.Recommendation)
	}
	if err := checkPercent("confidence_level", out.ConfidenceLevel, true); err != nil {
		return err
	}
	if err := checkPercent("skills_match_percentage", out.SkillsMatchPercentage, false); err != nil {
		return err
	}
	if !slices.Contains(model.LocationGrades(), out.LocationCompatibility) {
		return fmt.Errorf("%w: location_compatibility %q", ErrInvalidOutput, out.LocationCompatibility)
	}
	return nil
}

func checkPercent(field string, v *float64, required bool) error {
	if v == nil {
		if required {
			return fmt.Errorf("%w: %s is missing", ErrInvalidOutput, field)
		}
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 100 {
		return fmt.Errorf("%w: %s %v outside [0,100]", ErrInvalidOutput, field, *v)
	}
	return nil
}

func roundPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(math.Round(*v))
	return &n
}

func round(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Round(*v))
}
