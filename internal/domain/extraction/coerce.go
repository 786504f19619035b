package extraction

import (
	"slices"
	"strconv"
	"strings"

	"github.com/okian/aireview/internal/domain/model"
)

// Coerce maps a loosely shaped model reply onto ResumeStructuredData. Lists
// that are not arrays become empty, missing strings become "", and enum
// values outside the permitted set are dropped.
func Coerce(raw map[string]any) model.ResumeStructuredData {
	out := model.ResumeStructuredData{
		ProfessionalSummary:  str(raw, "professional_summary"),
		Experience:           []model.Experience{},
		Education:            []model.Education{},
		Skills:               []model.Skill{},
		Certifications:       []model.Certification{},
		TotalYearsExperience: num(raw, "total_years_experience"),
		HighestDegree:        enum(raw, "highest_degree", model.DegreeLevels),
	}
	for _, m := range objects(raw, "experience") {
		out.Experience = append(out.Experience, model.Experience{
			Title:       str(m, "title"),
			Company:     str(m, "company"),
			Location:    str(m, "location"),
			StartDate:   str(m, "start_date"),
			EndDate:     str(m, "end_date"),
			IsCurrent:   boolean(m, "is_current"),
			Description: str(m, "description"),
			Highlights:  strs(m, "highlights"),
		})
	}
	for _, m := range objects(raw, "education") {
		out.Education = append(out.Education, model.Education{
			Institution:  str(m, "institution"),
			Degree:       str(m, "degree"),
			FieldOfStudy: str(m, "field_of_study"),
			StartDate:    str(m, "start_date"),
			EndDate:      str(m, "end_date"),
			Honors:       strs(m, "honors"),
		})
	}
	for _, m := range objects(raw, "skills") {
		name := str(m, "name")
		if name == "" {
			continue
		}
		out.Skills = append(out.Skills, model.Skill{
			Name:        name,
			Category:    enum(m, "category", model.SkillCategories),
			Proficiency: enum(m, "proficiency", model.ProficiencyLevels),
			YearsUsed:   num(m, "years_used"),
		})
	}
	for _, m := range objects(raw, "certifications") {
		out.Certifications = append(out.Certifications, model.Certification{
			Name:       str(m, "name"),
			Issuer:     str(m, "issuer"),
			IssueDate:  str(m, "issue_date"),
			ExpiryDate: str(m, "expiry_date"),
		})
	}
	return out
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func strs(m map[string]any, key string) []string {
	items, _ := m[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func objects(m map[string]any, key string) []map[string]any {
	items, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func num(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func enum(m map[string]any, key string, allowed []string) string {
	v := strings.ToLower(str(m, key))
	if slices.Contains(allowed, v) {
		return v
	}
	return ""
}
