package model

import "strings"

// Requirement types as stored upstream.
const (
	RequirementSkill      = "skill"
	RequirementExperience = "experience"
	RequirementEducation  = "education"
)

// JobRequirement is one discrete line from a job's requirement list.
type JobRequirement struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Mandatory   bool   `json:"mandatory"`
}

// PreScreenAnswer pairs a screening question with the candidate's answer.
type PreScreenAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnalysisInput is everything the fit-review prompt needs.
type AnalysisInput struct {
	ApplicationID string `json:"application_id"`
	CandidateID   string `json:"candidate_id"`
	JobID         string `json:"job_id"`

	ResumeText string `json:"resume_text,omitempty"`
	// DocumentCount is only consulted when ResumeText is empty.
	DocumentCount int `json:"document_count,omitempty"`

	JobTitle                string            `json:"job_title,omitempty"`
	JobDescription          string            `json:"job_description,omitempty"`
	RequiredSkills          []string          `json:"required_skills,omitempty"`
	PreferredSkills         []string          `json:"preferred_skills,omitempty"`
	RequiredExperienceYears *float64          `json:"required_experience_years,omitempty"`
	CandidateLocation       string            `json:"candidate_location,omitempty"`
	JobLocation             string            `json:"job_location,omitempty"`
	Requirements            []JobRequirement  `json:"job_requirements,omitempty"`
	PreScreenAnswers        []PreScreenAnswer `json:"pre_screen_answers,omitempty"`

	// AutoTransition is round-tripped onto ai_review.completed untouched.
	AutoTransition bool `json:"auto_transition"`
	// TriggeredBy names the event type that requested the review.
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// NeedsEnrichment reports whether the upstream system of record must be
// consulted before analysis.
func (in AnalysisInput) NeedsEnrichment() bool {
	return strings.TrimSpace(in.JobTitle) == "" ||
		strings.TrimSpace(in.JobDescription) == "" ||
		len(in.RequiredSkills) == 0
}
