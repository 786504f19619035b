package model

import "time"

// ReviewStarted is published once a fit review begins.
type ReviewStarted struct {
	ApplicationID string    `json:"application_id"`
	CandidateID   string    `json:"candidate_id"`
	JobID         string    `json:"job_id"`
	TriggeredBy   string    `json:"triggered_by,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// ReviewCompleted is published after a review row is persisted.
type ReviewCompleted struct {
	ReviewID       string    `json:"review_id"`
	ApplicationID  string    `json:"application_id"`
	CandidateID    string    `json:"candidate_id"`
	JobID          string    `json:"job_id"`
	FitScore       int       `json:"fit_score"`
	Recommendation string    `json:"recommendation"`
	AutoTransition bool      `json:"auto_transition"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ReviewFailed is published when a review could not be produced.
type ReviewFailed struct {
	ApplicationID string    `json:"application_id"`
	CandidateID   string    `json:"candidate_id"`
	JobID         string    `json:"job_id"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
}

// MetadataExtracted reports the outcome of résumé extraction. On failure
// StructuredDataAvailable is false and Error is set.
type MetadataExtracted struct {
	DocumentID              string    `json:"document_id"`
	EntityType              string    `json:"entity_type"`
	EntityID                string    `json:"entity_id"`
	StructuredDataAvailable bool      `json:"structured_data_available"`
	SkillsCount             int       `json:"skills_count"`
	ExperienceCount         int       `json:"experience_count"`
	EducationCount          int       `json:"education_count"`
	Error                   string    `json:"error,omitempty"`
	ExtractedAt             time.Time `json:"extracted_at"`
}
