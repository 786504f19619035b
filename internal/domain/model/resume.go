package model

import "time"

// StructuredDataKey is the document metadata key holding extracted résumé data.
const StructuredDataKey = "structured_data"

// ExtractedTextKey is the document metadata key holding upstream OCR/text output.
const ExtractedTextKey = "extracted_text"

// Document and entity types the extraction path accepts.
const (
	DocumentTypeResume  = "resume"
	EntityTypeCandidate = "candidate"
	StatusProcessed     = "processed"
)

// Skill categories.
var SkillCategories = []string{"technical", "soft", "language", "tool", "domain", "other"}

// Skill proficiency levels.
var ProficiencyLevels = []string{"beginner", "intermediate", "advanced", "expert"}

// Degree levels, lowest to highest.
var DegreeLevels = []string{"high_school", "associate", "bachelor", "master", "doctorate", "other"}

// ResumeStructuredData is the PII-free profile written under
// metadata.structured_data. It must never contain name, email, phone or
// address.
type ResumeStructuredData struct {
	ExtractedAt          time.Time       `json:"extracted_at"`
	SourceDocumentID     string          `json:"source_document_id"`
	ExtractionConfidence float64         `json:"extraction_confidence"`
	ProfessionalSummary  string          `json:"professional_summary"`
	Experience           []Experience    `json:"experience"`
	Education            []Education     `json:"education"`
	Skills               []Skill         `json:"skills"`
	Certifications       []Certification `json:"certifications"`
	TotalYearsExperience *float64        `json:"total_years_experience,omitempty"`
	HighestDegree        string          `json:"highest_degree,omitempty"`
}

// Experience is one role, most recent first. Dates are YYYY-MM.
type Experience struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	IsCurrent   bool     `json:"is_current"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights"`
}

// Education is one degree or program, most recent first.
type Education struct {
	Institution  string   `json:"institution"`
	Degree       string   `json:"degree"`
	FieldOfStudy string   `json:"field_of_study"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Honors       []string `json:"honors"`
}

// Skill is a categorized, leveled skill.
type Skill struct {
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Proficiency string   `json:"proficiency,omitempty"`
	YearsUsed   *float64 `json:"years_used,omitempty"`
}

// Certification is a professional certification.
type Certification struct {
	Name       string `json:"name"`
	Issuer     string `json:"issuer"`
	IssueDate  string `json:"issue_date"`
	ExpiryDate string `json:"expiry_date"`
}

// Document is the subset of the upstream document record the extraction
// path reads.
type Document struct {
	ID               string
	DocumentType     string
	EntityType       string
	EntityID         string
	ProcessingStatus string
	Metadata         map[string]any
}

// ExtractedText returns metadata.extracted_text when it is a string.
func (d *Document) ExtractedText() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[ExtractedTextKey].(string)
	return s
}

// HasStructuredData reports whether extraction already ran for this document.
func (d *Document) HasStructuredData() bool {
	if d == nil || d.Metadata == nil {
		return false
	}
	v, ok := d.Metadata[StructuredDataKey]
	return ok && v != nil
}
