package enrichment

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/okian/aireview/internal/domain/model"
)

// applicationRecord is the upstream application with its included relations.
type applicationRecord struct {
	ID               string            `mapstructure:"id"`
	CandidateID      string            `mapstructure:"candidate_id"`
	JobID            string            `mapstructure:"job_id"`
	Job              jobRecord         `mapstructure:"job"`
	Candidate        candidateRecord   `mapstructure:"candidate"`
	JobRequirements  []requirementRow  `mapstructure:"job_requirements"`
	Documents        []documentRecord  `mapstructure:"documents"`
	PreScreenAnswers []preScreenRecord `mapstructure:"pre_screen_answers"`
}

type jobRecord struct {
	ID                      string   `mapstructure:"id"`
	Title                   string   `mapstructure:"title"`
	Description             string   `mapstructure:"description"`
	Location                string   `mapstructure:"location"`
	RequiredExperienceYears *float64 `mapstructure:"required_experience_years"`
}

type candidateRecord struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"`
}

type requirementRow struct {
	Description     string `mapstructure:"description"`
	RequirementType string `mapstructure:"requirement_type"`
	Type            string `mapstructure:"type"`
	IsMandatory     bool   `mapstructure:"is_mandatory"`
}

func (r requirementRow) kind() string {
	if r.RequirementType != "" {
		return strings.ToLower(r.RequirementType)
	}
	return strings.ToLower(r.Type)
}

type documentRecord struct {
	ID           string         `mapstructure:"id"`
	DocumentType string         `mapstructure:"document_type"`
	Metadata     map[string]any `mapstructure:"metadata"`
}

type preScreenRecord struct {
	Question     string `mapstructure:"question"`
	QuestionText string `mapstructure:"question_text"`
	Answer       string `mapstructure:"answer"`
	AnswerText   string `mapstructure:"answer_text"`
}

func (p preScreenRecord) pair() model.PreScreenAnswer {
	q, a := p.Question, p.Answer
	if q == "" {
		q = p.QuestionText
	}
	if a == "" {
		a = p.AnswerText
	}
	return model.PreScreenAnswer{Question: q, Answer: a}
}

// decodeRecord accepts either the bare application or one wrapped in "data".
func decodeRecord(body map[string]any) (applicationRecord, error) {
	if inner, ok := body["data"].(map[string]any); ok {
		body = inner
	}
	var rec applicationRecord
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return applicationRecord{}, err
	}
	if err := dec.Decode(body); err != nil {
		return applicationRecord{}, fmt.Errorf("%w: %v", ErrUpstreamResponse, err)
	}
	return rec, nil
}
