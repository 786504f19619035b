package fitreview

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/aireview/internal/domain/model"
)

// MaxResumeChars bounds the résumé text embedded in the prompt.
const MaxResumeChars = 4000

const systemPrompt = `You are an experienced technical recruiter assessing how well a candidate fits a job.
Respond with a single JSON object and nothing else. Base every judgement on the material provided.`

const outputContract = `Return JSON with exactly these fields:
{
  "fit_score": integer 0-100,
  "recommendation": "strong_fit" | "good_fit" | "fair_fit" | "poor_fit",
  "overall_summary": string,
  "confidence_level": integer 0-100,
  "strengths": [string],
  "concerns": [string],
  "matched_skills": [string],
  "missing_skills": [string],
  "skills_match_percentage": integer 0-100,
  "candidate_years": number or null,
  "required_years": number or null,
  "meets_experience_requirement": boolean or null,
  "location_compatibility": "perfect" | "good" | "challenging" | "mismatch"
}

Scoring guidance:
- 90-100: strong_fit
- 70-89: good_fit
- 50-69: fair_fit
- 0-49: poor_fit`

// BuildPrompt renders the system and user messages for one analysis. The
// output depends only on in.
func BuildPrompt(in model.AnalysisInput) (system, user string) {
	var b strings.Builder

	b.WriteString("## Job\n")
	fmt.Fprintf(&b, "Title: %s\n", orNotSpecified(in.JobTitle))
	fmt.Fprintf(&b, "Location: %s\n", orNotSpecified(in.JobLocation))
	fmt.Fprintf(&b, "Required skills: %s\n", joinOrNone(in.RequiredSkills))
	fmt.Fprintf(&b, "Preferred skills: %s\n", joinOrNone(in.PreferredSkills))
	if in.RequiredExperienceYears != nil {
		fmt.Fprintf(&b, "Required experience: %s years\n", strconv.FormatFloat(*in.RequiredExperienceYears, 'f', -1, 64))
	} else {
		b.WriteString("Required experience: not specified\n")
	}
	fmt.Fprintf(&b, "\nDescription:\n%s\n", orNotSpecified(in.JobDescription))

	writeQualifications(&b, in.Requirements)
	writePreScreen(&b, in.PreScreenAnswers)

	b.WriteString("\n## Candidate\n")
	fmt.Fprintf(&b, "Location: %s\n", orNotSpecified(in.CandidateLocation))
	b.WriteString("\nRésumé:\n")
	b.WriteString(resumeSection(in))
	b.WriteString("\n\n")
	b.WriteString(outputContract)

	return systemPrompt, b.String()
}

func writeQualifications(b *strings.Builder, reqs []model.JobRequirement) {
	var required, preferred []string
	for _, r := range reqs {
		d := strings.TrimSpace(r.Description)
		if d == "" {
			continue
		}
		if r.Type != "" {
			d = fmt.Sprintf("[%s] %s", r.Type, d)
		}
		if r.Mandatory {
			required = append(required, d)
		} else {
			preferred = append(preferred, d)
		}
	}
	if len(required) > 0 {
		b.WriteString("\n## Required Qualifications\n")
		for _, d := range required {
			fmt.Fprintf(b, "- %s\n", d)
		}
	}
	if len(preferred) > 0 {
		b.WriteString("\n## Preferred Qualifications\n")
		for _, d := range preferred {
			fmt.Fprintf(b, "- %s\n", d)
		}
	}
}

func writePreScreen(b *strings.Builder, answers []model.PreScreenAnswer) {
	if len(answers) == 0 {
		return
	}
	b.WriteString("\n## Candidate Pre-Screen Responses\n")
	for i, a := range answers {
		fmt.Fprintf(b, "Q%d: %s\nA%d: %s\n", i+1, strings.TrimSpace(a.Question), i+1, strings.TrimSpace(a.Answer))
	}
}

// resumeSection prefers real text over the document-count fallback.
func resumeSection(in model.AnalysisInput) string {
	text := strings.TrimSpace(in.ResumeText)
	switch {
	case text != "":
		return truncate(text, MaxResumeChars)
	case in.DocumentCount > 0:
		return fmt.Sprintf("The candidate uploaded %d document(s) but text extraction has not finished. "+
			"Assess using the remaining information and lower confidence_level accordingly.", in.DocumentCount)
	default:
		return "No résumé was provided. Assess using the remaining information and lower confidence_level accordingly."
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not specified"
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none listed"
	}
	return strings.Join(items, ", ")
}
