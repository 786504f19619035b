package extraction

import (
	"fmt"
	"strings"

	"github.com/okian/aireview/internal/domain/model"
)

// MaxInputChars bounds the résumé text sent to the model.
const MaxInputChars = 6000

const piiRule = "Do NOT include the candidate's name, email address, phone number, street address or any other contact details anywhere in the output."

var systemPrompt = `You extract structured career data from résumé text.
Respond with a single JSON object and nothing else.
` + piiRule

// BuildPrompt renders the system and user messages for text.
func BuildPrompt(text string) (system, user string) {
	var b strings.Builder
	b.WriteString("Extract the following from the résumé below:\n")
	b.WriteString("- professional_summary: 2-3 sentences about the career, no personal details\n")
	b.WriteString("- experience: roles, most recent first\n")
	b.WriteString("- education: most recent first\n")
	fmt.Fprintf(&b, "- skills: each with category (%s) and proficiency (%s)\n",
		strings.Join(model.SkillCategories, ", "), strings.Join(model.ProficiencyLevels, ", "))
	b.WriteString("- certifications\n")
	b.WriteString("- total_years_experience: number\n")
	fmt.Fprintf(&b, "- highest_degree: one of %s\n\n", strings.Join(model.DegreeLevels, ", "))
	b.WriteString(piiRule)
	b.WriteString("\n\nUse dates in YYYY-MM format. Return JSON shaped as:\n")
	b.WriteString(`{
  "professional_summary": string,
  "experience": [{"title": string, "company": string, "location": string, "start_date": "YYYY-MM", "end_date": "YYYY-MM", "is_current": boolean, "description": string, "highlights": [string]}],
  "education": [{"institution": string, "degree": string, "field_of_study": string, "start_date": "YYYY-MM", "end_date": "YYYY-MM", "honors": [string]}],
  "skills": [{"name": string, "category": string, "proficiency": string, "years_used": number}],
  "certifications": [{"name": string, "issuer": string, "issue_date": "YYYY-MM", "expiry_date": "YYYY-MM"}],
  "total_years_experience": number,
  "highest_degree": string
}`)
	b.WriteString("\n\nRésumé:\n")
	b.WriteString(truncate(strings.TrimSpace(text), MaxInputChars))
	b.WriteString("\n\nReminder: ")
	b.WriteString(piiRule)
	return systemPrompt, b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
