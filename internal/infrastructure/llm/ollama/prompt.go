package ollama

import (
	"fmt"
	"strings"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

func buildAnswerPrompt(question string, contextSet domain.RankedContext) string {
	if len(contextSet.Records) == 0 {
		return fmt.Sprintf(`You are a campus course assistant.
No course records matched the question below. Tell the student, in the
question's language, that you found no related information. Do not guess.

Question:
%s
`, question)
	}

	var contextBuilder strings.Builder
	for i, rec := range contextSet.Records {
		due := "none"
		if rec.RealDueDate != nil {
			due = rec.RealDueDate.Format("2006-01-02")
		}
		score := 0.0
		if i < len(contextSet.Candidates) {
			score = contextSet.Candidates[i].FusedScore
		}
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] category=%s due=%s posted=%s importance=%d score=%.3f\n%s\n\n",
			i+1,
			rec.Category,
			due,
			rec.PostedAt.Format("2006-01-02"),
			rec.Importance,
			score,
			rec.Summary,
		))
	}

	return fmt.Sprintf(`You are a campus course assistant.
Answer the student's question only from the course records below. Quote
dates exactly as given; never invent deadlines. If the records do not
answer the question, say so directly, in the question's language.

Question:
%s

Course records:
%s`, question, contextBuilder.String())
}
