package flow

import (
	"strings"

	"github.com/BTreeMap/PromptForge/internal/models"
)

var truthyAnswers = map[string]bool{"yes": true, "true": true, "1": true, "y": true}

// Coerce converts a raw text answer into a typed value for q. It never fails:
// checkboxes are false unless affirmative, unmatched select answers are kept verbatim
// and everything else is trimmed.
func Coerce(q models.Question, raw string) models.Answer {
	switch q.Type {
	case models.QuestionTypeCheckbox:
		return models.BoolAnswer(truthyAnswers[strings.ToLower(strings.TrimSpace(raw))])
	case models.QuestionTypeSelect:
		lowered := strings.ToLower(raw)
		for _, opt := range q.Options {
			if strings.Contains(lowered, strings.ToLower(opt.Label)) || strings.Contains(lowered, strings.ToLower(opt.Value)) {
				return models.TextAnswer(opt.Value)
			}
		}
		return models.TextAnswer(raw)
	default:
		return models.TextAnswer(strings.TrimSpace(raw))
	}
}
