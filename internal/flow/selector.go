package flow

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/templates"
)

// Select picks the template whose keywords best match message. Each keyword counts
// once if it occurs anywhere in the lowercased message. Ties go to the template
// registered first; a best score of zero selects the general template.
func (e *Engine) Select(message string) string {
	lowered := strings.ToLower(message)

	bestID := ""
	bestScore := -1
	for _, t := range e.templates.List() {
		score := 0
		for _, kw := range t.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			bestID, bestScore = t.ID, score
		}
	}

	if bestScore <= 0 {
		slog.Debug("Engine.Select: no keyword match, using default", "templateID", templates.DefaultTemplateID)
		return templates.DefaultTemplateID
	}
	slog.Debug("Engine.Select: template selected", "templateID", bestID, "score", bestScore)
	return bestID
}
