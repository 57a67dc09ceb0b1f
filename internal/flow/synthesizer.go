package flow

import (
	"regexp"
	"sort"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenericRequest is synthesized when there is nothing better to send.
const GenericRequest = "Please help me with my request."

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// Formatter renders a non-empty answer for the placeholder of questionID.
type Formatter func(questionID string, answer models.Answer) string

// RuleTable maps question ids to the formatter used for their placeholder.
// Ids without a rule use the fallback, which substitutes the plain answer.
type RuleTable struct {
	byID     map[string]Formatter
	fallback Formatter
}

// NewRuleTable creates an empty table whose fallback substitutes the plain answer.
func NewRuleTable() *RuleTable {
	return &RuleTable{
		byID:     make(map[string]Formatter),
		fallback: func(_ string, a models.Answer) string { return a.String() },
	}
}

// Register associates questionIDs with f, replacing earlier rules for them.
func (r *RuleTable) Register(f Formatter, questionIDs ...string) *RuleTable {
	for _, id := range questionIDs {
		r.byID[id] = f
	}
	return r
}

// Format renders answer for questionID. Empty answers always render as "".
func (r *RuleTable) Format(questionID string, answer models.Answer) string {
	if answer.IsEmpty() {
		return ""
	}
	if f, ok := r.byID[questionID]; ok {
		return f(questionID, answer)
	}
	return r.fallback(questionID, answer)
}

// LongFormQuestionIDs are rendered as a titled block of their own.
var LongFormQuestionIDs = []string{
	"requirements", "input-output", "code-style", "key-points", "seo-keywords",
	"context", "specific-requirements", "additional-context", "additional-instructions", "additional-notes",
}

// DefaultRules returns the rule table for the built-in catalog.
func DefaultRules() *RuleTable {
	return NewRuleTable().
		Register(func(_ string, a models.Answer) string { return " using " + a.String() }, "framework").
		Register(func(id string, a models.Answer) string { return "\n" + TitleLabel(id) + ":\n" + a.String() + "\n" }, LongFormQuestionIDs...).
		Register(func(_ string, _ models.Answer) string { return "\nPlease include unit tests." }, "include-tests").
		Register(func(_ string, _ models.Answer) string { return "\nPlease include usage examples." }, "include-examples").
		Register(func(_ string, a models.Answer) string { return "Preferred Format: " + a.String() }, "preferred-format")
}

// TitleLabel turns a question id into a display label: "seo-keywords" becomes "Seo Keywords".
func TitleLabel(questionID string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(questionID, "-", " "))
}

// Synthesize renders the enhanced prompt for the conversation's questionnaire.
func (e *Engine) Synthesize(conv *models.Conversation) string {
	state := conv.Questionnaire
	if state == nil || len(state.Answers) == 0 {
		if conv.OriginalMessage != "" {
			return conv.OriginalMessage
		}
		return GenericRequest
	}

	tmpl, ok := e.templates.Get(state.TemplateID)
	if !ok || tmpl.PromptTemplate == "" {
		return synthesizeFallback(conv.OriginalMessage, tmpl, state.Answers)
	}

	prompt := tmpl.PromptTemplate
	for id, answer := range state.Answers {
		placeholder := "{" + id + "}"
		if !strings.Contains(prompt, placeholder) {
			continue
		}
		prompt = strings.ReplaceAll(prompt, placeholder, e.rules.Format(id, answer))
	}
	prompt = placeholderPattern.ReplaceAllString(prompt, "")
	prompt = normalizeLines(prompt)

	if conv.OriginalMessage != "" {
		return "Original request: " + conv.OriginalMessage + "\n\n" + prompt
	}
	return prompt
}

// normalizeLines trims every line, drops blank ones and separates the rest with a blank line.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n\n")
}

// synthesizeFallback lists non-empty answers under the original message, in question
// order first and then by id for answers the template does not declare.
func synthesizeFallback(originalMessage string, tmpl models.Template, answers map[string]models.Answer) string {
	header := originalMessage
	if header == "" {
		header = "Request:"
	}
	parts := []string{header}

	seen := make(map[string]bool, len(answers))
	appendAnswer := func(id string) {
		seen[id] = true
		a, ok := answers[id]
		if !ok || a.IsEmpty() {
			return
		}
		parts = append(parts, TitleLabel(id)+": "+a.String())
	}
	for _, q := range tmpl.Questions {
		appendAnswer(q.ID)
	}
	var rest []string
	for id := range answers {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		appendAnswer(id)
	}
	return strings.Join(parts, "\n\n")
}
