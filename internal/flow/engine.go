// Package flow implements the questionnaire-driven prompt-enhancement engine and
// the chat orchestration built on top of it.
//
// The Engine walks a conversation through a template's questions, coerces and stores
// answers and synthesizes the final prompt. It performs no locking of its own: callers
// serialize access per conversation (ConversationManager does this for ChatFlow).
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/models"
)

// User-facing strings rendered by the engine.
const (
	GreetingPrompt         = "What can I help you with today?"
	MissingTemplateMessage = "I'm sorry, but I couldn't find the questionnaire template. How can I help you?"
	CompletionNotice       = "Thank you for providing all the information. I'll generate a response for you now."
	selectInstruction      = "Please select one of the options above."
)

// ErrQuestionnaireActive is returned by Start when the conversation already has an
// unfinished questionnaire.
var ErrQuestionnaireActive = errors.New("questionnaire already active")

// TemplateSource is the read side of the template catalog.
type TemplateSource interface {
	Get(id string) (models.Template, bool)
	List() []models.Template
}

// Engine is the questionnaire state machine plus template selection and synthesis.
type Engine struct {
	templates TemplateSource
	rules     *RuleTable
}

// NewEngine creates an Engine over the given templates using DefaultRules.
func NewEngine(templates TemplateSource) *Engine {
	return &Engine{templates: templates, rules: DefaultRules()}
}

// WithRules replaces the synthesis rule table and returns e.
func (e *Engine) WithRules(rules *RuleTable) *Engine {
	e.rules = rules
	return e
}

// Templates returns the template source the engine reads from.
func (e *Engine) Templates() TemplateSource {
	return e.templates
}

// ActiveTemplate returns the template referenced by the conversation's questionnaire.
// It returns false when there is no questionnaire or the template is missing.
func (e *Engine) ActiveTemplate(conv *models.Conversation) (models.Template, bool) {
	if conv.Questionnaire == nil {
		return models.Template{}, false
	}
	return e.templates.Get(conv.Questionnaire.TemplateID)
}

// Start attaches a fresh questionnaire for templateID. A synthesized questionnaire
// is replaced; an unfinished one yields ErrQuestionnaireActive.
func (e *Engine) Start(conv *models.Conversation, templateID, originalMessage string) error {
	if q := conv.Questionnaire; q != nil && !q.Complete {
		slog.Warn("Engine.Start: questionnaire already active", "conversationID", conv.ID, "templateID", q.TemplateID)
		return fmt.Errorf("%w: conversation %s on template %s", ErrQuestionnaireActive, conv.ID, q.TemplateID)
	}
	conv.Questionnaire = &models.QuestionnaireState{
		TemplateID: templateID,
		Answers:    make(map[string]models.Answer),
	}
	conv.OriginalMessage = originalMessage
	slog.Debug("Engine.Start: questionnaire started", "conversationID", conv.ID, "templateID", templateID)
	return nil
}

// CurrentQuestion renders the question awaiting an answer.
func (e *Engine) CurrentQuestion(conv *models.Conversation) string {
	if conv.Questionnaire == nil {
		return GreetingPrompt
	}
	tmpl, ok := e.templates.Get(conv.Questionnaire.TemplateID)
	if !ok {
		slog.Warn("Engine.CurrentQuestion: template missing", "conversationID", conv.ID, "templateID", conv.Questionnaire.TemplateID)
		return MissingTemplateMessage
	}
	q, ok := tmpl.QuestionAt(conv.Questionnaire.CurrentQuestionIndex)
	if !ok {
		return CompletionNotice
	}
	return RenderQuestion(q)
}

// RenderQuestion formats a question for display according to its type.
func RenderQuestion(q models.Question) string {
	switch q.Type {
	case models.QuestionTypeSelect:
		var b strings.Builder
		b.WriteString(q.Label)
		b.WriteString(":\n")
		for i, opt := range q.Options {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(opt.Label)
		}
		b.WriteString("\n\n")
		b.WriteString(selectInstruction)
		return b.String()
	case models.QuestionTypeCheckbox:
		return q.Label + " (yes/no)"
	default:
		if q.Placeholder != "" {
			return q.Label + "\n(" + q.Placeholder + ")"
		}
		return q.Label
	}
}

// StoreAnswer coerces raw for the current question and records it, replacing any
// earlier answer to the same question. It does nothing when no question is pending.
func (e *Engine) StoreAnswer(conv *models.Conversation, raw string) {
	state := conv.Questionnaire
	if state == nil {
		return
	}
	tmpl, ok := e.templates.Get(state.TemplateID)
	if !ok {
		return
	}
	q, ok := tmpl.QuestionAt(state.CurrentQuestionIndex)
	if !ok {
		return
	}
	if state.Answers == nil {
		state.Answers = make(map[string]models.Answer)
	}
	answer := Coerce(q, raw)
	state.Answers[q.ID] = answer
	slog.Debug("Engine.StoreAnswer: answer stored", "conversationID", conv.ID, "questionID", q.ID, "answer", answer.String())
}

// HasNext reports whether the current question has a successor.
func (e *Engine) HasNext(conv *models.Conversation) bool {
	tmpl, ok := e.ActiveTemplate(conv)
	if !ok {
		return false
	}
	return conv.Questionnaire.CurrentQuestionIndex < len(tmpl.Questions)-1
}

// Advance moves to the next question and renders it. The index never moves past
// the ready position, and does not move at all when the template is missing.
func (e *Engine) Advance(conv *models.Conversation) string {
	state := conv.Questionnaire
	if state == nil {
		return GreetingPrompt
	}
	tmpl, ok := e.templates.Get(state.TemplateID)
	if !ok {
		return MissingTemplateMessage
	}
	if state.CurrentQuestionIndex < len(tmpl.Questions) {
		state.CurrentQuestionIndex++
	}
	return e.CurrentQuestion(conv)
}

// Complete marks the questionnaire as synthesized.
func (e *Engine) Complete(conv *models.Conversation) {
	if conv.Questionnaire == nil {
		return
	}
	conv.Questionnaire.Complete = true
	slog.Debug("Engine.Complete: questionnaire completed", "conversationID", conv.ID, "templateID", conv.Questionnaire.TemplateID)
}

// Reset abandons any questionnaire and forgets the original message.
func (e *Engine) Reset(conv *models.Conversation) {
	conv.Questionnaire = nil
	conv.OriginalMessage = ""
}

// Phase derives the conversation's questionnaire phase. A questionnaire whose
// template is missing is reported as idle because the flow degrades to normal chat.
func (e *Engine) Phase(conv *models.Conversation) models.Phase {
	if conv.Questionnaire == nil {
		return models.PhaseIdle
	}
	tmpl, ok := e.templates.Get(conv.Questionnaire.TemplateID)
	if !ok {
		return models.PhaseIdle
	}
	return conv.Questionnaire.Phase(len(tmpl.Questions))
}
