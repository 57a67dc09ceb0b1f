package models

import "time"

// Phase is the derived lifecycle position of a conversation's questionnaire.
type Phase string

const (
	// PhaseIdle means no questionnaire is attached.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingAnswer means the current index points at an unanswered question.
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	// PhaseReady means every question has been visited and the prompt can be synthesized.
	PhaseReady Phase = "ready"
	// PhaseSynthesized means the prompt was synthesized and the flow finalized.
	PhaseSynthesized Phase = "synthesized"
)

// QuestionnaireState tracks one in-progress walk through a template's questions.
type QuestionnaireState struct {
	TemplateID           string            `json:"templateId"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	Answers              map[string]Answer `json:"answers"`
	Complete             bool              `json:"complete"`
}

// Phase derives the lifecycle phase given the number of questions in the template.
// A nil state is idle.
func (s *QuestionnaireState) Phase(questionCount int) Phase {
	switch {
	case s == nil:
		return PhaseIdle
	case s.Complete:
		return PhaseSynthesized
	case s.CurrentQuestionIndex >= questionCount:
		return PhaseReady
	default:
		return PhaseAwaitingAnswer
	}
}

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation carries questionnaire state and message history for one chat.
type Conversation struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId,omitempty"`
	PersonaID       string              `json:"personaId,omitempty"`
	OriginalMessage string              `json:"originalMessage,omitempty"`
	Questionnaire   *QuestionnaireState `json:"questionnaire,omitempty"`
	Messages        []Message           `json:"messages"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// NewConversation returns an empty conversation with the given id.
func NewConversation(id, userID, personaID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		PersonaID: personaID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch marks the conversation as active now.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
}

// AddMessage appends a transcript entry and bumps UpdatedAt.
func (c *Conversation) AddMessage(role MessageRole, content string) Message {
	msg := Message{Role: role, Content: content, Timestamp: time.Now()}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return msg
}
