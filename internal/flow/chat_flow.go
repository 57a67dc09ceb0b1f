package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/genai"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/persona"
)

// Replies used when the model call fails.
const (
	ErrorApology   = "I apologize, but I encountered an error while processing your request. Please try again."
	TroubleApology = "I apologize, but I'm having trouble generating a response right now. Please try again."
)

// ChatFlow runs one chat turn at a time per conversation: starting questionnaires in
// prompt mode, collecting answers, synthesizing the enhanced prompt and calling the model.
type ChatFlow struct {
	engine        *Engine
	conversations *ConversationManager
	llm           genai.Client
}

// NewChatFlow wires the engine, conversation manager and model client together.
func NewChatFlow(engine *Engine, conversations *ConversationManager, llm genai.Client) *ChatFlow {
	return &ChatFlow{engine: engine, conversations: conversations, llm: llm}
}

// Engine returns the questionnaire engine.
func (f *ChatFlow) Engine() *Engine {
	return f.engine
}

// HandleMessage processes one user message and returns the reply for the turn.
// Model failures become an apology reply; only validation and storage errors are returned.
func (f *ChatFlow) HandleMessage(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return models.ChatResponse{}, err
	}
	id := req.ConversationID
	if id == "" {
		id = NewConversationID()
	}

	unlock := f.conversations.Lock(id)
	defer unlock()

	// A blank message can only answer an open question, so it never creates a conversation.
	if strings.TrimSpace(req.Message) == "" {
		if _, err := f.conversations.Get(id); errors.Is(err, ErrConversationNotFound) {
			return models.ChatResponse{}, models.ErrEmptyMessage
		}
	}

	conv, err := f.conversations.GetOrCreate(id, req.UserID, req.PersonaID)
	if err != nil {
		return models.ChatResponse{}, err
	}
	if req.PersonaID != "" {
		conv.PersonaID = req.PersonaID
	}
	slog.Debug("ChatFlow.HandleMessage: turn started", "conversationID", id, "promptMode", req.PromptMode, "phase", f.engine.Phase(conv))

	if conv.Questionnaire != nil {
		if _, ok := f.engine.ActiveTemplate(conv); !ok {
			slog.Warn("ChatFlow.HandleMessage: questionnaire template missing, continuing as normal chat",
				"conversationID", id, "templateID", conv.Questionnaire.TemplateID)
			f.engine.Reset(conv)
		}
	}

	switch phase := f.engine.Phase(conv); {
	case req.PromptMode && (phase == models.PhaseIdle || phase == models.PhaseSynthesized):
		if resp, started, err := f.startQuestionnaire(conv, req); started || err != nil {
			return resp, err
		}
	case phase == models.PhaseAwaitingAnswer || phase == models.PhaseReady:
		return f.answerQuestion(ctx, conv, req)
	}
	return f.chat(ctx, conv, req)
}

func (f *ChatFlow) startQuestionnaire(conv *models.Conversation, req models.ChatRequest) (models.ChatResponse, bool, error) {
	if strings.TrimSpace(req.Message) == "" {
		return models.ChatResponse{}, false, models.ErrEmptyMessage
	}
	templateID := f.engine.Select(req.Message)
	if err := f.engine.Start(conv, templateID, req.Message); err != nil {
		return models.ChatResponse{}, false, err
	}
	if _, ok := f.engine.ActiveTemplate(conv); !ok {
		slog.Warn("ChatFlow.startQuestionnaire: selected template missing", "conversationID", conv.ID, "templateID", templateID)
		f.engine.Reset(conv)
		return models.ChatResponse{}, false, nil
	}
	conv.Touch()
	if err := f.conversations.Save(conv); err != nil {
		return models.ChatResponse{}, false, err
	}
	slog.Info("ChatFlow: questionnaire started", "conversationID", conv.ID, "templateID", templateID)
	return models.ChatResponse{
		Message:        f.engine.CurrentQuestion(conv),
		ConversationID: conv.ID,
		PromptMode:     true,
		IsQuestion:     true,
		TemplateID:     templateID,
	}, true, nil
}

func (f *ChatFlow) answerQuestion(ctx context.Context, conv *models.Conversation, req models.ChatRequest) (models.ChatResponse, error) {
	templateID := conv.Questionnaire.TemplateID
	f.engine.StoreAnswer(conv, req.Message)

	if f.engine.HasNext(conv) {
		next := f.engine.Advance(conv)
		conv.Touch()
		if err := f.conversations.Save(conv); err != nil {
			return models.ChatResponse{}, err
		}
		return models.ChatResponse{
			Message:        next,
			ConversationID: conv.ID,
			PromptMode:     true,
			IsQuestion:     true,
			TemplateID:     templateID,
		}, nil
	}

	enhanced := f.engine.Synthesize(conv)
	slog.Info("ChatFlow: enhanced prompt synthesized", "conversationID", conv.ID, "templateID", templateID, "length", len(enhanced))
	reply := f.generate(ctx, conv, enhanced)
	f.engine.Complete(conv)

	userText := conv.OriginalMessage
	if userText == "" {
		userText = req.Message
	}
	if err := f.record(conv, userText, reply); err != nil {
		return models.ChatResponse{}, err
	}
	return models.ChatResponse{
		Message:        reply,
		ConversationID: conv.ID,
		TemplateID:     templateID,
		EnhancedPrompt: enhanced,
	}, nil
}

func (f *ChatFlow) chat(ctx context.Context, conv *models.Conversation, req models.ChatRequest) (models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return models.ChatResponse{}, models.ErrEmptyMessage
	}
	reply := f.generate(ctx, conv, req.Message)
	if err := f.record(conv, req.Message, reply); err != nil {
		return models.ChatResponse{}, err
	}
	return models.ChatResponse{Message: reply, ConversationID: conv.ID}, nil
}

// generate calls the model with the conversation's persona and never fails.
func (f *ChatFlow) generate(ctx context.Context, conv *models.Conversation, userMessage string) string {
	reply, err := f.llm.GenerateResponse(ctx, persona.SystemInstruction(conv.PersonaID), userMessage)
	switch {
	case err == nil:
		return reply
	case errors.Is(err, genai.ErrEmptyResponse), errors.Is(err, genai.ErrNoChoicesReturned):
		slog.Error("ChatFlow.generate: model returned no usable reply", "error", err, "conversationID", conv.ID)
		return TroubleApology
	default:
		slog.Error("ChatFlow.generate: model call failed", "error", err, "conversationID", conv.ID)
		return ErrorApology
	}
}

func (f *ChatFlow) record(conv *models.Conversation, userText, reply string) error {
	if err := f.conversations.AppendMessage(conv, models.MessageRoleUser, userText); err != nil {
		return err
	}
	if err := f.conversations.AppendMessage(conv, models.MessageRoleAssistant, reply); err != nil {
		return err
	}
	return f.conversations.Save(conv)
}

// ResetConversation abandons any questionnaire on the conversation.
func (f *ChatFlow) ResetConversation(id string) error {
	unlock := f.conversations.Lock(id)
	defer unlock()

	conv, err := f.conversations.Get(id)
	if err != nil {
		return err
	}
	f.engine.Reset(conv)
	slog.Info("ChatFlow.ResetConversation: questionnaire cleared", "conversationID", id)
	return f.conversations.Save(conv)
}

// Conversation returns a copy of the conversation, safe to use without the lock.
func (f *ChatFlow) Conversation(id string) (models.Conversation, error) {
	unlock := f.conversations.Lock(id)
	defer unlock()

	conv, err := f.conversations.Get(id)
	if err != nil {
		return models.Conversation{}, err
	}
	snapshot := *conv
	snapshot.Messages = make([]models.Message, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	if conv.Questionnaire != nil {
		q := *conv.Questionnaire
		q.Answers = make(map[string]models.Answer, len(conv.Questionnaire.Answers))
		for k, v := range conv.Questionnaire.Answers {
			q.Answers[k] = v
		}
		snapshot.Questionnaire = &q
	}
	return snapshot, nil
}

// DeleteConversation removes the conversation entirely.
func (f *ChatFlow) DeleteConversation(id string) error {
	unlock := f.conversations.Lock(id)
	defer unlock()
	return f.conversations.Delete(id)
}
