package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/PromptForge/internal/genai"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/persona"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/templates"
)

type llmCall struct {
	systemInstruction string
	userMessage       string
}

// fakeLLM records every call and answers with a fixed reply or error.
type fakeLLM struct {
	mu    sync.Mutex
	calls []llmCall
	reply string
	err   error
}

func (f *fakeLLM) GenerateResponse(_ context.Context, systemInstruction, userMessage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, llmCall{systemInstruction, userMessage})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) lastCall(t *testing.T) llmCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("model was never called")
	}
	return f.calls[len(f.calls)-1]
}

// mutableSource is a TemplateSource whose templates can be removed mid-conversation.
type mutableSource struct {
	mu    sync.Mutex
	order []string
	byID  map[string]models.Template
}

func newMutableSource(ts ...models.Template) *mutableSource {
	s := &mutableSource{byID: make(map[string]models.Template)}
	for _, t := range ts {
		s.order = append(s.order, t.ID)
		s.byID[t.ID] = t
	}
	return s
}

func (s *mutableSource) Get(id string) (models.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	return t, ok
}

func (s *mutableSource) List() []models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Template
	for _, id := range s.order {
		if t, ok := s.byID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *mutableSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func newTestFlow(t *testing.T, source TemplateSource, llm genai.Client) (*ChatFlow, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	cm, err := NewConversationManager(st, 0)
	if err != nil {
		t.Fatalf("NewConversationManager: %v", err)
	}
	return NewChatFlow(NewEngine(source), cm, llm), st
}

func send(t *testing.T, f *ChatFlow, req models.ChatRequest) models.ChatResponse {
	t.Helper()
	resp, err := f.HandleMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", req.Message, err)
	}
	return resp
}

func TestChatFlowGeneralQuestionnaire(t *testing.T) {
	llm := &fakeLLM{reply: "Here is your plan."}
	f, st := newTestFlow(t, templates.NewDefaultStore(), llm)

	first := send(t, f, models.ChatRequest{Message: "help me plan a trip", PromptMode: true})
	if !first.IsQuestion || !first.PromptMode || first.TemplateID != "general" {
		t.Fatalf("first response = %+v", first)
	}
	if first.Message != "Main Goal\n(What are you trying to accomplish?)" {
		t.Errorf("first question = %q", first.Message)
	}
	if first.ConversationID == "" {
		t.Fatal("no conversation id assigned")
	}
	id := first.ConversationID

	answers := []string{"Plan a trip to Kyoto", "", "", "bullet list", "Brief please"}
	wantNext := []string{
		"Context\n(Provide any relevant background information)",
		"Specific Requirements\n(List any specific requirements or constraints)",
		"Preferred Format\n(How would you like the response formatted?)",
		"Level of Detail:\n- Brief\n- Moderate\n- Detailed\n- Comprehensive\n\nPlease select one of the options above.",
		"Additional Notes\n(Any other information that might be helpful)",
	}
	for i, a := range answers {
		resp := send(t, f, models.ChatRequest{Message: a, ConversationID: id})
		if !resp.IsQuestion || resp.Message != wantNext[i] {
			t.Fatalf("answer %d: response = %+v", i, resp)
		}
	}
	if len(llm.calls) != 0 {
		t.Fatalf("model called %d times during questionnaire", len(llm.calls))
	}

	final := send(t, f, models.ChatRequest{Message: "on a budget", ConversationID: id})
	if final.IsQuestion || final.PromptMode {
		t.Errorf("final response still a question: %+v", final)
	}
	if final.Message != "Here is your plan." {
		t.Errorf("final message = %q", final.Message)
	}
	wantPrompt := strings.Join([]string{
		"Original request: help me plan a trip",
		"I need help with the following:",
		"Main Goal: Plan a trip to Kyoto",
		"Preferred Format: bullet list",
		"Level of Detail: brief",
		"Additional Notes:",
		"on a budget",
	}, "\n\n")
	if final.EnhancedPrompt != wantPrompt {
		t.Errorf("enhanced prompt =\n%q\nwant\n%q", final.EnhancedPrompt, wantPrompt)
	}
	call := llm.lastCall(t)
	if call.userMessage != wantPrompt {
		t.Errorf("model received %q", call.userMessage)
	}
	if call.systemInstruction != persona.SystemInstruction(persona.DefaultID) {
		t.Errorf("system instruction = %q", call.systemInstruction)
	}

	msgs, err := st.GetMessages(id)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != models.MessageRoleUser || msgs[0].Content != "help me plan a trip" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != models.MessageRoleAssistant || msgs[1].Content != "Here is your plan." {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	// A new prompt-mode message after synthesis starts a fresh questionnaire.
	again := send(t, f, models.ChatRequest{Message: "debug my python script", ConversationID: id, PromptMode: true})
	if !again.IsQuestion || again.TemplateID != "code-generation" {
		t.Errorf("restart response = %+v", again)
	}
}

func TestChatFlowNormalChat(t *testing.T) {
	llm := &fakeLLM{reply: "hi"}
	f, _ := newTestFlow(t, templates.NewDefaultStore(), llm)

	resp := send(t, f, models.ChatRequest{Message: "hello", PersonaID: "tutor"})
	if resp.Message != "hi" || resp.IsQuestion || resp.TemplateID != "" {
		t.Errorf("response = %+v", resp)
	}
	if got := llm.lastCall(t); got.userMessage != "hello" || got.systemInstruction != persona.SystemInstruction("tutor") {
		t.Errorf("model call = %+v", got)
	}

	conv, err := f.Conversation(resp.ConversationID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if conv.PersonaID != "tutor" || len(conv.Messages) != 2 {
		t.Errorf("conversation = %+v", conv)
	}
	conv.Messages[0].Content = "changed"
	again, _ := f.Conversation(resp.ConversationID)
	if again.Messages[0].Content != "hello" {
		t.Error("Conversation returned shared message slice")
	}
}

func TestChatFlowModelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"empty response", genai.ErrEmptyResponse, TroubleApology},
		{"no choices", genai.ErrNoChoicesReturned, TroubleApology},
		{"transport failure", errors.New("connection refused"), ErrorApology},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{err: tt.err})
			resp := send(t, f, models.ChatRequest{Message: "hello"})
			if resp.Message != tt.want {
				t.Errorf("message = %q, want %q", resp.Message, tt.want)
			}
		})
	}
}

func TestChatFlowValidation(t *testing.T) {
	f, _ := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})

	if _, err := f.HandleMessage(context.Background(), models.ChatRequest{Message: "  "}); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("blank new conversation error = %v", err)
	}
	long := models.ChatRequest{Message: strings.Repeat("x", models.MaxMessageLength+1)}
	if _, err := f.HandleMessage(context.Background(), long); !errors.Is(err, models.ErrMessageTooLong) {
		t.Errorf("long message error = %v", err)
	}

	resp := send(t, f, models.ChatRequest{Message: "hello"})
	_, err := f.HandleMessage(context.Background(), models.ChatRequest{ConversationID: resp.ConversationID})
	if !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("blank message outside questionnaire error = %v", err)
	}
	_, err = f.HandleMessage(context.Background(), models.ChatRequest{ConversationID: resp.ConversationID, PromptMode: true})
	if !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("blank prompt-mode message error = %v", err)
	}
}

func TestChatFlowMissingTemplateDegrades(t *testing.T) {
	temp := models.Template{
		ID: "temp", Name: "Temp",
		Questions: []models.Question{
			{ID: "a", Type: models.QuestionTypeText, Label: "A"},
			{ID: "b", Type: models.QuestionTypeText, Label: "B"},
		},
		Keywords: []string{"temp"},
	}
	source := newMutableSource(temp)
	llm := &fakeLLM{reply: "plain reply"}
	f, _ := newTestFlow(t, source, llm)

	first := send(t, f, models.ChatRequest{Message: "temp request", PromptMode: true})
	if first.TemplateID != "temp" || first.Message != "A" {
		t.Fatalf("first = %+v", first)
	}

	source.remove("temp")
	resp := send(t, f, models.ChatRequest{Message: "answer a", ConversationID: first.ConversationID})
	if resp.IsQuestion || resp.Message != "plain reply" {
		t.Errorf("response after template removal = %+v", resp)
	}
	if got := llm.lastCall(t).userMessage; got != "answer a" {
		t.Errorf("model received %q", got)
	}
	conv, _ := f.Conversation(first.ConversationID)
	if conv.Questionnaire != nil {
		t.Error("questionnaire not cleared")
	}
}

func TestChatFlowPromptModeWithoutTemplates(t *testing.T) {
	llm := &fakeLLM{reply: "direct"}
	f, _ := newTestFlow(t, newMutableSource(), llm)

	resp := send(t, f, models.ChatRequest{Message: "anything", PromptMode: true})
	if resp.IsQuestion || resp.Message != "direct" {
		t.Errorf("response = %+v", resp)
	}
}

func TestChatFlowResetConversation(t *testing.T) {
	llm := &fakeLLM{reply: "chat"}
	f, _ := newTestFlow(t, templates.NewDefaultStore(), llm)

	first := send(t, f, models.ChatRequest{Message: "write a blog post", PromptMode: true})
	if first.TemplateID != "content-creation" {
		t.Fatalf("first = %+v", first)
	}
	if err := f.ResetConversation(first.ConversationID); err != nil {
		t.Fatalf("ResetConversation: %v", err)
	}
	resp := send(t, f, models.ChatRequest{Message: "Blog Post", ConversationID: first.ConversationID})
	if resp.IsQuestion || resp.Message != "chat" {
		t.Errorf("after reset = %+v", resp)
	}

	if err := f.ResetConversation("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("reset unknown = %v", err)
	}
}

func TestChatFlowDeleteConversation(t *testing.T) {
	f, st := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	resp := send(t, f, models.ChatRequest{Message: "hello"})

	if err := f.DeleteConversation(resp.ConversationID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := f.Conversation(resp.ConversationID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Conversation after delete = %v", err)
	}
	if conv, _ := st.GetConversation(resp.ConversationID); conv != nil {
		t.Error("store still holds the conversation")
	}
	if err := f.DeleteConversation(resp.ConversationID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestChatFlowProvidedIDIsAdopted(t *testing.T) {
	f, _ := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	resp := send(t, f, models.ChatRequest{Message: "hello", ConversationID: "client-chosen"})
	if resp.ConversationID != "client-chosen" {
		t.Errorf("conversation id = %q", resp.ConversationID)
	}
}

func TestConversationManagerRestoresEvicted(t *testing.T) {
	st := store.NewInMemoryStore()
	cm, err := NewConversationManager(st, 1)
	if err != nil {
		t.Fatalf("NewConversationManager: %v", err)
	}

	a, err := cm.GetOrCreate("a", "u1", "tutor")
	if err != nil {
		t.Fatalf("GetOrCreate a: %v", err)
	}
	a.OriginalMessage = "lost"
	a.Questionnaire = &models.QuestionnaireState{TemplateID: "general", Answers: map[string]models.Answer{}}
	if err := cm.AppendMessage(a, models.MessageRoleUser, "hi"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := cm.Save(a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := cm.GetOrCreate("b", "u2", ""); err != nil {
		t.Fatalf("GetOrCreate b: %v", err)
	}
	if cm.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cm.Len())
	}

	restored, err := cm.Get("a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if restored == a {
		t.Fatal("expected a reloaded conversation")
	}
	if restored.UserID != "u1" || restored.PersonaID != "tutor" {
		t.Errorf("restored = %+v", restored)
	}
	if restored.Questionnaire != nil || restored.OriginalMessage != "" {
		t.Error("questionnaire state survived eviction")
	}
	if len(restored.Messages) != 1 || restored.Messages[0].Content != "hi" {
		t.Errorf("restored messages = %+v", restored.Messages)
	}

	if _, err := cm.Get("nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Get unknown = %v", err)
	}
}

func TestConversationManagerLock(t *testing.T) {
	cm, err := NewConversationManager(store.NewInMemoryStore(), 0)
	if err != nil {
		t.Fatalf("NewConversationManager: %v", err)
	}

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := cm.Lock("shared")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if len(cm.locks) != 0 {
		t.Errorf("%d locks left behind", len(cm.locks))
	}
}

func TestConversationManagerPurgeIdle(t *testing.T) {
	st := store.NewInMemoryStore()
	cm, err := NewConversationManager(st, 0)
	if err != nil {
		t.Fatalf("NewConversationManager: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := st.SaveConversation(models.Conversation{ID: "stored-old", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	// Cached copy is fresher than the stored record, so it survives.
	touched := models.Conversation{ID: "touched", CreatedAt: old, UpdatedAt: old}
	if err := st.SaveConversation(touched); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	unlock := cm.Lock("touched")
	conv, err := cm.Get("touched")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	conv.UpdatedAt = time.Now()
	unlock()
	if _, err := cm.GetOrCreate("fresh", "u", persona.DefaultID); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	purged, err := cm.PurgeIdle(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PurgeIdle: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if got, _ := st.GetConversation("stored-old"); got != nil {
		t.Error("stored-old still present")
	}
	for _, id := range []string{"touched", "fresh"} {
		if got, _ := st.GetConversation(id); got == nil {
			t.Errorf("%s was purged", id)
		}
	}
}

func TestPurgeIdleKeepsActiveQuestionnaire(t *testing.T) {
	f, st := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	old := time.Now().Add(-2 * time.Hour)
	if err := st.SaveConversation(models.Conversation{ID: "returning", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	first := send(t, f, models.ChatRequest{ConversationID: "returning", Message: "write a blog post about Go", PromptMode: true})
	if !first.IsQuestion || first.TemplateID != "content-creation" {
		t.Fatalf("start = %+v", first)
	}
	second := send(t, f, models.ChatRequest{ConversationID: "returning", Message: "blog post"})
	if !second.IsQuestion {
		t.Fatalf("first answer = %+v", second)
	}
	stored, err := st.GetConversation("returning")
	if err != nil || stored == nil {
		t.Fatalf("GetConversation: %v, %v", stored, err)
	}
	if !stored.UpdatedAt.After(old) {
		t.Errorf("stored UpdatedAt = %v, not bumped by questionnaire turns", stored.UpdatedAt)
	}

	purged, err := f.conversations.PurgeIdle(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeIdle: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}
	third := send(t, f, models.ChatRequest{ConversationID: "returning", Message: "developers"})
	if !third.IsQuestion || third.TemplateID != "content-creation" {
		t.Errorf("answer after sweep = %+v, want the next question", third)
	}
}

func TestPurgeIdleSkipsCachedOpenQuestionnaire(t *testing.T) {
	f, st := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	resp := send(t, f, models.ChatRequest{Message: "write a blog post", PromptMode: true})

	// Age both copies so only the questionnaire keeps it alive.
	old := time.Now().Add(-48 * time.Hour)
	unlock := f.conversations.Lock(resp.ConversationID)
	conv, err := f.conversations.Get(resp.ConversationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	conv.UpdatedAt = old
	if err := f.conversations.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	unlock()

	purged, err := f.conversations.PurgeIdle(time.Now().Add(-24 * time.Hour))
	if err != nil || purged != 0 {
		t.Fatalf("PurgeIdle = %d, %v; want 0, nil", purged, err)
	}
	if got, _ := st.GetConversation(resp.ConversationID); got == nil {
		t.Error("conversation with open questionnaire was deleted")
	}
}

func TestChatFlowBlankMessageCreatesNothing(t *testing.T) {
	f, st := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	for _, req := range []models.ChatRequest{
		{ConversationID: "ghost", Message: "  "},
		{ConversationID: "ghost", Message: "", PromptMode: true},
	} {
		if _, err := f.HandleMessage(context.Background(), req); !errors.Is(err, models.ErrEmptyMessage) {
			t.Errorf("HandleMessage(%+v) error = %v, want ErrEmptyMessage", req, err)
		}
	}
	if got, _ := st.GetConversation("ghost"); got != nil {
		t.Errorf("blank message stored conversation %+v", got)
	}
	if f.conversations.Len() != 0 {
		t.Errorf("cache holds %d conversations", f.conversations.Len())
	}
}

func TestChatFlowConcurrentConversations(t *testing.T) {
	f, _ := newTestFlow(t, templates.NewDefaultStore(), &fakeLLM{reply: "ok"})
	first := send(t, f, models.ChatRequest{Message: "hello"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.HandleMessage(context.Background(), models.ChatRequest{Message: "again", ConversationID: first.ConversationID})
		}()
	}
	wg.Wait()

	conv, err := f.Conversation(first.ConversationID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv.Messages) != 42 {
		t.Errorf("messages = %d, want 42", len(conv.Messages))
	}
}
