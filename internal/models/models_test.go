package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr error
	}{
		{"new conversation with message", ChatRequest{Message: "hello"}, nil},
		{"new conversation blank message", ChatRequest{Message: "   "}, ErrEmptyMessage},
		{"blank answer inside conversation", ChatRequest{Message: "", ConversationID: "c1"}, nil},
		{"message too long", ChatRequest{Message: strings.Repeat("x", MaxMessageLength+1)}, ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"a": "b"})
	if ok.Status != "ok" || ok.Result == nil {
		t.Errorf("Success() = %+v", ok)
	}
	withMsg := SuccessWithMessage("created", nil)
	if withMsg.Status != "ok" || withMsg.Message != "created" {
		t.Errorf("SuccessWithMessage() = %+v", withMsg)
	}
	fail := Error("boom")
	if fail.Status != "error" || fail.Message != "boom" || fail.Result != nil {
		t.Errorf("Error() = %+v", fail)
	}

	data, err := json.Marshal(Error("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"error","message":"boom"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestAnswer(t *testing.T) {
	tests := []struct {
		name      string
		answer    Answer
		wantEmpty bool
		wantStr   string
		wantJSON  string
	}{
		{"zero value", Answer{}, true, "", `""`},
		{"text", TextAnswer("Go"), false, "Go", `"Go"`},
		{"true", BoolAnswer(true), false, "true", `true`},
		{"false", BoolAnswer(false), true, "false", `false`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.answer.IsEmpty(); got != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.wantEmpty)
			}
			if got := tt.answer.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
			data, err := json.Marshal(tt.answer)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.wantJSON {
				t.Errorf("JSON = %s, want %s", data, tt.wantJSON)
			}
		})
	}
}

func TestAnswerUnmarshalMap(t *testing.T) {
	var answers map[string]Answer
	if err := json.Unmarshal([]byte(`{"include-tests":true,"framework":"chi"}`), &answers); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !answers["include-tests"].IsBool() || !answers["include-tests"].Bool() {
		t.Errorf("include-tests = %#v, want bool true", answers["include-tests"])
	}
	if answers["framework"].Text() != "chi" {
		t.Errorf("framework = %q, want chi", answers["framework"].Text())
	}

	var bad Answer
	if err := json.Unmarshal([]byte(`42`), &bad); err == nil {
		t.Error("expected error for numeric answer")
	}
}

func TestQuestionnaireStatePhase(t *testing.T) {
	var none *QuestionnaireState
	if got := none.Phase(3); got != PhaseIdle {
		t.Errorf("nil state phase = %s, want idle", got)
	}

	s := &QuestionnaireState{TemplateID: "general", Answers: map[string]Answer{}}
	if got := s.Phase(3); got != PhaseAwaitingAnswer {
		t.Errorf("phase = %s, want awaiting_answer", got)
	}
	s.CurrentQuestionIndex = 3
	if got := s.Phase(3); got != PhaseReady {
		t.Errorf("phase = %s, want ready", got)
	}
	s.Complete = true
	if got := s.Phase(3); got != PhaseSynthesized {
		t.Errorf("phase = %s, want synthesized", got)
	}
}

func TestConversationAddMessage(t *testing.T) {
	conv := NewConversation("c1", "u1", "default")
	conv.AddMessage(MessageRoleUser, "hi")
	conv.AddMessage(MessageRoleAssistant, "hello")
	if len(conv.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[1].Role != MessageRoleAssistant {
		t.Errorf("second role = %s", conv.Messages[1].Role)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Error("UpdatedAt before CreatedAt")
	}
}
