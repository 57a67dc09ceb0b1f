// Package testutil provides common test helpers for PromptForge's HTTP and flow tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/templates"
)

// TB is the subset of testing.TB used by the helpers, so they can be tested themselves.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// FakeLLM is a genai.Client that answers every call with Reply and records the prompts.
type FakeLLM struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Prompts []string
}

func (f *FakeLLM) GenerateResponse(_ context.Context, _ string, userMessage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, userMessage)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

// Calls returns how many times the model was called.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// Env bundles the in-memory dependencies of a chat flow.
type Env struct {
	Chat      *flow.ChatFlow
	Templates *templates.Store
	Store     store.Store
}

// NewChatEnv creates a chat flow over the default template catalog and an in-memory store.
func NewChatEnv(t TB, llm *FakeLLM) Env {
	t.Helper()
	st := store.NewInMemoryStore()
	cm, err := flow.NewConversationManager(st, 0)
	if err != nil {
		t.Fatalf("NewConversationManager: %v", err)
	}
	tmpl := templates.NewDefaultStore()
	return Env{
		Chat:      flow.NewChatFlow(flow.NewEngine(tmpl), cm, llm),
		Templates: tmpl,
		Store:     st,
	}
}

// SampleTemplate returns a valid two-question template with the given id.
func SampleTemplate(id string) models.Template {
	return models.Template{
		ID:          id,
		Name:        "Sample",
		Description: "Used in tests",
		Questions: []models.Question{
			{ID: "topic", Type: models.QuestionTypeText, Label: "Topic", Required: true},
			{ID: "tone", Type: models.QuestionTypeSelect, Label: "Tone", Options: []models.Option{
				{Value: "formal", Label: "Formal"},
				{Value: "casual", Label: "Casual"},
			}},
		},
		Keywords: []string{"sample"},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a response envelope and validates its status field.
// The result is re-encoded into result when it is non-nil.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus, result interface{}) models.APIResponse {
	t.Helper()
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return models.APIResponse{}
	}
	if envelope.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, envelope.Status, envelope.Message)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return models.APIResponse{Status: envelope.Status, Message: envelope.Message, Result: result}
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
