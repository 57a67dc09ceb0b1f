// Package models defines the core data structures for PromptForge.
//
// It includes questionnaire templates, typed answers, conversation state and the
// request/response shapes shared between the flow engine, the store and the API.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a single chat message
	MaxMessageLength = 16384
	// MaxTemplateQuestions defines the maximum number of questions a template may declare
	MaxTemplateQuestions = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage     = errors.New("message is required to start a conversation")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrInvalidTemplate  = errors.New("invalid template definition")
	ErrTemplateNotFound = errors.New("template not found")
)

// ChatRequest is the inbound payload for a single chat turn.
type ChatRequest struct {
	Message        string `json:"message"`
	PersonaID      string `json:"personaId,omitempty"`
	PromptMode     bool   `json:"promptMode"`
	ConversationID string `json:"conversationId,omitempty"`
	// UserID is resolved by the transport (API caller, phone number) and never decoded from the body.
	UserID string `json:"-"`
}

// Validate performs basic validation on a ChatRequest.
// An empty message is accepted inside an existing conversation because it can be
// a deliberate blank answer to an optional question.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" && r.ConversationID == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the outcome of a single chat turn.
type ChatResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	PromptMode     bool   `json:"promptMode"`
	IsQuestion     bool   `json:"isQuestion"`
	TemplateID     string `json:"templateId,omitempty"`
	EnhancedPrompt string `json:"enhancedPrompt,omitempty"`
}

// Persona is a named assistant personality with its system instruction.
type Persona struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Icon              string `json:"icon"`
	Tagline           string `json:"tagline"`
	SystemInstruction string `json:"system_instruction"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
