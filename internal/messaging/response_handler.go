package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/models"
)

// Chat commands understood on messaging channels.
const (
	CommandEnhance   = "/enhance"
	CommandReset     = "/reset"
	CommandTemplates = "/templates"
	CommandHelp      = "/help"
)

// Replies sent by the ResponseHandler itself.
const (
	HelpMessage = "Commands:\n" +
		"/enhance <request> - answer a few questions and get an enhanced prompt\n" +
		"/templates - list the available questionnaires\n" +
		"/reset - abandon the current questionnaire\n" +
		"/help - show this message"
	EnhanceUsage        = "Usage: /enhance <what you need help with>"
	ResetMessage        = "Conversation reset. " + flow.GreetingPrompt
	EmptyMessageReply   = "Please send a message."
	MessageTooLongReply = "Your message is too long. Please shorten it and try again."
)

// ResponseHandler routes inbound messages from one Service into the chat flow and
// sends the replies back over the same Service. Each sender gets its own conversation.
type ResponseHandler struct {
	msgService Service
	chat       *flow.ChatFlow
	personaID  string
	showPrompt bool
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithPersona sets the persona used for channel conversations.
func WithPersona(id string) HandlerOption {
	return func(rh *ResponseHandler) { rh.personaID = id }
}

// WithEnhancedPromptEcho also sends the synthesized prompt before the model's reply.
func WithEnhancedPromptEcho() HandlerOption {
	return func(rh *ResponseHandler) { rh.showPrompt = true }
}

// NewResponseHandler creates a handler for msgService.
func NewResponseHandler(msgService Service, chat *flow.ChatFlow, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{msgService: msgService, chat: chat}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ConversationID returns the conversation id used for a canonical sender.
func (rh *ResponseHandler) ConversationID(from string) string {
	return rh.msgService.Name() + ":" + from
}

// Run starts the service and processes inbound messages until ctx is cancelled or the
// service closes its Responses channel. The service is stopped on return.
func (rh *ResponseHandler) Run(ctx context.Context) error {
	if err := rh.msgService.Start(ctx); err != nil {
		return fmt.Errorf("start %s service: %w", rh.msgService.Name(), err)
	}
	defer func() {
		if err := rh.msgService.Stop(); err != nil {
			slog.Error("ResponseHandler.Run: stop failed", "channel", rh.msgService.Name(), "error", err)
		}
	}()
	slog.Info("ResponseHandler.Run: listening", "channel", rh.msgService.Name())

	responses := rh.msgService.Responses()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-responses:
			if !ok {
				return nil
			}
			if err := rh.ProcessResponse(ctx, msg); err != nil {
				slog.Error("ResponseHandler.Run: failed to process message", "channel", rh.msgService.Name(), "error", err, "from", msg.From)
			}
		}
	}
}

// ProcessResponse handles one inbound message and sends the reply.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, msg models.InboundMessage) error {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	slog.Debug("ResponseHandler.ProcessResponse: message received", "channel", rh.msgService.Name(), "from", from, "body_length", len(msg.Body))

	for _, reply := range rh.replies(ctx, from, strings.TrimSpace(msg.Body)) {
		if err := rh.msgService.SendMessage(ctx, from, reply); err != nil {
			return fmt.Errorf("send reply to %s: %w", from, err)
		}
	}
	return nil
}

func (rh *ResponseHandler) replies(ctx context.Context, from, text string) []string {
	id := rh.ConversationID(from)
	command, arg := parseCommand(text)

	req := models.ChatRequest{Message: text, ConversationID: id, PersonaID: rh.personaID, UserID: from}
	switch command {
	case CommandHelp:
		return []string{HelpMessage}
	case CommandTemplates:
		return []string{rh.templateList()}
	case CommandReset:
		if err := rh.chat.ResetConversation(id); err != nil && !errors.Is(err, flow.ErrConversationNotFound) {
			slog.Error("ResponseHandler: reset failed", "error", err, "conversationID", id)
			return []string{flow.ErrorApology}
		}
		return []string{ResetMessage}
	case CommandEnhance:
		if arg == "" {
			return []string{EnhanceUsage}
		}
		req.Message = arg
		req.PromptMode = true
	}

	resp, err := rh.chat.HandleMessage(ctx, req)
	switch {
	case errors.Is(err, models.ErrEmptyMessage):
		return []string{EmptyMessageReply}
	case errors.Is(err, models.ErrMessageTooLong):
		return []string{MessageTooLongReply}
	case err != nil:
		slog.Error("ResponseHandler: chat turn failed", "error", err, "conversationID", id)
		return []string{flow.ErrorApology}
	}
	if rh.showPrompt && resp.EnhancedPrompt != "" {
		return []string{"Enhanced prompt:\n\n" + resp.EnhancedPrompt, resp.Message}
	}
	return []string{resp.Message}
}

func (rh *ResponseHandler) templateList() string {
	var b strings.Builder
	b.WriteString("Available templates:")
	for _, t := range rh.chat.Engine().Templates().List() {
		fmt.Fprintf(&b, "\n- %s (%s)", t.Name, t.ID)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
	}
	return b.String()
}

// parseCommand splits "/cmd rest" into a lowercased command and its argument.
// Text that is not a known command yields an empty command.
func parseCommand(text string) (command, arg string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.ToLower(head)
	switch head {
	case CommandEnhance, CommandReset, CommandTemplates, CommandHelp:
		return head, strings.TrimSpace(rest)
	}
	return "", ""
}
