package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppChannel is the Name of WhatsAppService.
const WhatsAppChannel = "whatsapp"

// WhatsAppService implements Service over a Whatsmeow-based client.
type WhatsAppService struct {
	client whatsapp.WhatsAppSender
	events whatsapp.EventSource // nil when the client cannot deliver events
	inbox  *inbox

	mu        sync.Mutex
	handlerID uint32
}

// NewWhatsAppService wraps client. Inbound messages are only delivered when client
// also implements whatsapp.EventSource.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{client: client, inbox: newInbox()}
	if src, ok := client.(whatsapp.EventSource); ok {
		s.events = src
	} else {
		slog.Debug("WhatsAppService: client delivers no events, inbound disabled")
	}
	return s
}

func (s *WhatsAppService) Name() string { return WhatsAppChannel }

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start subscribes to client events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlerID == 0 {
		s.handlerID = s.events.AddEventHandler(s.handleEvent)
		slog.Debug("WhatsAppService.Start: event handler registered", "handlerID", s.handlerID)
	}
	return nil
}

// Stop unsubscribes and closes the Responses channel. It is safe to call twice.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	if s.events != nil && s.handlerID != 0 {
		s.events.RemoveEventHandler(s.handlerID)
		s.handlerID = 0
	}
	s.mu.Unlock()
	s.inbox.close()
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends body to the canonicalized recipient.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonical)
		return err
	}
	slog.Debug("WhatsAppService.SendMessage: sent", "to", canonical, "body_length", len(body))
	return nil
}

func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.inbox.ch
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	if msg.Message == nil || msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}

	var text string
	switch {
	case msg.Message.Conversation != nil:
		text = *msg.Message.Conversation
	case msg.Message.ExtendedTextMessage != nil && msg.Message.ExtendedTextMessage.Text != nil:
		text = *msg.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService: ignoring non-text message", "from", msg.Info.Sender.String())
		return
	}

	s.inbox.emit(models.InboundMessage{
		Channel: WhatsAppChannel,
		From:    msg.Info.Sender.User,
		Body:    text,
		Time:    msg.Info.Timestamp.Unix(),
	})
}
