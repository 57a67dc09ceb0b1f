package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/twiliowhatsapp"
)

// TwilioChannel is the Name of TwilioService.
const TwilioChannel = "twilio"

// twimlEmpty acknowledges a webhook without an inline reply.
const twimlEmpty = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service with the Twilio REST API for outbound messages and
// the Twilio webhook for inbound ones.
type TwilioService struct {
	client     twiliowhatsapp.TwilioWhatsAppSender
	validator  twiliowhatsapp.WebhookValidator // nil disables signature checks
	webhookURL string
	inbox      *inbox
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithWebhookURL sets the public URL Twilio posts to, used for signature checks.
// Without it the URL is rebuilt from the request and X-Forwarded-Proto.
func WithWebhookURL(url string) TwilioOption {
	return func(s *TwilioService) { s.webhookURL = url }
}

// WithoutSignatureValidation accepts unsigned webhooks. Intended for local testing only.
func WithoutSignatureValidation() TwilioOption {
	return func(s *TwilioService) { s.validator = nil }
}

// NewTwilioService wraps client. When client implements twiliowhatsapp.WebhookValidator,
// inbound webhooks must carry a valid X-Twilio-Signature.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{client: client, inbox: newInbox()}
	if v, ok := client.(twiliowhatsapp.WebhookValidator); ok {
		s.validator = v
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("TwilioService created", "signature_validation", s.validator != nil, "webhookURL_set", s.webhookURL != "")
	return s
}

func (s *TwilioService) Name() string { return TwilioChannel }

// ValidateAndCanonicalizeRecipient accepts "whatsapp:+1555..." as well as bare numbers.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(strings.TrimPrefix(recipient, twiliowhatsapp.AddressPrefix))
}

// Start is a no-op: inbound messages arrive through WebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the Responses channel. It is safe to call twice.
func (s *TwilioService) Stop() error {
	s.inbox.close()
	slog.Info("TwilioService.Stop: stopped")
	return nil
}

// SendMessage sends body to the canonicalized recipient in E.164 form.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonical, body); err != nil {
		slog.Error("TwilioService.SendMessage: send failed", "error", err, "to", canonical)
		return err
	}
	slog.Debug("TwilioService.SendMessage: sent", "to", canonical, "body_length", len(body))
	return nil
}

func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.inbox.ch
}

// WebhookHandler receives Twilio's inbound message webhook and queues the message.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("TwilioService.WebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		url := s.requestURL(r)
		if !s.validator.ValidateWebhook(url, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("TwilioService.WebhookHandler: invalid signature", "url", url)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioService.WebhookHandler: invalid sender", "error", err, "from", from)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	if !s.inbox.emit(models.InboundMessage{Channel: TwilioChannel, From: canonical, Body: body, Time: time.Now().Unix()}) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	slog.Info("TwilioService.WebhookHandler: inbound message queued", "from", canonical, "body_length", len(body))

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twimlEmpty))
}

func (s *TwilioService) requestURL(r *http.Request) string {
	if s.webhookURL != "" {
		return s.webhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
