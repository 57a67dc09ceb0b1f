// Package messaging connects chat channels (WhatsApp via Whatsmeow, WhatsApp via Twilio)
// to the prompt-enhancement chat flow.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/PromptForge/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer of each service's inbound channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message waits for a full channel.
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number.
	minPhoneDigits = 6
)

var (
	ErrServiceStopped = errors.New("messaging service stopped")
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
)

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service is a chat channel that can send text and deliver inbound messages.
type Service interface {
	// Name identifies the channel; it prefixes conversation ids.
	Name() string

	// ValidateAndCanonicalizeRecipient returns the canonical form of a recipient.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing such as event subscription.
	Start(ctx context.Context) error

	// Stop ends background processing and closes the Responses channel.
	Stop() error

	// Responses returns inbound messages from users.
	Responses() <-chan models.InboundMessage
}

// canonicalizePhone strips everything but digits and requires a plausible length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// inbox is the stop-aware inbound channel shared by the services.
type inbox struct {
	mu      sync.RWMutex
	stopped bool
	ch      chan models.InboundMessage
}

func newInbox() *inbox {
	return &inbox{ch: make(chan models.InboundMessage, DefaultChannelBufferSize)}
}

// emit queues msg, dropping it when the service is stopped or the channel stays full.
func (b *inbox) emit(msg models.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn("messaging: dropping inbound message, service stopped", "channel", msg.Channel, "from", msg.From)
		return false
	}
	select {
	case b.ch <- msg:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging: inbound channel blocked, dropping message", "channel", msg.Channel, "from", msg.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// close marks the inbox stopped and closes the channel once.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.ch)
}
