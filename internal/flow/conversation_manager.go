package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultConversationCacheSize bounds the number of live conversations kept in memory.
const DefaultConversationCacheSize = 1024

// ErrConversationNotFound is returned when a conversation id is unknown.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationManager keeps live conversations in an LRU cache and writes their
// records and transcripts through to a store.Store. Questionnaire state exists only
// in the cached value, so an evicted conversation resumes without one.
type ConversationManager struct {
	store store.Store
	cache *lru.Cache[string, *models.Conversation]

	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

// NewConversationManager creates a manager over st. A non-positive cacheSize uses the default.
func NewConversationManager(st store.Store, cacheSize int) (*ConversationManager, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultConversationCacheSize
	}
	cache, err := lru.NewWithEvict(cacheSize, func(id string, conv *models.Conversation) {
		if conv.Questionnaire != nil && !conv.Questionnaire.Complete {
			slog.Warn("ConversationManager: evicted conversation with active questionnaire", "conversationID", id)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	slog.Debug("ConversationManager created", "cacheSize", cacheSize)
	return &ConversationManager{
		store: st,
		cache: cache,
		locks: make(map[string]*conversationLock),
	}, nil
}

// NewConversationID returns a fresh random conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// Lock serializes work on one conversation id. The returned func releases the lock.
func (m *ConversationManager) Lock(id string) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &conversationLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// GetOrCreate returns the live conversation for id, loading it from the store or
// creating it when unknown. Callers must hold Lock(id).
func (m *ConversationManager) GetOrCreate(id, userID, personaID string) (*models.Conversation, error) {
	conv, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = models.NewConversation(id, userID, personaID)
	if err := m.store.SaveConversation(*conv); err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", id, err)
	}
	m.cache.Add(id, conv)
	slog.Debug("ConversationManager.GetOrCreate: conversation created", "conversationID", id, "userID", userID)
	return conv, nil
}

// Get returns the live conversation for id or ErrConversationNotFound.
// Callers must hold Lock(id).
func (m *ConversationManager) Get(id string) (*models.Conversation, error) {
	conv, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (m *ConversationManager) load(id string) (*models.Conversation, error) {
	if conv, ok := m.cache.Get(id); ok {
		return conv, nil
	}
	conv, err := m.store.GetConversation(id)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv == nil {
		return nil, nil
	}
	msgs, err := m.store.GetMessages(id)
	if err != nil {
		return nil, fmt.Errorf("load messages of %s: %w", id, err)
	}
	conv.Messages = msgs
	// The stored original message belongs to a questionnaire that did not survive.
	conv.OriginalMessage = ""
	m.cache.Add(id, conv)
	slog.Debug("ConversationManager.load: conversation restored from store", "conversationID", id, "messages", len(msgs))
	return conv, nil
}

// Save writes the conversation record through to the store.
func (m *ConversationManager) Save(conv *models.Conversation) error {
	if err := m.store.SaveConversation(*conv); err != nil {
		slog.Error("ConversationManager.Save: store write failed", "error", err, "conversationID", conv.ID)
		return err
	}
	return nil
}

// AppendMessage records a transcript entry in memory and in the store.
func (m *ConversationManager) AppendMessage(conv *models.Conversation, role models.MessageRole, content string) error {
	msg := conv.AddMessage(role, content)
	if err := m.store.AddMessage(conv.ID, msg); err != nil {
		slog.Error("ConversationManager.AppendMessage: store write failed", "error", err, "conversationID", conv.ID)
		return err
	}
	return nil
}

// Delete removes the conversation from the cache and the store.
// Callers must hold Lock(id).
func (m *ConversationManager) Delete(id string) error {
	conv, err := m.load(id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	m.cache.Remove(id)
	if err := m.store.DeleteConversation(id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	slog.Debug("ConversationManager.Delete: conversation deleted", "conversationID", id)
	return nil
}

// PurgeIdle deletes every conversation not updated since cutoff and returns how many
// were removed. Conversations touched between listing and deletion, and cached ones
// with an unfinished questionnaire, are kept.
func (m *ConversationManager) PurgeIdle(cutoff time.Time) (int, error) {
	ids, err := m.store.ListIdleConversations(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle conversations: %w", err)
	}
	purged := 0
	for _, id := range ids {
		ok, err := m.purgeIfIdle(id, cutoff)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	if purged > 0 {
		slog.Info("ConversationManager.PurgeIdle: idle conversations removed", "purged", purged, "cutoff", cutoff)
	}
	return purged, nil
}

func (m *ConversationManager) purgeIfIdle(id string, cutoff time.Time) (bool, error) {
	unlock := m.Lock(id)
	defer unlock()
	if conv, ok := m.cache.Peek(id); ok {
		if !conv.UpdatedAt.Before(cutoff) {
			return false, nil
		}
		if q := conv.Questionnaire; q != nil && !q.Complete {
			slog.Debug("ConversationManager.PurgeIdle: keeping conversation with open questionnaire", "conversationID", id)
			return false, nil
		}
	}
	m.cache.Remove(id)
	if err := m.store.DeleteConversation(id); err != nil {
		return false, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return true, nil
}

// Len returns the number of cached conversations.
func (m *ConversationManager) Len() int {
	return m.cache.Len()
}
