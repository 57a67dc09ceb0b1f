// Package templates holds the questionnaire template catalog for PromptForge.
//
// It provides the ordered in-process Store, the built-in catalog, a filesystem
// Loader for custom definitions and a Watcher that registers definitions as they appear.
package templates

import (
	"log/slog"
	"sync"

	"github.com/BTreeMap/PromptForge/internal/models"
)

// DefaultTemplateID is the fallback template, guaranteed to exist in a default store.
const DefaultTemplateID = "general"

// Store is an ordered catalog of templates keyed by id.
// Registration is first-writer-wins: a later registration never replaces an existing id.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Template
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]models.Template)}
}

// NewDefaultStore creates a Store seeded with the built-in catalog.
func NewDefaultStore() *Store {
	s := NewStore()
	for _, t := range DefaultTemplates() {
		s.Register(t)
	}
	return s
}

// Register adds t if its id is not yet present and reports whether it was inserted.
func (s *Store) Register(t models.Template) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		slog.Debug("Store.Register: id already present, keeping existing", "templateID", t.ID)
		return false
	}
	s.byID[t.ID] = t
	s.order = append(s.order, t.ID)
	slog.Debug("Store.Register: template registered", "templateID", t.ID, "questions", len(t.Questions))
	return true
}

// Get returns the template with the given id.
func (s *Store) Get(id string) (models.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// List returns all templates in registration order.
func (s *Store) List() []models.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Template, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of registered templates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
