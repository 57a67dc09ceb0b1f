// Package store provides storage backends for PromptForge.
//
// It persists conversation records, their transcripts and custom template definitions.
// In-progress questionnaire state lives only in process memory and is never stored here.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/PromptForge/internal/models"
)

// Store is the persistence interface used by the conversation manager and the API.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// SaveConversation inserts or updates a conversation record (transcript excluded).
	SaveConversation(conv models.Conversation) error
	// GetConversation loads a conversation record without its transcript.
	GetConversation(id string) (*models.Conversation, error)
	// DeleteConversation removes a conversation and its transcript.
	DeleteConversation(id string) error
	// ListIdleConversations returns ids of conversations last updated before cutoff.
	ListIdleConversations(cutoff time.Time) ([]string, error)
	// AddMessage appends a transcript entry.
	AddMessage(conversationID string, msg models.Message) error
	// GetMessages returns a conversation's transcript in insertion order.
	GetMessages(conversationID string) ([]models.Message, error)
	// SaveTemplate stores a custom template definition. An existing id is kept.
	SaveTemplate(t models.Template) error
	// ListTemplates returns stored custom templates in insertion order.
	ListTemplates() ([]models.Template, error)
	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for SQL-backed stores.
type Opts struct {
	DSN string // database connection string or SQLite file path
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return WithDSN(dsn)
}

// DetectDSNType returns the database/sql driver name for dsn: "postgres" for URLs and
// key=value connection strings, "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	for _, key := range []string{"host=", "user=", "dbname=", "password=", "sslmode="} {
		if strings.Contains(dsn, key) {
			return "postgres"
		}
	}
	return "sqlite3"
}

// New opens the backend selected by the DSN. An empty DSN yields an InMemoryStore.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}

	switch driver := DetectDSNType(cfg.DSN); driver {
	case "postgres":
		slog.Info("store.New: using Postgres store")
		return NewPostgresStore(opts...)
	case "sqlite3":
		slog.Info("store.New: using SQLite store", "path", cfg.DSN)
		return NewSQLiteStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
