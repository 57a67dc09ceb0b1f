// Package store provides storage backends for PromptForge.
//
// This file implements a PostgreSQL-backed store for conversations, transcripts and templates.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptForge/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveConversation(conv models.Conversation) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, persona_id, original_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			persona_id = EXCLUDED.persona_id,
			original_message = EXCLUDED.original_message,
			updated_at = EXCLUDED.updated_at`,
		conv.ID, conv.UserID, conv.PersonaID, conv.OriginalMessage, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "conversationID", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "conversationID", conv.ID)
	return nil
}

func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT id, user_id, persona_id, original_message, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversation not found", "conversationID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "conversationID", id)
		return nil, err
	}
	return conv, nil
}

// DeleteConversation relies on ON DELETE CASCADE to remove the transcript.
func (s *PostgresStore) DeleteConversation(id string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "conversationID", id)
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteConversation succeeded", "conversationID", id)
	return nil
}

func (s *PostgresStore) ListIdleConversations(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM conversations WHERE updated_at < $1 ORDER BY id`, cutoff.UTC())
	if err != nil {
		slog.Error("PostgresStore ListIdleConversations failed", "error", err)
		return nil, fmt.Errorf("failed to list idle conversations: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) AddMessage(conversationID string, msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		conversationID, string(msg.Role), msg.Content, msg.Timestamp.UTC())
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to insert message for %s: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) GetMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) SaveTemplate(t models.Template) error {
	definition, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO templates (id, definition) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, t.ID, definition)
	if err != nil {
		slog.Error("PostgresStore SaveTemplate failed", "error", err, "templateID", t.ID)
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore SaveTemplate succeeded", "templateID", t.ID)
	return nil
}

func (s *PostgresStore) ListTemplates() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT definition FROM templates ORDER BY created_at, id`)
	if err != nil {
		slog.Error("PostgresStore ListTemplates query failed", "error", err)
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()
	return scanTemplates(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
