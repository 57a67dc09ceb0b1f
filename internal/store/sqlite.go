// Package store provides storage backends for PromptForge.
//
// This file implements an SQLite-backed store for conversations, transcripts and templates.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptForge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection keeps foreign key pragmas and writes consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

// SaveConversation inserts or updates a conversation record, preserving created_at.
func (s *SQLiteStore) SaveConversation(conv models.Conversation) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, persona_id, original_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			persona_id = excluded.persona_id,
			original_message = excluded.original_message,
			updated_at = excluded.updated_at`,
		conv.ID, conv.UserID, conv.PersonaID, conv.OriginalMessage, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "conversationID", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "conversationID", conv.ID)
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT id, user_id, persona_id, original_message, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversation not found", "conversationID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "conversationID", id)
		return nil, err
	}
	return conv, nil
}

func (s *SQLiteStore) DeleteConversation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete of conversation %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteConversation messages failed", "error", err, "conversationID", id)
		return fmt.Errorf("failed to delete messages of %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "conversationID", id)
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of conversation %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteConversation succeeded", "conversationID", id)
	return nil
}

func (s *SQLiteStore) ListIdleConversations(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM conversations WHERE updated_at < ? ORDER BY id`, cutoff.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListIdleConversations failed", "error", err)
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

func (s *SQLiteStore) AddMessage(conversationID string, msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Content, msg.Timestamp.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to insert message for %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) SaveTemplate(t models.Template) error {
	definition, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO templates (id, definition) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, t.ID, definition)
	if err != nil {
		slog.Error("SQLiteStore SaveTemplate failed", "error", err, "templateID", t.ID)
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore SaveTemplate succeeded", "templateID", t.ID)
	return nil
}

func (s *SQLiteStore) ListTemplates() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT definition FROM templates ORDER BY rowid`)
	if err != nil {
		slog.Error("SQLiteStore ListTemplates query failed", "error", err)
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()
	return scanTemplates(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
