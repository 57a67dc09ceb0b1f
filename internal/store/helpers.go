package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/PromptForge/internal/models"
)

// scanConversation scans a conversation record from a single sql.Row.
func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var userID, personaID, original sql.NullString
	err := row.Scan(&conv.ID, &userID, &personaID, &original, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.UserID = userID.String
	conv.PersonaID = personaID.String
	conv.OriginalMessage = original.String
	conv.Messages = []models.Message{}
	return &conv, nil
}

// scanMessages drains rows of (role, content, created_at).
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.MessageRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

// scanTemplates drains rows of JSON template definitions.
func scanTemplates(rows *sql.Rows) ([]models.Template, error) {
	var out []models.Template
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		var t models.Template
		if err := json.Unmarshal(definition, &t); err != nil {
			return nil, fmt.Errorf("failed to decode stored template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}
	return out, nil
}

func encodeTemplate(t models.Template) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}
	return string(data), nil
}
