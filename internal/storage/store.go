// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and messages in SQLite.
//
// The store is the durable record of every chat turn. Timestamps are
// stored as RFC 3339 text, message metadata as a JSON blob. SQLite only
// supports one writer at a time, so the pool is pinned to a single
// connection; WAL keeps readers from blocking behind the writer.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/yat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// PreviewMaxRunes is the length of conversation previews derived from the
// first user message.
const PreviewMaxRunes = 50

// DefaultListLimit bounds ListConversations when the caller passes 0.
const DefaultListLimit = 50

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	title       TEXT,
	provider_id TEXT,
	model_id    TEXT,
	created_at  TEXT,
	updated_at  TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT,
	role            TEXT,
	content         TEXT,
	timestamp       TEXT,
	metadata        TEXT,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, timestamp);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the chat database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, conv model.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, provider_id, model_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.ProviderID, conv.ModelID,
		conv.CreatedAt.Format(time.RFC3339Nano), conv.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation loads one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, provider_id, model_id, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations newest-first by update time.
// limit <= 0 applies DefaultListLimit.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, provider_id, model_id, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// UpdateTitle renames a conversation and bumps its update time.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its messages in one
// transaction, messages first so a failure never orphans them.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

// =============================================================================
// MESSAGES
// =============================================================================

// SaveMessage appends a message and bumps the conversation's updated_at
// in the same transaction, so recency listings stay consistent with the
// message log.
func (s *Store) SaveMessage(ctx context.Context, conversationID string, msg model.Message) error {
	metadata := "{}"
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Role.String(), msg.Content,
		msg.Timestamp.Format(time.RFC3339Nano), metadata); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339Nano), conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return tx.Commit()
}

// LoadMessages returns a conversation's messages oldest-first.
func (s *Store) LoadMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var role, content, ts, metadata string
		if err := rows.Scan(&role, &content, &ts, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg := model.Message{
			Role:      model.Role(role),
			Content:   content,
			Timestamp: parseTime(ts),
		}
		if metadata != "" && metadata != "{}" {
			var m map[string]any
			if err := json.Unmarshal([]byte(metadata), &m); err == nil {
				msg.Metadata = m
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Preview returns the first PreviewMaxRunes runes of a conversation's
// first user message, ellipsized, or "" when it has none.
func (s *Store) Preview(ctx context.Context, conversationID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content FROM messages
		WHERE conversation_id = ? AND role = 'user'
		ORDER BY timestamp ASC
		LIMIT 1`, conversationID)

	var content string
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load preview: %w", err)
	}

	runes := []rune(content)
	if len(runes) > PreviewMaxRunes {
		return string(runes[:PreviewMaxRunes]) + "...", nil
	}
	return content, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var conv model.Conversation
	var created, updated string
	if err := row.Scan(&conv.ID, &conv.Title, &conv.ProviderID, &conv.ModelID, &created, &updated); err != nil {
		return model.Conversation{}, err
	}
	conv.CreatedAt = parseTime(created)
	conv.UpdatedAt = parseTime(updated)
	return conv, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
