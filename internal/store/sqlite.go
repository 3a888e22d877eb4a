// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides website/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS websites (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			url             TEXT NOT NULL,
			owner_id        TEXT NOT NULL,
			bot_name        TEXT NOT NULL DEFAULT 'AI Assistant',
			welcome_message TEXT NOT NULL DEFAULT '',
			active          INTEGER NOT NULL DEFAULT 1,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_websites_owner ON websites(owner_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id                 TEXT PRIMARY KEY,
			website_id         TEXT NOT NULL,
			user_identifier    TEXT NOT NULL DEFAULT 'Anonymous',
			status             TEXT NOT NULL DEFAULT 'active',
			requires_attention INTEGER NOT NULL DEFAULT 0,
			total_messages     INTEGER NOT NULL DEFAULT 0,
			metadata_json      TEXT,
			started_at         TEXT NOT NULL,
			last_message_at    TEXT,
			ended_at           TEXT,

			FOREIGN KEY (website_id) REFERENCES websites(id),
			CHECK (status IN ('pending', 'active', 'ended'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_website
			ON conversations(website_id, started_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			manual          INTEGER NOT NULL DEFAULT 0,
			agent_id        TEXT,
			created_at      TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			CHECK (role IN ('visitor', 'agent', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// isForeignKeyViolation checks if the error is a SQLite FK constraint violation
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// CreateWebsite inserts a new website record
func (s *SQLiteStore) CreateWebsite(ctx context.Context, website *Website) error {
	query := `
		INSERT INTO websites (id, name, url, owner_id, bot_name, welcome_message, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		website.ID,
		website.Name,
		website.URL,
		website.OwnerID,
		website.BotName,
		website.WelcomeMessage,
		boolToInt(website.Active),
		website.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting website: %w", err)
	}

	s.logger.Debug("created website", "id", website.ID, "owner", website.OwnerID)
	return nil
}

// GetWebsite retrieves a website by ID.
// Returns ErrNotFound if the website doesn't exist.
func (s *SQLiteStore) GetWebsite(ctx context.Context, id string) (*Website, error) {
	query := `
		SELECT id, name, url, owner_id, bot_name, welcome_message, active, created_at
		FROM websites
		WHERE id = ?
	`

	var website Website
	var active int
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&website.ID,
		&website.Name,
		&website.URL,
		&website.OwnerID,
		&website.BotName,
		&website.WelcomeMessage,
		&active,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying website: %w", err)
	}

	website.Active = active != 0
	website.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &website, nil
}

// ListWebsitesByOwner returns all websites owned by the given user,
// newest first.
func (s *SQLiteStore) ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*Website, error) {
	query := `
		SELECT id, name, url, owner_id, bot_name, welcome_message, active, created_at
		FROM websites
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying websites: %w", err)
	}
	defer rows.Close()

	var websites []*Website
	for rows.Next() {
		var website Website
		var active int
		var createdAtStr string

		if err := rows.Scan(
			&website.ID,
			&website.Name,
			&website.URL,
			&website.OwnerID,
			&website.BotName,
			&website.WelcomeMessage,
			&active,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning website: %w", err)
		}

		website.Active = active != 0
		website.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		websites = append(websites, &website)
	}

	return websites, rows.Err()
}

// WebsiteOwnedBy reports whether the website exists and belongs to userID
func (s *SQLiteStore) WebsiteOwnedBy(ctx context.Context, websiteID, userID string) (bool, error) {
	query := `SELECT COUNT(*) FROM websites WHERE id = ? AND owner_id = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, websiteID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("checking website ownership: %w", err)
	}
	return count > 0, nil
}

// CreateConversation creates a new conversation.
// If a conversation with the same ID already exists, it returns
// ErrDuplicateConversation so callers can re-read the winner of the race.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	metadataJSON, err := encodeMetadata(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO conversations
			(id, website_id, user_identifier, status, requires_attention, total_messages, metadata_json, started_at, last_message_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.WebsiteID,
		conv.UserIdentifier,
		conv.Status,
		boolToInt(conv.RequiresAttention),
		conv.TotalMessages,
		metadataJSON,
		conv.StartedAt.UTC().Format(time.RFC3339),
		nullableTime(conv.LastMessageAt),
		nullableTime(conv.EndedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "website_id", conv.WebsiteID)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, website_id, user_identifier, status, requires_attention, total_messages, metadata_json, started_at, last_message_at, ended_at
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var requiresAttention int
	var metadataJSON sql.NullString
	var startedAtStr string
	var lastMessageAtStr, endedAtStr sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.WebsiteID,
		&conv.UserIdentifier,
		&conv.Status,
		&requiresAttention,
		&conv.TotalMessages,
		&metadataJSON,
		&startedAtStr,
		&lastMessageAtStr,
		&endedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.RequiresAttention = requiresAttention != 0

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	conv.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if conv.LastMessageAt, err = parseNullableTime(lastMessageAtStr); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if conv.EndedAt, err = parseNullableTime(endedAtStr); err != nil {
		return nil, fmt.Errorf("parsing ended_at: %w", err)
	}

	return &conv, nil
}

// UpdateConversationStatus sets the lifecycle state of a conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id, status string, endedAt *time.Time) error {
	query := `UPDATE conversations SET status = ?, ended_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, nullableTime(endedAt), id)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation status", "id", id, "status", status)
	return nil
}

// SetRequiresAttention toggles the attention flag. Setting the current
// value again is a no-op.
func (s *SQLiteStore) SetRequiresAttention(ctx context.Context, id string, requires bool) error {
	query := `UPDATE conversations SET requires_attention = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, boolToInt(requires), id)
	if err != nil {
		return fmt.Errorf("updating requires_attention: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ConversationOwnedBy reports whether the conversation exists and belongs
// to a website owned by userID
func (s *SQLiteStore) ConversationOwnedBy(ctx context.Context, conversationID, userID string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM conversations c
		JOIN websites w ON w.id = c.website_id
		WHERE c.id = ? AND w.owner_id = ?
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("checking conversation ownership: %w", err)
	}
	return count > 0, nil
}

// SaveMessage appends a message and bumps the conversation's counters in
// one transaction. Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := msg.CreatedAt.UTC().Format(time.RFC3339)

	insertQuery := `
		INSERT INTO messages (id, conversation_id, role, content, manual, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insertQuery,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		boolToInt(msg.Manual),
		msg.AgentID,
		createdAt,
	); err != nil {
		// The FK on conversation_id fires before the counter update can
		// report zero rows.
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	updateQuery := `
		UPDATE conversations
		SET total_messages = total_messages + 1, last_message_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, updateQuery, createdAt, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("bumping conversation counters: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// GetMessagesByConversation returns messages in arrival order.
// A limit of 0 means no limit.
func (s *SQLiteStore) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	// Messages are append-only, so insertion order (rowid) is arrival
	// order; created_at is stored at second granularity and cannot break
	// ties within one exchange.
	query := `
		SELECT id, conversation_id, role, content, manual, agent_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY rowid ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var manual int
		var agentID sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&manual,
			&agentID,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.Manual = manual != 0
		msg.AgentID = agentID.String
		msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeMetadata(metadata map[string]string) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
