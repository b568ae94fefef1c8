// Package store provides a SQLite-backed conversation store for the learnbot
// assistant. Conversations group an ordered, append-only sequence of messages;
// assistant messages optionally carry a generation-service response ID used to
// thread the next turn.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrConversationNotFound is returned by Get when no conversation exists for
// the given ID.
var ErrConversationNotFound = errors.New("store: conversation not found")

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Conversation is a chat thread. It is created on the first message of a new
// thread; UpdatedAt is bumped on every appended message and the record is
// never otherwise mutated.
type Conversation struct {
	// ID is the opaque unique conversation token.
	ID string `json:"id"`
	// Title is derived from the first query of the thread.
	Title string `json:"title"`
	// CreatedAt is when the conversation was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when a message was last appended.
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. Messages are append-only:
// never updated or deleted once created. Ordering within a conversation is by
// append order; CreatedAt is informational.
type Message struct {
	// ID is the opaque unique message token.
	ID string `json:"id"`
	// ConversationID references the owning conversation.
	ConversationID string `json:"conversation_id"`
	// Role is the author of the message.
	Role Role `json:"role"`
	// Content is the text of the message.
	Content string `json:"content"`
	// ResponseID is the generation service's continuation handle, set only on
	// assistant messages produced by an unblocked generation. It threads the
	// next turn of the same conversation and must never be reused across
	// conversations.
	ResponseID string `json:"response_id,omitempty"`
	// ParentMessageID links an assistant reply to the user message that
	// triggered it.
	ParentMessageID string `json:"parent_message_id,omitempty"`
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// AppendParams describes a message to persist. ID may be pre-minted by the
// caller (the streaming path announces the user message ID before the turn is
// committed); when empty the store mints one.
type AppendParams struct {
	// ID is the optional pre-minted message ID.
	ID string
	// Role is the author of the message.
	Role Role
	// Content is the message text.
	Content string
	// ResponseID is the optional generation continuation handle.
	ResponseID string
	// ParentMessageID is the optional triggering user message ID.
	ParentMessageID string
}

// ConversationStore persists conversations and their messages.
// Implementations must be safe for concurrent use across requests.
type ConversationStore interface {
	// Create persists a new conversation with the given title.
	Create(ctx context.Context, title string) (Conversation, error)
	// Get returns the conversation with the given ID, or
	// ErrConversationNotFound.
	Get(ctx context.Context, id string) (Conversation, error)
	// List returns all conversations ordered by UpdatedAt descending.
	List(ctx context.Context) ([]Conversation, error)
	// AppendMessage persists a single message and bumps the conversation's
	// UpdatedAt.
	AppendMessage(ctx context.Context, conversationID string, p AppendParams) (Message, error)
	// AppendTurn persists a user message and its assistant reply atomically:
	// either both land or neither does. The assistant message's
	// ParentMessageID is set to the user message's ID.
	AppendTurn(ctx context.Context, conversationID string, user, assistant AppendParams) (Message, Message, error)
	// ListMessages returns the conversation's messages in append order.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// LastAssistantResponseID returns the ResponseID of the most recent
	// assistant message that carries one, scanning in reverse append order.
	// Returns "" when no such message exists.
	LastAssistantResponseID(ctx context.Context, conversationID string) (string, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation database.
// It resolves to ~/.learnbot/conversations.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".learnbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
// messages.seq provides the append order; created_at is informational.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT    PRIMARY KEY,
    title      TEXT    NOT NULL,
    created_at INTEGER NOT NULL,  -- Unix timestamp (nanoseconds)
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    id                TEXT    NOT NULL UNIQUE,
    conversation_id   TEXT    NOT NULL REFERENCES conversations(id),
    role              TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content           TEXT    NOT NULL,
    response_id       TEXT    NOT NULL DEFAULT '',
    parent_message_id TEXT    NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
    ON messages (conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_conversations_updated
    ON conversations (updated_at DESC);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Create persists a new conversation with the given title.
func (s *SQLiteStore) Create(ctx context.Context, title string) (Conversation, error) {
	now := time.Now()
	conv := Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const q = `INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, conv.ID, conv.Title, now.UnixNano(), now.UnixNano()); err != nil {
		return Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// Get returns the conversation with the given ID, or ErrConversationNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Conversation, error) {
	const q = `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`

	var conv Conversation
	var created, updated int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: get conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)
	return conv, nil
}

// List returns all conversations ordered by UpdatedAt descending.
func (s *SQLiteStore) List(ctx context.Context) ([]Conversation, error) {
	const q = `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var created, updated int64
		if err := rows.Scan(&conv.ID, &conv.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		conv.CreatedAt = time.Unix(0, created)
		conv.UpdatedAt = time.Unix(0, updated)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return convs, nil
}

// AppendMessage persists a single message and bumps the conversation's
// UpdatedAt timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, p AppendParams) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("store: append begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	msg, err := appendInTx(ctx, tx, conversationID, p)
	if err != nil {
		return Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("store: append commit: %w", err)
	}
	return msg, nil
}

// AppendTurn persists a user message and its assistant reply in a single
// transaction so a failure never leaves an orphaned user message behind.
func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID string, user, assistant AppendParams) (Message, Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("store: turn begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	userMsg, err := appendInTx(ctx, tx, conversationID, user)
	if err != nil {
		return Message{}, Message{}, err
	}

	assistant.ParentMessageID = userMsg.ID
	assistantMsg, err := appendInTx(ctx, tx, conversationID, assistant)
	if err != nil {
		return Message{}, Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return Message{}, Message{}, fmt.Errorf("store: turn commit: %w", err)
	}
	return userMsg, assistantMsg, nil
}

// appendInTx inserts one message and bumps the conversation timestamp inside
// an open transaction.
func appendInTx(ctx context.Context, tx *sql.Tx, conversationID string, p AppendParams) (Message, error) {
	now := time.Now()
	msg := Message{
		ID:              p.ID,
		ConversationID:  conversationID,
		Role:            p.Role,
		Content:         p.Content,
		ResponseID:      p.ResponseID,
		ParentMessageID: p.ParentMessageID,
		CreatedAt:       now,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	const insert = `
INSERT INTO messages (id, conversation_id, role, content, response_id, parent_message_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		msg.ResponseID, msg.ParentMessageID, now.UnixNano(),
	); err != nil {
		return Message{}, fmt.Errorf("store: append message: %w", err)
	}

	const bump = `UPDATE conversations SET updated_at = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, bump, now.UnixNano(), conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("store: bump conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Message{}, fmt.Errorf("store: append to %s: %w", conversationID, ErrConversationNotFound)
	}

	return msg, nil
}

// ListMessages returns the conversation's messages in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	const q = `
SELECT id, conversation_id, role, content, response_id, parent_message_id, created_at
FROM   messages
WHERE  conversation_id = ?
ORDER  BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var ts int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.ResponseID, &m.ParentMessageID, &ts); err != nil {
			return nil, fmt.Errorf("store: list messages scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(0, ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages rows: %w", err)
	}
	return msgs, nil
}

// LastAssistantResponseID returns the ResponseID of the most recent assistant
// message in the conversation that carries one, or "" if none does.
func (s *SQLiteStore) LastAssistantResponseID(ctx context.Context, conversationID string) (string, error) {
	const q = `
SELECT response_id
FROM   messages
WHERE  conversation_id = ? AND role = 'assistant' AND response_id != ''
ORDER  BY seq DESC
LIMIT  1`

	var responseID string
	err := s.db.QueryRowContext(ctx, q, conversationID).Scan(&responseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: last response id: %w", err)
	}
	return responseID, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
