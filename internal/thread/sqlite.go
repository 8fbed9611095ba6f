package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/s33g/chatctx/internal/conversation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS threads (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	token_count   INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at);
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	sender     TEXT NOT NULL,
	content    TEXT NOT NULL,
	files      TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
`

// SQLiteStore keeps threads and messages in a SQLite database
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
	now         func() time.Time
}

// NewSQLiteStore creates the schema if needed and returns a store over db
func NewSQLiteStore(ctx context.Context, db *sql.DB, maxMessages int) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate thread schema: %w", err)
	}
	return &SQLiteStore{db: db, maxMessages: maxMessages, now: time.Now}, nil
}

// Create creates a new thread
func (s *SQLiteStore) Create(ctx context.Context, t Thread) (*Thread, error) {
	t = prepareThread(t, s.now(), uuid.NewString)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, provider, model, system_prompt, token_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Provider, t.Model, t.SystemPrompt, t.TokenCount,
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	return &t, nil
}

// Get retrieves a thread by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, provider, model, system_prompt, token_count, created_at, updated_at
		 FROM threads WHERE id = ?`, id)

	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return &t, nil
}

// List returns all threads, most recently updated first
func (s *SQLiteStore) List(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, provider, model, system_prompt, token_count, created_at, updated_at
		 FROM threads ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}

	return threads, rows.Err()
}

// Delete deletes a thread and its messages
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AddMessage adds a message to the thread history
func (s *SQLiteStore) AddMessage(ctx context.Context, threadID string, msg Message) (*Message, error) {
	now := s.now()
	msg = prepareMessage(msg, now, uuid.NewString)

	files := msg.Files
	if files == nil {
		files = []Attachment{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, now.UnixMilli(), threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, sender, content, files, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, threadID, string(msg.Sender), msg.Content, string(filesJSON), msg.Timestamp.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	// Trim to max size
	if s.maxMessages > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE thread_id = ? AND seq NOT IN (
				SELECT seq FROM messages WHERE thread_id = ? ORDER BY seq DESC LIMIT ?)`,
			threadID, threadID, s.maxMessages,
		); err != nil {
			return nil, fmt.Errorf("failed to trim messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	return &msg, nil
}

// Messages returns the most recent messages of a thread, oldest first
func (s *SQLiteStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	limit := s.maxMessages
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, files, created_at FROM messages
		 WHERE thread_id = ? ORDER BY seq DESC LIMIT ?`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			sender    string
			files     string
			timestamp int64
		)
		if err := rows.Scan(&m.ID, &sender, &m.Content, &files, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = conversation.Sender(sender)
		m.Timestamp = time.UnixMilli(timestamp)
		if err := json.Unmarshal([]byte(files), &m.Files); err != nil {
			// Keep the message text even if its attachment column is unreadable
			m.Files = nil
		}
		if len(m.Files) == 0 {
			m.Files = nil
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearMessages removes all messages from a thread (keeps thread metadata)
func (s *SQLiteStore) ClearMessages(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	defer tx.Rollback()

	// An empty thread deletes no messages, so existence is checked on the thread row
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM threads WHERE id = ?`, threadID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// UpdateTitle updates the thread title
func (s *SQLiteStore) UpdateTitle(ctx context.Context, threadID, title string) error {
	return s.update(ctx, threadID, "title",
		`UPDATE threads SET title = ?, updated_at = ? WHERE id = ?`, title, s.now().UnixMilli(), threadID)
}

// UpdateModel changes the provider and model for a thread
func (s *SQLiteStore) UpdateModel(ctx context.Context, threadID, provider, model string) error {
	return s.update(ctx, threadID, "model",
		`UPDATE threads SET provider = ?, model = ?, updated_at = ? WHERE id = ?`, provider, model, s.now().UnixMilli(), threadID)
}

// UpdateSystemPrompt changes the system prompt for a thread
func (s *SQLiteStore) UpdateSystemPrompt(ctx context.Context, threadID, prompt string) error {
	return s.update(ctx, threadID, "system prompt",
		`UPDATE threads SET system_prompt = ?, updated_at = ? WHERE id = ?`, prompt, s.now().UnixMilli(), threadID)
}

// IncrementTokenCount adds tokens to the thread's total
func (s *SQLiteStore) IncrementTokenCount(ctx context.Context, threadID string, tokens int) error {
	return s.update(ctx, threadID, "token count",
		`UPDATE threads SET token_count = token_count + ? WHERE id = ?`, tokens, threadID)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) update(ctx context.Context, threadID, what, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row rowScanner) (Thread, error) {
	var (
		t                    Thread
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Provider, &t.Model, &t.SystemPrompt, &t.TokenCount, &createdAt, &updatedAt); err != nil {
		return Thread{}, err
	}
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return t, nil
}
