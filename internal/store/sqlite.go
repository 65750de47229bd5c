// Package store persists per-chat state documents in SQLite.
//
// One row per chat: the whole session is serialized by the caller and stored
// as a JSON text blob. The schema is deliberately versionless; readers must
// tolerate missing fields through default initialization.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_state (
    chat_id    INTEGER PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore is a StateStore backed by a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open initializes the SQLite database at the given path, creating the
// parent directory and schema if needed.
func Open(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("sqlite store ready", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get returns the stored document for a chat, reporting whether one exists.
func (s *SQLiteStore) Get(ctx context.Context, chatID int64) ([]byte, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM chat_state WHERE chat_id = ?", chatID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read chat %d: %w", chatID, err)
	}
	return []byte(doc), true, nil
}

// Put upserts the document for a chat.
func (s *SQLiteStore) Put(ctx context.Context, chatID int64, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_state (chat_id, state, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(chat_id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP`,
		chatID, string(doc))
	if err != nil {
		return fmt.Errorf("write chat %d: %w", chatID, err)
	}
	return nil
}

// Keys returns every chat identifier with a stored document.
func (s *SQLiteStore) Keys(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id FROM chat_state ORDER BY chat_id")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
