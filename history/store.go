// Package history persists finished conversations per app key, the way the browser
// apps keep them in local storage: an ordered list of {role, content} entries.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	genaistream "github.com/haowjy/genai-stream-go"
)

var (
	ErrEmptyKey      = errors.New("history: empty conversation key")
	ErrDatabaseError = errors.New("history: database error")
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a SQLite-backed chat history.
type Store struct {
	db *sql.DB
}

// exportMessage is the browser storage shape.
type exportMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		// Create database directory if needed
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database lives
	// on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append adds messages to the end of the conversation under key.
// A zero Timestamp is set to the current time.
func (s *Store) Append(ctx context.Context, key string, msgs ...genaistream.ChatMessage) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(seq) FROM messages WHERE conv_key = ?", key).Scan(&last); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (id, conv_key, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer stmt.Close()

	seq := last.Int64
	for _, m := range msgs {
		seq++
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), key, seq, m.Role, m.Content, ts.UnixNano()); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Load returns the conversation under key in order. Unknown keys give an empty list.
func (s *Store) Load(ctx context.Context, key string) ([]genaistream.ChatMessage, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM messages WHERE conv_key = ? ORDER BY seq", key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	msgs := []genaistream.ChatMessage{}
	for rows.Next() {
		var (
			m  genaistream.ChatMessage
			ts int64
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		m.Timestamp = time.Unix(0, ts).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return msgs, nil
}

// Clear deletes the conversation under key and returns how many messages it held.
func (s *Store) Clear(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE conv_key = ?", key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return res.RowsAffected()
}

// Keys lists the conversation keys, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT conv_key FROM messages ORDER BY conv_key")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ExportJSON renders the conversation as the JSON array of {role, content} the
// browser apps keep in storage.
func (s *Store) ExportJSON(ctx context.Context, key string) ([]byte, error) {
	msgs, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]exportMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, exportMessage{Role: m.Role, Content: m.Content})
	}
	return json.Marshal(out)
}

// ImportJSON appends a browser storage array of {role, content} under key.
func (s *Store) ImportJSON(ctx context.Context, key string, data []byte) error {
	var in []exportMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	msgs := make([]genaistream.ChatMessage, 0, len(in))
	for _, m := range in {
		msgs = append(msgs, genaistream.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return s.Append(ctx, key, msgs...)
}

var _ genaistream.HistoryStore = (*Store)(nil)
