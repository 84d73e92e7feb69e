// Package sqlitestore is the persistent FactStore implementation,
// backed by SQLite via the pure-Go modernc driver.
package sqlitestore

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
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/recall/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	text       TEXT NOT NULL,
	metadata   TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at);
`

// Store implements core.FactStore on SQLite.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert creates a new memory for the user.
func (s *Store) Insert(ctx context.Context, userID, text string, metadata map[string]any) (*core.Memory, error) {
	now := time.Now().UTC()
	mem := &core.Memory{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		CreatedAt: now,
		Metadata:  metadata,
	}

	var metaJSON *string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		str := string(b)
		metaJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, text, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		mem.ID, userID, text, metaJSON, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return mem, nil
}

// ListAll returns the user's memories, oldest first.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*core.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, text, metadata, created_at, updated_at
		 FROM memories WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*core.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, mem)
	}
	return memories, rows.Err()
}

// Get returns the memory with the given id.
func (s *Store) Get(ctx context.Context, id string) (*core.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, text, metadata, created_at, updated_at
		 FROM memories WHERE id = ?`, id)

	mem, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// Update replaces the memory's text and stamps it as modified.
func (s *Store) Update(ctx context.Context, id, text string) (*core.Memory, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET text = ?, updated_at = ? WHERE id = ?`,
		text, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, core.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the memory.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll removes every memory for the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Users returns every user id with at least one memory.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM memories ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*core.Memory, error) {
	var mem core.Memory
	var metaJSON, updatedAt sql.NullString
	var createdAt string

	err := row.Scan(&mem.ID, &mem.UserID, &mem.Text, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	mem.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		mem.UpdatedAt = &t
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &mem.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &mem, nil
}
