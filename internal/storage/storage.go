// Package storage is the local persistence backend: a SQLite key-value table
// holding each list as a JSON document under a fixed key.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"duo/internal/todo"
)

// Store is the local adapter. A Store without a database is disabled and
// every operation is a silent no-op.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Disabled returns a store for when local storage is unavailable.
func Disabled() *Store {
	return &Store{}
}

func (s *Store) Enabled() bool { return s != nil && s.db != nil }

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

// Save overwrites the keys for every list in fields within one transaction.
func (s *Store) Save(ctx context.Context, fields todo.Fields) error {
	if !s.Enabled() || len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for name, list := range fields {
		if list == nil {
			list = todo.List{}
		}
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value;`,
			name.StorageKey(), string(data)); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Load returns the list stored under name; ok is false if it was never written.
func (s *Store) Load(ctx context.Context, name todo.ListName) (todo.List, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?;`, name.StorageKey()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list todo.List
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", name, err)
	}
	return list, true, nil
}

func (s *Store) LoadRecord(ctx context.Context) (todo.Record, error) {
	var rec todo.Record
	active, _, err := s.Load(ctx, todo.Active)
	if err != nil {
		return rec, err
	}
	completed, _, err := s.Load(ctx, todo.Completed)
	if err != nil {
		return rec, err
	}
	rec.Active, rec.Completed = active, completed
	return rec, nil
}

// Clear removes the keys this application owns and nothing else.
func (s *Store) Clear(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?);`,
		todo.Active.StorageKey(), todo.Completed.StorageKey())
	return err
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
