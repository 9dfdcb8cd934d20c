package notestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);`

// SQLiteBackend keeps keys in a single kv table of an SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

var (
	_ Backend = (*SQLiteBackend)(nil)
	_ Pinger  = (*SQLiteBackend)(nil)
)

// OpenSQLite opens (or creates) the database at path in WAL mode and
// ensures the schema exists. Use ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("notestore: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("notestore: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("notestore: migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UnixMilli())
	return err
}

// Ping implements Pinger.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
