package notestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema is the SQL DDL for the key-value table. Execute it via
// [PostgresBackend.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS voicenotes_kv (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresBackend]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBackend is a [Backend] backed by a PostgreSQL table.
type PostgresBackend struct {
	db DB
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend wraps the given connection or pool. The caller must run
// [PostgresBackend.Migrate] before first use.
func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Migrate executes [PostgresSchema].
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("notestore: migrate: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRow(ctx, `SELECT value::text FROM voicenotes_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Save implements Backend. The value must be valid JSON.
func (b *PostgresBackend) Save(ctx context.Context, key string, value []byte) error {
	_, err := b.db.Exec(ctx, `
		INSERT INTO voicenotes_kv (key, value, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, string(value))
	return err
}

// Ping implements Pinger with a trivial round trip.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	var one int
	return b.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
