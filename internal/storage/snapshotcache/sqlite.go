// Package snapshotcache is the service-local key/value cache that survives
// restarts: last-known critical vehicle fields, the full serialized form
// snapshot, and the current step index, each entry with an advisory TTL.
package snapshotcache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/karsell/intake/internal/dbx"
	_ "modernc.org/sqlite"
)

// SQLiteCache stores cache entries in a local SQLite database. TTL is
// advisory: expired rows read as misses but are only vacuumed by Purge.
type SQLiteCache struct {
	db  dbx.DBTX
	now func() time.Time
}

// Open opens (and if needed creates) the cache database at dsn.
// Use ":memory:" in tests.
func Open(dsn string) (*SQLiteCache, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache db: %w", err)
	}
	c := New(db)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return c, db, nil
}

// New binds a cache to an existing handle. The caller owns migrations.
func New(db dbx.DBTX) *SQLiteCache {
	return &SQLiteCache{db: db, now: time.Now}
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot_cache (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate cache db: %w", err)
	}
	return nil
}

// Set upserts a cache entry with the given TTL.
func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := c.now().Add(ttl).UnixMilli()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshot_cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expires)
	if err != nil {
		return fmt.Errorf("failed to set cache[%s]: %w", key, err)
	}
	return nil
}

// Get returns the entry value, or nil when absent or expired.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expires int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM snapshot_cache WHERE key = ?`, key).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache[%s]: %w", key, err)
	}
	if expires <= c.now().UnixMilli() {
		return nil, nil
	}
	return value, nil
}

// Delete removes one entry.
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache[%s]: %w", key, err)
	}
	return nil
}

// Purge drops all expired entries.
func (c *SQLiteCache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM snapshot_cache WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}
