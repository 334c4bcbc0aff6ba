// Package cache persists the last known state of the campaign table to a
// local SQLite file so the app can come up read-only when the remote
// campaign service is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"postqueue/internal/store"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_posts (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS post_names (
	post_id TEXT PRIMARY KEY,
	campaign_name TEXT NOT NULL
);
`

// Cache is a SQLite-backed snapshot of campaign records. Writes replace
// the whole snapshot; there is no partial update.
type Cache struct {
	db *sqlx.DB
}

// New opens (or creates) the cache database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral cache.
func New(path string) (*Cache, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent snapshot saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

type snapshotRow struct {
	ID       string `db:"id"`
	Position int    `db:"position"`
	Payload  string `db:"payload"`
}

// SaveSnapshot replaces the stored snapshot with the given records,
// preserving their order.
func (c *Cache) SaveSnapshot(ctx context.Context, records []store.Record) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_posts`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshot_posts (id, position, payload) VALUES (?, ?, ?)`,
			rec.ID, i, string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored records in their original order.
func (c *Cache) LoadSnapshot(ctx context.Context) ([]store.Record, error) {
	var rows []snapshotRow
	err := c.db.SelectContext(ctx, &rows,
		`SELECT id, position, payload FROM snapshot_posts ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	records := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		var rec store.Record
		if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", row.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveNames upserts the id-to-campaign-name mapping. Names survive
// snapshot replacement so deleted records keep a human-readable label.
func (c *Cache) SaveNames(ctx context.Context, names map[string]string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin names transaction: %w", err)
	}
	defer tx.Rollback()

	for id, name := range names {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_names (post_id, campaign_name) VALUES (?, ?)
			 ON CONFLICT(post_id) DO UPDATE SET campaign_name = excluded.campaign_name`,
			id, name,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert name for %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit names: %w", err)
	}
	return nil
}

// LoadNames returns the full id-to-campaign-name mapping.
func (c *Cache) LoadNames(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryxContext(ctx, `SELECT post_id, campaign_name FROM post_names`)
	if err != nil {
		return nil, fmt.Errorf("failed to load names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan name row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate name rows: %w", err)
	}
	return names, nil
}
