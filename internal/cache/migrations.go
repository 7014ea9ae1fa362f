package cache

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is a single idempotent schema step, applied in order during
// Open (grounded on the teacher's ordered migration-list pattern).
type migration struct {
	name string
	fn   func(context.Context, *sql.DB) error
}

var migrations = []migration{
	{"001_entities", migrateEntities},
	{"002_table_schemas", migrateTableSchemas},
	{"003_records", migrateRecords},
	{"004_deleted_records", migrateDeletedRecords},
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if err := m.fn(ctx, db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

func migrateEntities(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			kind        TEXT NOT NULL,
			id          TEXT NOT NULL,
			payload     TEXT NOT NULL,
			cached_at   TEXT NOT NULL,
			expires_at  TEXT NOT NULL,
			source_hash TEXT,
			PRIMARY KEY (kind, id)
		);
	`)
	return err
}

func migrateTableSchemas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS table_schemas (
			table_id    TEXT PRIMARY KEY,
			solution_id TEXT NOT NULL DEFAULT '',
			fields      TEXT NOT NULL,
			cached_at   TEXT NOT NULL,
			expires_at  TEXT NOT NULL
		);
	`)
	return err
}

func migrateRecords(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			table_id   TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			data       TEXT NOT NULL,
			cached_at  TEXT NOT NULL,
			PRIMARY KEY (table_id, record_id)
		);
	`); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_records_table ON records(table_id);
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS record_cache_state (
			table_id   TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
	`)
	return err
}

func migrateDeletedRecords(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS deleted_records (
			solution_id TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			table_id    TEXT NOT NULL,
			payload     TEXT NOT NULL,
			deleted_at  TEXT NOT NULL,
			deleted_by  TEXT,
			PRIMARY KEY (solution_id, record_id)
		);
	`)
	return err
}
