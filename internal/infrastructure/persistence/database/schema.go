package database

import (
	"context"
	"fmt"
)

// CreateSchema executes all necessary queries to build the tables and indexes.
// Every statement is idempotent.
func CreateSchema(ctx context.Context, db *DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS form_submissions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_name TEXT NOT NULL,
			url TEXT NOT NULL,
			status INTEGER NOT NULL,
			response_type TEXT NOT NULL,
			header TEXT NOT NULL,
			body %s,
			stored_at BIGINT NOT NULL,
			PRIMARY KEY (cache_name, url)
		)`, db.BlobType()),
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_form_submissions_kind_created ON form_submissions (kind, created_at)`,
	}

	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", stmt, err)
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", stmt, err)
		}
	}
	return nil
}
