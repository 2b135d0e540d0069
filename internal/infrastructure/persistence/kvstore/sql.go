package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
)

// SQLStore is the kv_store table behind a KeyValueStore.
type SQLStore struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStore creates a new instance of the store.
func NewSQLStore(db *database.DB, logger *logging.ChanneledLogger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// Get loads a value by key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := s.db.Rebind(`SELECT value FROM kv_store WHERE key = ?`)

	start := time.Now()
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Database().Error("Failed to load key", "error", err.Error(), "key", key)
		return nil, false, err
	}
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(start))
	return []byte(value), true, nil
}

// Set upserts a value.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, query, key, string(value), time.Now().UTC().UnixMilli()); err != nil {
		s.logger.Database().Error("Failed to store key", "error", err.Error(), "key", key)
		return err
	}
	s.logger.Database().Debug("Key stored", "key", key, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(start))
	return nil
}

// Delete removes a key if present.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.db.Rebind(`DELETE FROM kv_store WHERE key = ?`)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		s.logger.Database().Error("Failed to delete key", "error", err.Error(), "key", key)
		return err
	}
	return nil
}
