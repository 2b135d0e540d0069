package responsecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
)

// SQLStorage keeps caches in the cache_entries table so they survive a
// restart. A cache exists while it holds at least one entry.
type SQLStorage struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewSQLStorage(db *database.DB, logger *logging.ChanneledLogger) *SQLStorage {
	return &SQLStorage{db: db, logger: logger}
}

type sqlCache struct {
	name    string
	storage *SQLStorage
}

func (s *SQLStorage) Open(_ context.Context, name string) (offline.Cache, error) {
	return &sqlCache{name: name, storage: s}, nil
}

// Names lists every cache with stored entries.
func (s *SQLStorage) Names(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.Database().Error("Failed to list caches", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStorage) Delete(ctx context.Context, name string) (bool, error) {
	query := s.db.Rebind(`DELETE FROM cache_entries WHERE cache_name = ?`)
	result, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		s.logger.Database().Error("Failed to delete cache", "error", err.Error(), "cache", name)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (c *sqlCache) Match(ctx context.Context, key string) (*offline.Response, bool, error) {
	query := c.storage.db.Rebind(`
		SELECT status, response_type, header, body, stored_at
		FROM cache_entries WHERE cache_name = ? AND url = ?`)

	start := time.Now()
	var (
		status   int
		typ      string
		header   string
		body     []byte
		storedAt int64
	)
	err := c.storage.db.QueryRowContext(ctx, query, c.name, key).Scan(&status, &typ, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		c.storage.logger.Database().Error("Failed to match cache entry", "error", err.Error(), "cache", c.name, "url", key)
		return nil, false, err
	}
	database.CheckAndLogSlowQuery(c.storage.logger, query, time.Since(start))

	resp := &offline.Response{
		URL:      key,
		Status:   status,
		Type:     offline.ResponseType(typ),
		Body:     body,
		Header:   http.Header{},
		StoredAt: time.UnixMilli(storedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// Put replaces the entry for key in a single statement.
func (c *sqlCache) Put(ctx context.Context, key string, resp *offline.Response) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return err
	}
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	query := c.storage.db.Rebind(`
		INSERT INTO cache_entries (cache_name, url, status, response_type, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_name, url) DO UPDATE SET
			status = excluded.status,
			response_type = excluded.response_type,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at`)

	start := time.Now()
	_, err = c.storage.db.ExecContext(ctx, query,
		c.name, key, resp.Status, string(resp.Type), string(header), resp.Body, storedAt.UnixMilli())
	if err != nil {
		c.storage.logger.Database().Error("Failed to store cache entry", "error", err.Error(), "cache", c.name, "url", key)
		return err
	}
	database.CheckAndLogSlowQuery(c.storage.logger, query, time.Since(start))
	return nil
}
