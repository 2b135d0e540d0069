// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverLibSQL   = "libsql"
	DriverPostgres = "pgx"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// Options configures a connection.
type Options struct {
	Driver       string
	DSN          string
	AuthToken    string
	MaxOpenConns int
	MaxIdleConns int
}

// OptionsFromConfig reads connection options from pkg/config.
func OptionsFromConfig() Options {
	return Options{
		Driver:       config.DBDriver,
		DSN:          config.DBDSN,
		AuthToken:    config.DBAuthToken,
		MaxOpenConns: config.DBMaxOpenConns,
		MaxIdleConns: config.DBMaxIdleConns,
	}
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(ctx context.Context, opts Options, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", opts.Driver)

	switch opts.Driver {
	case DriverSQLite, DriverLibSQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	dsn := opts.DSN
	if opts.Driver == DriverLibSQL && opts.AuthToken != "" {
		dsn = fmt.Sprintf("%s?authToken=%s", dsn, opts.AuthToken)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", opts.Driver)
		return nil, fmt.Errorf("failed to open %s connection: %w", opts.Driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", opts.Driver)
		return nil, fmt.Errorf("failed to ping %s database: %w", opts.Driver, err)
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", opts.Driver, "duration", duration)
	CheckAndLogSlowQuery(logger, "DATABASE_CONNECTION", duration)

	return &DB{DB: db, Driver: opts.Driver}, nil
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (db *DB) Rebind(query string) string {
	if db.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BlobType is the column type used for raw bytes.
func (db *DB) BlobType() string {
	if db.Driver == DriverPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

// CheckAndLogSlowQuery logs query on the database channel when it ran
// longer than the configured threshold.
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration) {
	if duration <= config.SlowQueryThreshold {
		return
	}
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > 500 {
		query = query[:500] + "..."
	}
	logger.Database().Warn("Slow query detected", "query", query, "duration", duration)
}
