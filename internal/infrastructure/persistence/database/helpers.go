package database

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// CheckConnectionWithLogger runs a trivial query against db
func CheckConnectionWithLogger(ctx context.Context, db *DB, logger *logging.ChanneledLogger) error {
	start := time.Now()
	logger.Database().Debug("Testing database connection", "driverName", db.Driver)

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Database().Error("Connection test query failed", "error", err.Error(), "driverName", db.Driver)
		return fmt.Errorf("connection test query failed: %w", err)
	}

	if result != 1 {
		logger.Database().Error("Unexpected query result", "result", result, "expected", 1, "driverName", db.Driver)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Database().Debug("Connection test successful", "driverName", db.Driver, "duration", time.Since(start))
	return nil
}
