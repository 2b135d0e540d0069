package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

var memoryDBSeq atomic.Int64

// OpenMemory opens a private in-memory SQLite database with the schema
// applied. Intended for tests and the migrate dry-run.
func OpenMemory(ctx context.Context) (*DB, error) {
	name := fmt.Sprintf("file:tinysteps-mem-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	raw, err := sql.Open(DriverSQLite, name)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(1)
	db := &DB{DB: raw, Driver: DriverSQLite}
	if err := CreateSchema(ctx, db); err != nil {
		raw.Close()
		return nil, err
	}
	return db, nil
}
