// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/skycast/pkg/storage/entdriver"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		mode TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		chunks INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS turns_created_at ON turns (created_at)`,
	`CREATE INDEX IF NOT EXISTS turns_agent ON turns (agent)`,
}

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*entdriver.EntDriver
}

// NewSQLiteDriver creates a new SQLite-backed storer.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	// Registered as "sqlite3" by github.com/mattn/go-sqlite3
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	drv, err := entdriver.New(context.Background(), dialect.SQLite, db, schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{EntDriver: drv}, nil
}
