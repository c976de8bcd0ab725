// Package db opens the SQL connections behind the overlay store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Drivers.
const (
	DuckDB   = "duckdb"
	Postgres = "postgres"
)

// Config holds database configuration.
type Config struct {
	Driver  string // DuckDB (default) or Postgres
	DataDir string
	DBName  string
	DSN     string // Postgres only; empty reads PG_* env vars
}

// Open opens a new connection for cfg.
func Open(cfg Config) (*sql.DB, error) {
	switch cfg.Driver {
	case "", DuckDB:
		return OpenDuckDB(cfg.DataDir, cfg.DBName)
	case Postgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = PostgresDSNFromEnv()
		}
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenDuckDB opens <dataDir>/duckdb/<name>.duckdb. An empty dataDir opens an
// in-memory database.
func OpenDuckDB(dataDir, name string) (*sql.DB, error) {
	if dataDir == "" {
		return sql.Open(DuckDB, "")
	}
	duckdbDir := filepath.Join(dataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}
	if name == "" {
		name = "overlay"
	}
	return sql.Open(DuckDB, filepath.Join(duckdbDir, name+".duckdb"))
}
