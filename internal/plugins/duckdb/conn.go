package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lychee-technology/assetio"
	"go.uber.org/zap"
)

const (
	createCatalog = `CREATE TABLE IF NOT EXISTS catalog (
		path VARCHAR PRIMARY KEY,
		traits VARCHAR NOT NULL,
		restricted BOOLEAN NOT NULL DEFAULT FALSE)`
	createRelations = `CREATE TABLE IF NOT EXISTS relations (
		source_path VARCHAR NOT NULL,
		target_path VARCHAR NOT NULL,
		relationship VARCHAR NOT NULL,
		position INTEGER NOT NULL DEFAULT 0)`
)

// Open opens the catalogue database and applies the resource pragmas in cfg.
func Open(ctx context.Context, cfg assetio.DuckDBConfig) (*sql.DB, error) {
	dsn := cfg.Path
	if dsn == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB typically uses a single connection
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	if cfg.MemoryLimitMB > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA memory_limit='%dMB';", cfg.MemoryLimitMB)); err != nil {
			zap.S().Warnw("duckdb: set memory_limit failed", "err", err, "memoryLimitMB", cfg.MemoryLimitMB)
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d;", cfg.Threads)); err != nil {
			zap.S().Warnw("duckdb: set threads failed", "err", err, "threads", cfg.Threads)
		}
	}
	return db, nil
}

// CreateCatalog creates the catalogue tables when they do not exist
func CreateCatalog(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{createCatalog, createRelations} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create catalogue: %w", err)
		}
	}
	return nil
}

// HealthCheck runs a trivial query against db
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("duckdb client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v int
	if err := db.QueryRowContext(ctx, "SELECT 1;").Scan(&v); err != nil {
		return fmt.Errorf("duckdb health query failed: %w", err)
	}
	if v != 1 {
		return fmt.Errorf("unexpected duckdb health result: %d", v)
	}
	return nil
}
