// Package sqlitemigrate applies versioned goose migrations to SQLite stores.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
)

// ApplyMigrations runs every pending "-- +goose Up" section found under
// migrationRoot and returns the resulting schema version. Each migration file
// runs in its own transaction and is recorded only when it succeeds.
func ApplyMigrations(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) (int64, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	if migrationFS == nil {
		return 0, fmt.Errorf("migration fs is required")
	}

	root := strings.TrimSpace(migrationRoot)
	if root != "" && root != "." {
		sub, err := fs.Sub(migrationFS, root)
		if err != nil {
			return 0, fmt.Errorf("open migrations dir %s: %w", root, err)
		}
		migrationFS = sub
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, migrationFS)
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return 0, nil
		}
		return 0, fmt.Errorf("goose new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	return version, nil
}
