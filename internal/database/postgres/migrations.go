package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations automatically on startup
func Migrate(ctx context.Context, pool *sqlstore.DB) ([]string, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	applied, err := pool.Migrate(ctx, sub)
	for _, file := range applied {
		fmt.Printf("Applied migration: %s\n", file)
	}
	return applied, err
}
