package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-annotator/internal/config"
	"github.com/kozaktomas/face-annotator/internal/database/postgres"
	"github.com/kozaktomas/face-annotator/internal/database/sqlite"
	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
	"github.com/kozaktomas/face-annotator/internal/faceindex"
	"github.com/schollz/progressbar/v3"
)

// openStore connects to the configured annotation database. With migrate set,
// pending schema migrations are applied. Status goes to stderr so export can
// write CSV to stdout.
func openStore(ctx context.Context, cfg *config.DatabaseConfig, migrate bool) (*sqlstore.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	switch cfg.Driver {
	case "postgres":
		fmt.Fprintln(os.Stderr, "Connecting to PostgreSQL database...")
		if migrate {
			return postgres.Initialize(ctx, cfg)
		}
		return postgres.NewPool(cfg)
	case "sqlite":
		fmt.Fprintf(os.Stderr, "Opening SQLite database %s...\n", cfg.URL)
		if migrate {
			return sqlite.Initialize(ctx, cfg.URL)
		}
		return sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (use postgres or sqlite)", cfg.Driver)
	}
}

// migrateStore applies the migrations of the configured driver.
func migrateStore(ctx context.Context, db *sqlstore.DB) ([]string, error) {
	switch db.Dialect().Name {
	case "postgres":
		return postgres.Migrate(ctx, db)
	case "sqlite":
		return sqlite.Migrate(ctx, db)
	default:
		return nil, fmt.Errorf("no migrations for driver %q", db.Dialect().Name)
	}
}

// loadIndex builds the cluster index of every movie in the data directory.
// Movies that failed to load are printed and left out unless strict loading is on.
func loadIndex(ctx context.Context, cfg *config.IndexConfig) (*faceindex.Repository, []error, error) {
	dirs, _ := filepath.Glob(filepath.Join(cfg.DataDir, "*-data"))
	fmt.Printf("Loading %d movies from %s...\n", len(dirs), cfg.DataDir)

	bar := progressbar.NewOptions(len(dirs),
		progressbar.OptionSetDescription("Building cluster index"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("movies"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	repo, failed, err := faceindex.LoadRepository(ctx, faceindex.LoadOptions{
		DataDir:            cfg.DataDir,
		FilmsDir:           cfg.FilmsDir,
		ItemsPerTrajectory: cfg.ItemsPerTrajectory,
		DefaultFPS:         cfg.DefaultFPS,
		RequireMovieFile:   cfg.RequireMovieFile,
		Strict:             cfg.Strict,
		Workers:            cfg.Workers,
		Progress: func(dir string, err error) {
			bar.Add(1)
		},
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cluster index: %w", err)
	}

	for _, e := range failed {
		fmt.Printf("Warning: %v\n", e)
	}
	fmt.Printf("Serving %d movies (%d skipped)\n", repo.Len(), len(failed))
	return repo, failed, nil
}
