package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect is the SQLite flavour of the annotation queries.
var Dialect = sqlstore.Dialect{
	Name:                 "sqlite",
	QuestionPlaceholders: true,
	Retryable:            isBusy,
}

var pragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// Open opens the SQLite database at path. SQLite allows one writer, so the
// pool holds a single connection and pragmas apply to every query.
func Open(path string) (*sqlstore.DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	stmts := pragmas
	if path != MemoryPath {
		stmts = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, pragma := range stmts {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return sqlstore.New(db, Dialect), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sqlstore.DB) ([]string, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	return db.Migrate(ctx, sub)
}

// Initialize opens the database and runs migrations.
func Initialize(ctx context.Context, path string) (*sqlstore.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
