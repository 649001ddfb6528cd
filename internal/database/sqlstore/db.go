package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect describes how a SQL backend differs from PostgreSQL syntax.
// Queries are written with $N placeholders, each used exactly once and in order.
type Dialect struct {
	Name string
	// QuestionPlaceholders rewrites $N placeholders to ? before execution.
	QuestionPlaceholders bool
	// LockClause is appended to row lookups that precede a write, e.g. " FOR UPDATE".
	LockClause string
	// Retryable reports whether a failed transaction may be run again.
	Retryable func(err error) bool
}

// DB wraps a database/sql pool together with its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open pool.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// DB returns the underlying sql.DB for direct access.
func (p *DB) DB() *sql.DB {
	return p.db
}

// Dialect returns the dialect the pool was opened with.
func (p *DB) Dialect() Dialect {
	return p.dialect
}

// Close closes the connection pool.
func (p *DB) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Rebind converts a query written with $N placeholders to the dialect's syntax.
func (p *DB) Rebind(query string) string {
	if !p.dialect.QuestionPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && isDigit(query[i+1]) {
			b.WriteByte('?')
			for i+1 < len(query) && isDigit(query[i+1]) {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// QueryRow executes a query that returns a single row.
func (p *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, p.Rebind(query), args...)
}

// Query executes a query that returns rows.
func (p *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, p.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, p.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction.
func (p *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Ping verifies the connection.
func (p *DB) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (p *DB) retryable(err error) bool {
	return p.dialect.Retryable != nil && p.dialect.Retryable(err)
}
