// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. It performs batched INSERTs inside a transaction; SQLite has
// no dedicated bulk-load API like Postgres COPY, but transactions keep
// performance acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cleanse/internal/storage"
)

func init() {
	storage.Register("sqlite",
		func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return NewRepository(ctx, cfg)
		},
		createTableSQL,
	)
}

// Repository is a SQLite-backed implementation of storage.Repository, bound
// to a single destination table.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository opens a SQLite connection using the provided DSN, for
// example "file:run.db?cache=shared" or just "run.db".
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

// CopyFrom inserts rows in a single transaction using a prepared statement.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		sqIdent(r.table), strings.Join(mapIdent(columns), ","), placeholders,
	)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		rollback()
		return 0, fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			rollback()
			return n, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for SQLite.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// Close closes the database handle.
func (r *Repository) Close() error { return r.db.Close() }

func createTableSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sqIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqIdent(table), strings.Join(cols, ", "))
}

func sqIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = sqIdent(c)
	}
	return out
}
