// Package storage contains storage-agnostic contracts and the backend
// factory. Concrete backends (Postgres, SQLite, MSSQL) register themselves
// by kind from their init functions; importing the storage/all package wires
// every built-in backend into a binary.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config describes one destination table for a repository.
type Config struct {
	// Kind selects the backend ("postgres", "sqlite", "mssql").
	Kind string
	// DSN is the backend connection string.
	DSN string
	// Table is the destination table name, possibly schema-qualified.
	Table string
}

// Repository is the minimal write interface the run container needs. A
// repository is bound to a single destination table.
type Repository interface {
	// CopyFrom bulk-inserts rows aligned to columns and returns the number
	// of rows written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a raw statement (DDL, truncation) against the backend.
	Exec(ctx context.Context, sql string) error
	// Close releases the underlying connection resources.
	Close() error
}

// Factory constructs a backend-specific repository.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// CreateTableFn renders the backend's create-if-missing DDL for a table
// whose columns are all nullable text.
type CreateTableFn func(table string, columns []string) string

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	ddl       = map[string]CreateTableFn{}
)

// Register installs a backend factory plus its DDL renderer under kind.
// Registering a kind twice panics: backends are wired once at program start.
func Register(kind string, f Factory, d CreateTableFn) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: duplicate backend kind " + kind)
	}
	factories[kind] = f
	ddl[kind] = d
}

// New opens a repository of the configured kind. Unknown kinds report the
// registered alternatives, which usually points at a missing blank import.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %s)", cfg.Kind, strings.Join(kinds(), ", "))
	}
	return f(ctx, cfg)
}

// EnsureTable creates the destination table when the backend knows how to.
// All columns are created as nullable text; processed rows are textual by
// contract.
func EnsureTable(ctx context.Context, repo Repository, kind, table string, columns []string) error {
	mu.RLock()
	d := ddl[kind]
	mu.RUnlock()
	if d == nil {
		return fmt.Errorf("storage: kind %q has no DDL support", kind)
	}
	if err := repo.Exec(ctx, d(table, columns)); err != nil {
		return fmt.Errorf("storage: create table %s: %w", table, err)
	}
	return nil
}

func kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
