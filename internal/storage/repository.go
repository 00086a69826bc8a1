package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a repository.
//
// Kind must match a registered backend kind ("sqlite", "postgres", "mssql").
// DSN is passed through to the backend factory; for sqlite it is a file path.
type Config struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Result is a generic tabular query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Repository is a backend-agnostic interface for full-refresh loading and
// read queries.
//
// IMPORTANT: This interface is intentionally minimal and focused on what the
// pipeline needs: replace a table wholesale, then read it back. Each backend
// implements the semantics in its own idiomatic way (placeholder style,
// transaction shape, identifier quoting).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// ReplaceTable atomically replaces the named table with exactly the given
	// rows: drop (if present), create from spec, bulk insert.
	//
	// Transactionality contract:
	//   - On success the table holds all input rows and nothing else.
	//   - On error before commit, the previous table state stays observable.
	//   - Values are always bound as parameters, never spliced into SQL text.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any) error

	// Query runs a read-only query and returns its full tabular result.
	// args are bound with the backend's native placeholder style.
	Query(ctx context.Context, query string, args ...any) (*Result, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call from an init() function in
// a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds. Useful for error messages and
// config validation.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
