// Package source defines the result-cursor contract the export pipeline reads
// from, a registry of database backends that provide it, and the batch reader
// that pulls fixed-size row batches off a cursor.
//
// Backends live in subpackages (mssql, postgres, mysql, sqlite) and register
// themselves by kind in init(). Import sql2parquet/internal/source/all to make
// every built-in backend available.
package source

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// Cursor is an open result set.
//
// Columns is valid as soon as the cursor is opened and never changes. Fetch
// returns up to n rows; an empty slice with a nil error means the result set
// is exhausted. Values of TagOther columns are passed through the installed
// Fallback before Fetch returns them.
type Cursor interface {
	Columns() []schema.ColumnDescriptor
	SetFallback(fn Fallback)
	Fetch(ctx context.Context, n int) ([]schema.Row, error)
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind  string
	DSN   string
	Table string
	Query string

	Options Options
}

// Statement returns the SQL to execute. A table takes precedence over a query.
func (c Config) Statement() (string, error) {
	if t := strings.TrimSpace(c.Table); t != "" {
		return "SELECT * FROM " + t, nil
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		return q, nil
	}
	return "", errors.New("source: table or query required")
}

// Opener opens a cursor for a backend.
type Opener func(ctx context.Context, cfg Config) (Cursor, error)

var (
	mu      sync.RWMutex
	openers = map[string]Opener{}
)

// Register installs (or replaces) the opener for kind. Backends call it from
// init().
func Register(kind string, fn Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[strings.ToLower(kind)] = fn
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(openers))
	for k := range openers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open executes cfg's statement on the backend registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Cursor, error) {
	mu.RLock()
	fn, ok := openers[strings.ToLower(cfg.Kind)]
	mu.RUnlock()
	if !ok {
		return nil, errors.Newf("source: no backend registered for kind %q (have %v)", cfg.Kind, Kinds())
	}
	return fn(ctx, cfg)
}
