// Package migrations exposes the embedded webhook schema, one migration set
// per supported SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	lifecycle "github.com/goliatone/go-webhook-lifecycle"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const rootDir = "data/sql/migrations"

// Source is the migration set of one dialect. Postgres files live at the
// root directory and sqlite files under its sqlite/ subdirectory.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

type Option func(*[]string)

// WithDialects limits Register to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(selected *[]string) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			dialect = strings.TrimSpace(strings.ToLower(dialect))
			if dialect != "" && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		*selected = next
	}
}

// Sources returns the embedded postgres and sqlite sets. Each must hold at
// least one *.up.sql file.
func Sources() ([]Source, error) {
	root, err := fs.Sub(lifecycle.GetMigrationsFS(), rootDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
	}
	sqliteFS, err := fs.Sub(root, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite set: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: rootDir, FS: root},
		{Dialect: DialectSQLite, Path: rootDir + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", source.Path)
		}
	}
	return sources, nil
}

// Register hands each selected dialect's migrations to registerFn, postgres
// first. It returns the dialects registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]string, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	selected := []string{DialectPostgres, DialectSQLite}
	for _, opt := range opts {
		if opt != nil {
			opt(&selected)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("migrations: at least one dialect is required")
	}
	for _, dialect := range selected {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
	}

	sources, err := Sources()
	if err != nil {
		return nil, err
	}
	registered := make([]string, 0, len(selected))
	for _, source := range sources {
		if !slices.Contains(selected, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source.Dialect)
	}
	return registered, nil
}
