// Package sqlite exposes a table in a SQLite database as a collector model
// source, for sites whose content lives in a local database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/staticpub/internal/collector"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ModelSource pages through a table with columns id, path, list_path and
// published.
type ModelSource struct {
	db    *sql.DB
	table string
	owned bool
}

var _ collector.ModelSource = (*ModelSource)(nil)

// Open opens the database file read-only.
func Open(path, table string) (*ModelSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite database %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	src, err := New(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	src.owned = true
	return src, nil
}

// New wraps an existing handle; the caller keeps ownership of db.
func New(db *sql.DB, table string) (*ModelSource, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite handle is required")
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ModelSource{db: db, table: table}, nil
}

// Close closes the database when Open created it.
func (s *ModelSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Page implements collector.ModelSource.
func (s *ModelSource) Page(ctx context.Context, offset, limit int) ([]any, error) {
	query := fmt.Sprintf(`
SELECT CAST(id AS TEXT), COALESCE(path, ''), COALESCE(list_path, ''), published
FROM %s
ORDER BY id
LIMIT ? OFFSET ?`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []any
	for rows.Next() {
		var row collector.Row
		if err := rows.Scan(&row.ID, &row.Path, &row.ListPath, &row.Published); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", s.table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return out, nil
}
