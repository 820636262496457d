package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/staticpub/internal/collector"
)

// ModelSource pages through a table of publishable rows. The table needs
// columns id, path, list_path and published; rows are ordered by id.
type ModelSource struct {
	db    DB
	table string
}

var _ collector.ModelSource = (*ModelSource)(nil)

// NewModelSource wraps db for the given table.
func NewModelSource(db DB, table string) (*ModelSource, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		return nil, fmt.Errorf("model table is required")
	}
	table, err := tableName(table, "")
	if err != nil {
		return nil, err
	}
	return &ModelSource{db: db, table: table}, nil
}

// Page implements collector.ModelSource.
func (s *ModelSource) Page(ctx context.Context, offset, limit int) ([]any, error) {
	query := fmt.Sprintf(`
SELECT id::text, COALESCE(path, ''), COALESCE(list_path, ''), published
FROM %s
ORDER BY id
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

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
