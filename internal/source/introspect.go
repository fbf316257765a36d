package source

import (
	"context"
	"fmt"
)

// HasTable reports whether the store contains a table with the given name.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	const query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	var n int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return false, fmt.Errorf("probe table %s: %w", name, err)
	}
	return n > 0, nil
}

// HasColumn reports whether a table carries the given column. Used to detect
// the legacy foreign-key relationship layout.
func (s *Store) HasColumn(ctx context.Context, table, column string) (bool, error) {
	ok, err := s.HasTable(ctx, table)
	if err != nil || !ok {
		return false, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("probe columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int64
			name    string
			colType string
			notNull int64
			dflt    any
			pk      int64
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info of %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
