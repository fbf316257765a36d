package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// RawRow is one source row as a column name to value map. Values are
// whatever the driver produced (int64, float64, string, []byte, nil);
// columns vary with the detected relationship layout, so rows are scanned
// generically rather than into fixed structs.
type RawRow map[string]any

// ReadPage reads one bounded page of rows for an entity kind, ordered by
// rowid. offset and limit drive plain sequential paging; the source is
// read-only so rowid order is stable across the run. The second return is
// true when another page may follow.
func (s *Store) ReadPage(ctx context.Context, kind types.EntityKind, offset, limit int64) ([]RawRow, bool, error) {
	table := Table(kind)
	if table == "" {
		return nil, false, fmt.Errorf("unknown entity kind %q", kind)
	}
	ok, err := s.HasTable(ctx, table)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	query, args, err := sq.Select("*").From(table).
		OrderBy("rowid").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build page query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("read %s page at %d: %w", table, offset, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("columns of %s: %w", table, err)
	}

	var page []RawRow
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(RawRow, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate %s: %w", table, err)
	}

	return page, int64(len(page)) == limit, nil
}

// String returns the column as a string. Absent and NULL columns report
// false; numeric values are formatted, since legacy stores are loosely
// typed.
func (r RawRow) String(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int64 returns the column as an int64, false when absent or NULL.
func (r RawRow) Int64(col string) (int64, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float64 returns the column as a float64, false when absent or NULL.
func (r RawRow) Float64(col string) (float64, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bytes returns the column as raw bytes, false when absent or NULL.
func (r RawRow) Bytes(col string) ([]byte, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, false
	}
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		return nil, false
	}
}

// Time returns the column parsed as RFC 3339, false when absent, NULL, or
// unparseable.
func (r RawRow) Time(col string) (time.Time, bool) {
	s, ok := r.String(col)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
