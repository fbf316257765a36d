// Package source reads the legacy inventory store. The store is a single
// SQLite file; it is opened read-only and is never written for the engine's
// entire lifetime. Rows come out in bounded pages so resident memory stays
// flat regardless of dataset size.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Legacy table names. The legacy store predates the current schema; items
// live in inventory_items and policies in insurance_policies.
const (
	TableItems     = "inventory_items"
	TableLocations = "locations"
	TableLabels    = "labels"
	TableHomes     = "homes"
	TablePolicies  = "insurance_policies"

	// Join tables present only in layout-B sources.
	TableItemLabels   = "item_labels"
	TableHomePolicies = "home_policies"
)

// requiredTables must all exist for a file to count as a legacy store.
// insurance_policies is absent from the oldest installs and is tolerated.
var requiredTables = []string{TableItems, TableLocations, TableLabels, TableHomes}

// Store is a read-only handle on a legacy source store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the legacy store at path. It fails with ErrSourceUnavailable
// when the path does not exist or the file is not a recognized legacy store.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSourceUnavailable, path)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	s := &Store{db: db, path: path}
	for _, table := range requiredTables {
		ok, err := s.HasTable(context.Background(), table)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", types.ErrSourceUnavailable, path, err)
		}
		if !ok {
			db.Close()
			return nil, fmt.Errorf("%w: %s: missing table %s", types.ErrSourceUnavailable, path, table)
		}
	}
	return s, nil
}

// Detect probes whether path holds a migratable legacy store. A missing path
// or an unrecognized file reports false without error; migration simply has
// nothing to do.
func Detect(path string) bool {
	s, err := Open(path)
	if err != nil {
		return false
	}
	s.Close()
	return true
}

// Close releases the handle. Safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the filesystem path the store was opened from.
func (s *Store) Path() string { return s.path }

// Table returns the legacy table name for an entity kind.
func Table(kind types.EntityKind) string {
	switch kind {
	case types.KindItem:
		return TableItems
	case types.KindLocation:
		return TableLocations
	case types.KindLabel:
		return TableLabels
	case types.KindHome:
		return TableHomes
	case types.KindPolicy:
		return TablePolicies
	}
	return ""
}

// Count returns the row count for an entity kind. A kind whose table is
// absent (old installs without insurance_policies) counts as zero.
func (s *Store) Count(ctx context.Context, kind types.EntityKind) (int64, error) {
	table := Table(kind)
	ok, err := s.HasTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	query, args, err := sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// QueryPairs reads every (owner, member) pair from a join table. Used by the
// resolver for layout-B relationship extraction.
func (s *Store) QueryPairs(ctx context.Context, table, ownerCol, memberCol string) ([]types.Pair, error) {
	query, args, err := sq.Select(ownerCol, memberCol).From(table).OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pair query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var pairs []types.Pair
	for rows.Next() {
		var owner, member sql.NullString
		if err := rows.Scan(&owner, &member); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		pairs = append(pairs, types.Pair{OwnerID: owner.String, MemberID: member.String})
	}
	return pairs, rows.Err()
}
