// Package dest writes the destination store. A migration or import run
// writes into a staging file next to the final path; nothing user-visible
// changes until Promote renames the staging file over the destination on
// full success. Discard removes the staging file, leaving whatever was there
// before untouched.
package dest

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Store is a handle on a destination store, either a staging file being
// built by a run or an existing store opened for reading (export).
type Store struct {
	db        *sql.DB
	finalPath string
	workPath  string
	staging   bool
}

// stagingSuffix marks the in-progress file. A crash leaves the suffix
// behind; the next run removes it.
const stagingSuffix = ".staging"

// Create starts a fresh staging store for path. Any leftover staging file
// from a crashed run is removed first.
func Create(path string) (*Store, error) {
	work := path + stagingSuffix
	if err := os.Remove(work); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale staging file: %w", err)
	}

	db, err := sql.Open("sqlite", work)
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			os.Remove(work)
			return nil, fmt.Errorf("apply destination schema: %w", err)
		}
	}
	return &Store{db: db, finalPath: path, workPath: work, staging: true}, nil
}

// Open opens an existing destination-format store read-only, for export.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSourceUnavailable, path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db, finalPath: path, workPath: path}
	if _, err := s.Count(context.Background(), types.KindItem); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: not a destination store", types.ErrSourceUnavailable, path)
	}
	return s, nil
}

// Promote closes the staging store and atomically renames it over the final
// path. Only call after validation passed.
func (s *Store) Promote() error {
	if !s.staging {
		return fmt.Errorf("promote: store was not opened for staging")
	}
	if err := s.closeDB(); err != nil {
		return fmt.Errorf("close staging store: %w", err)
	}
	if err := os.Rename(s.workPath, s.finalPath); err != nil {
		return fmt.Errorf("promote staging store: %w", err)
	}
	return nil
}

// Discard closes and deletes the staging store. Idempotent; safe on failure
// and cancellation paths.
func (s *Store) Discard() error {
	if !s.staging {
		return s.closeDB()
	}
	closeErr := s.closeDB()
	if err := os.Remove(s.workPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging store: %w", err)
	}
	return closeErr
}

// Close releases the handle without touching files. For read handles.
func (s *Store) Close() error { return s.closeDB() }

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the final destination path.
func (s *Store) Path() string { return s.finalPath }

// Count returns the destination row count for an entity kind.
func (s *Store) Count(ctx context.Context, kind types.EntityKind) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", string(kind))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// PairCount returns the destination join-row count for a relationship.
func (s *Store) PairCount(ctx context.Context, rel types.Relationship) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", string(rel))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", rel, err)
	}
	return n, nil
}
