package dest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// WritePage inserts one page of records inside a single transaction. The
// page is the unit of recovery: a failure rolls the page back and aborts the
// run, leaving previously committed pages intact in the staging file (which
// is then discarded as a whole).
func (s *Store) WritePage(ctx context.Context, kind types.EntityKind, records any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin page transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	switch kind {
	case types.KindLabel:
		n, err = insertLabels(ctx, tx, records.([]types.Label))
	case types.KindLocation:
		n, err = insertLocations(ctx, tx, records.([]types.Location))
	case types.KindPolicy:
		n, err = insertPolicies(ctx, tx, records.([]types.InsurancePolicy))
	case types.KindHome:
		n, err = insertHomes(ctx, tx, records.([]types.Home))
	case types.KindItem:
		n, err = insertItems(ctx, tx, records.([]types.Item))
	default:
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s page: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s page: %w", kind, err)
	}
	return n, nil
}

// WritePairs inserts join rows for a relationship. Callers must have fully
// committed both endpoint kinds first; a pair can never reference a kind
// that has not finished writing.
func (s *Store) WritePairs(ctx context.Context, rel types.Relationship, pairs []types.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	ownerCol, memberCol := pairColumns(rel)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pair transaction: %w", err)
	}
	defer tx.Rollback()

	builder := sq.Insert(string(rel)).Columns(ownerCol, memberCol)
	for _, p := range pairs {
		builder = builder.Values(p.OwnerID, p.MemberID)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", rel, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write %s pairs: %w", rel, err)
	}
	return tx.Commit()
}

// BackfillLocationHomes writes the location -> home references after homes
// exist. refs maps location ID to home ID.
func (s *Store) BackfillLocationHomes(ctx context.Context, refs map[string]string) error {
	if len(refs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backfill transaction: %w", err)
	}
	defer tx.Rollback()

	for locID, homeID := range refs {
		query, args, err := sq.Update("locations").
			Set("home_id", homeID).
			Where(sq.Eq{"id": locID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build backfill update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("backfill location %s: %w", locID, err)
		}
	}
	return tx.Commit()
}

func pairColumns(rel types.Relationship) (string, string) {
	if rel == types.RelHomePolicies {
		return "home_id", "policy_id"
	}
	return "item_id", "label_id"
}

func insertLabels(ctx context.Context, tx *sql.Tx, labels []types.Label) (int, error) {
	for _, l := range labels {
		query, args, err := sq.Insert("labels").
			Columns("id", "name", "emoji", "color").
			Values(l.ID, l.Name, l.Emoji, optVal(l.Color)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	return len(labels), nil
}

func insertLocations(ctx context.Context, tx *sql.Tx, locs []types.Location) (int, error) {
	for _, l := range locs {
		query, args, err := sq.Insert("locations").
			Columns("id", "name", "description", "home_id").
			Values(l.ID, l.Name, optVal(l.Description), optVal(l.HomeID)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	return len(locs), nil
}

func insertPolicies(ctx context.Context, tx *sql.Tx, policies []types.InsurancePolicy) (int, error) {
	for _, p := range policies {
		query, args, err := sq.Insert("policies").
			Columns("id", "provider", "policy_number", "coverage_amount", "deductible", "start_date", "end_date").
			Values(p.ID, p.Provider, optVal(p.PolicyNumber), optFloatVal(p.CoverageAmount),
				optFloatVal(p.Deductible), optTimeVal(p.StartDate), optTimeVal(p.EndDate)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	return len(policies), nil
}

func insertHomes(ctx context.Context, tx *sql.Tx, homes []types.Home) (int, error) {
	for _, h := range homes {
		primary := 0
		if h.IsPrimary {
			primary = 1
		}
		query, args, err := sq.Insert("homes").
			Columns("id", "name", "is_primary", "address").
			Values(h.ID, h.Name, primary, optVal(h.Address)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	return len(homes), nil
}

func insertItems(ctx context.Context, tx *sql.Tx, items []types.Item) (int, error) {
	for _, it := range items {
		query, args, err := sq.Insert("items").
			Columns("id", "title", "description", "quantity", "price",
				"condition", "serial_number", "make", "model",
				"width", "height", "depth", "weight",
				"purchase_date", "notes",
				"primary_photo", "secondary_photos", "attachments",
				"location_id", "home_id").
			Values(it.ID, it.Title, optVal(it.Description), it.Quantity, optFloatVal(it.Price),
				optVal(it.Condition), optVal(it.SerialNumber), optVal(it.Make), optVal(it.Model),
				optFloatVal(it.Width), optFloatVal(it.Height), optFloatVal(it.Depth), optFloatVal(it.Weight),
				optTimeVal(it.PurchaseDate), optVal(it.Notes),
				optVal(it.PrimaryPhoto), refListVal(it.SecondaryPhotos), refListVal(it.Attachments),
				optVal(it.LocationID), optVal(it.HomeID)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// optVal maps a nil pointer to SQL NULL; absence stays absence.
func optVal(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optFloatVal(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optTimeVal(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// refListVal stores an asset reference list as a JSON array, NULL when
// empty.
func refListVal(refs []string) any {
	if len(refs) == 0 {
		return nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil
	}
	return string(b)
}
