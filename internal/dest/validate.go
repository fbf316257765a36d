package dest

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// danglingChecks spot-validate that every foreign key and join-row reference
// in the destination resolves. The writer's ordering makes these impossible;
// validation proves it rather than assuming it.
var danglingChecks = []struct {
	name  string
	query string
}{
	{"items.location_id", `SELECT COUNT(*) FROM items WHERE location_id IS NOT NULL AND location_id NOT IN (SELECT id FROM locations)`},
	{"items.home_id", `SELECT COUNT(*) FROM items WHERE home_id IS NOT NULL AND home_id NOT IN (SELECT id FROM homes)`},
	{"locations.home_id", `SELECT COUNT(*) FROM locations WHERE home_id IS NOT NULL AND home_id NOT IN (SELECT id FROM homes)`},
	{"item_labels.item_id", `SELECT COUNT(*) FROM item_labels WHERE item_id NOT IN (SELECT id FROM items)`},
	{"item_labels.label_id", `SELECT COUNT(*) FROM item_labels WHERE label_id NOT IN (SELECT id FROM labels)`},
	{"home_policies.home_id", `SELECT COUNT(*) FROM home_policies WHERE home_id NOT IN (SELECT id FROM homes)`},
	{"home_policies.policy_id", `SELECT COUNT(*) FROM home_policies WHERE policy_id NOT IN (SELECT id FROM policies)`},
}

// colorCheck confirms every present color survived re-encoding to the
// portable 8-hex form. Colors that failed to decode are absent by policy and
// pass.
const colorCheck = `SELECT COUNT(*) FROM labels WHERE color IS NOT NULL AND color NOT GLOB '#[0-9A-F][0-9A-F][0-9A-F][0-9A-F][0-9A-F][0-9A-F][0-9A-F][0-9A-F]'`

// Validate compares per-kind record counts against the expected counts and
// runs the reference-integrity and color spot checks. Any discrepancy
// reports ErrValidationMismatch naming the entity kind and the expected and
// actual counts; the caller discards the staging store.
func (s *Store) Validate(ctx context.Context, want map[types.EntityKind]int64, wantPairs map[types.Relationship]int64) error {
	for _, kind := range types.KindsInDependencyOrder {
		got, err := s.Count(ctx, kind)
		if err != nil {
			return err
		}
		if got != want[kind] {
			return fmt.Errorf("%w: %s: expected %d records, got %d", types.ErrValidationMismatch, kind, want[kind], got)
		}
	}

	for _, rel := range types.Relationships {
		got, err := s.PairCount(ctx, rel)
		if err != nil {
			return err
		}
		if got != wantPairs[rel] {
			return fmt.Errorf("%w: %s: expected %d join rows, got %d", types.ErrValidationMismatch, rel, wantPairs[rel], got)
		}
	}

	for _, check := range danglingChecks {
		var n int64
		if err := s.db.QueryRowContext(ctx, check.query).Scan(&n); err != nil {
			return fmt.Errorf("dangling check %s: %w", check.name, err)
		}
		if n != 0 {
			return fmt.Errorf("%w: %s: %d dangling references", types.ErrValidationMismatch, check.name, n)
		}
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, colorCheck).Scan(&n); err != nil {
		return fmt.Errorf("color check: %w", err)
	}
	if n != 0 {
		return fmt.Errorf("%w: labels.color: %d values not in portable form", types.ErrValidationMismatch, n)
	}
	return nil
}
