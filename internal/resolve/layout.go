// Package resolve normalizes relationships across the two historical source
// layouts, builds the raw-to-new ID map, and rewrites every cross-entity
// reference through it. Destination identities are never copied from the
// source.
package resolve

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/boxport/internal/source"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Layout is the on-disk convention a source uses for one relationship.
// Detection is per relationship: a single source may mix both.
type Layout string

const (
	// LayoutLegacyColumn stores the relationship as a foreign-key column
	// on the owning side's table (one member per owner, a historical
	// limitation).
	LayoutLegacyColumn Layout = "legacy_fk_column"

	// LayoutJoinTable stores the relationship as explicit join rows.
	LayoutJoinTable Layout = "join_table"
)

// DetectLayout probes the source schema for one relationship. A join table
// wins over a leftover legacy column; a source with neither simply has no
// relationship rows and reports the join-table layout.
func DetectLayout(ctx context.Context, s *source.Store, rel types.Relationship) (Layout, error) {
	joinTable, legacyTable, legacyColumn := layoutProbes(rel)

	hasJoin, err := s.HasTable(ctx, joinTable)
	if err != nil {
		return "", fmt.Errorf("detect layout for %s: %w", rel, err)
	}
	if hasJoin {
		return LayoutJoinTable, nil
	}

	hasColumn, err := s.HasColumn(ctx, legacyTable, legacyColumn)
	if err != nil {
		return "", fmt.Errorf("detect layout for %s: %w", rel, err)
	}
	if hasColumn {
		return LayoutLegacyColumn, nil
	}
	return LayoutJoinTable, nil
}

// layoutProbes returns the join table name and the legacy column location
// for a relationship. The legacy column always sits on the table that used
// to own the single reference: items carried label_id, policies carried
// home_id.
func layoutProbes(rel types.Relationship) (joinTable, legacyTable, legacyColumn string) {
	if rel == types.RelHomePolicies {
		return source.TableHomePolicies, source.TablePolicies, "home_id"
	}
	return source.TableItemLabels, source.TableItems, "label_id"
}

// ExtractPairs reads one relationship out of the source in whichever layout
// was detected and normalizes it to (owner, member) pairs. Duplicate pairs,
// including stale duplicate join rows, are dropped; pairs with an empty side
// are skipped.
func ExtractPairs(ctx context.Context, s *source.Store, rel types.Relationship, layout Layout) ([]types.Pair, error) {
	joinTable, legacyTable, legacyColumn := layoutProbes(rel)

	var (
		raw []types.Pair
		err error
	)
	switch layout {
	case LayoutJoinTable:
		ok, herr := s.HasTable(ctx, joinTable)
		if herr != nil {
			return nil, herr
		}
		if !ok {
			return nil, nil
		}
		if rel == types.RelHomePolicies {
			raw, err = s.QueryPairs(ctx, joinTable, "home_id", "policy_id")
		} else {
			raw, err = s.QueryPairs(ctx, joinTable, "item_id", "label_id")
		}
	case LayoutLegacyColumn:
		// The legacy column sits on the member-carrying table; for
		// home<->policy the policy row points at its home, so owner
		// and member come back swapped.
		if rel == types.RelHomePolicies {
			raw, err = s.QueryPairs(ctx, legacyTable, legacyColumn, "id")
		} else {
			raw, err = s.QueryPairs(ctx, legacyTable, "id", legacyColumn)
		}
	default:
		return nil, fmt.Errorf("unknown layout %q for %s", layout, rel)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s pairs: %w", rel, err)
	}

	return dedupePairs(raw), nil
}

// dedupePairs drops duplicate and half-empty pairs, preserving first-seen
// order.
func dedupePairs(pairs []types.Pair) []types.Pair {
	seen := make(map[types.Pair]bool, len(pairs))
	var out []types.Pair
	for _, p := range pairs {
		if p.OwnerID == "" || p.MemberID == "" {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
