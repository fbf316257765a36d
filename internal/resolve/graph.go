package resolve

import (
	"fmt"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// RemapGraph assigns fresh destination identities to every record in a
// decoded archive graph and rewrites all references through them. Archive
// IDs are local to the archive that produced them and must never leak into a
// destination store. Dangling references downgrade to absent with a warning,
// the same policy the row resolver applies.
func RemapGraph(g *types.Graph) (*types.Graph, []types.Warning) {
	ids := NewIDMap()
	var warnings []types.Warning

	warn := func(format string, args ...any) {
		warnings = append(warnings, types.Warning{
			Kind:   types.WarnDanglingReference,
			Detail: fmt.Sprintf(format, args...),
		})
	}
	mapRef := func(kind types.EntityKind, ref *string, owner string) *string {
		if ref == nil || *ref == "" {
			return nil
		}
		mapped, ok := ids.Lookup(kind, *ref)
		if !ok {
			warn("%s: %s %q not found", owner, kind, *ref)
			return nil
		}
		return &mapped
	}

	out := &types.Graph{
		Labels:    make([]types.Label, len(g.Labels)),
		Locations: make([]types.Location, len(g.Locations)),
		Policies:  make([]types.InsurancePolicy, len(g.Policies)),
		Homes:     make([]types.Home, len(g.Homes)),
		Items:     make([]types.Item, len(g.Items)),
	}

	// First pass in dependency order: assign identities.
	for i, l := range g.Labels {
		out.Labels[i] = l
		out.Labels[i].ID = ids.Assign(types.KindLabel, l.ID)
	}
	for i, l := range g.Locations {
		out.Locations[i] = l
		out.Locations[i].ID = ids.Assign(types.KindLocation, l.ID)
	}
	for i, p := range g.Policies {
		out.Policies[i] = p
		out.Policies[i].ID = ids.Assign(types.KindPolicy, p.ID)
	}
	for i, h := range g.Homes {
		out.Homes[i] = h
		out.Homes[i].ID = ids.Assign(types.KindHome, h.ID)
	}
	for i, it := range g.Items {
		out.Items[i] = it
		out.Items[i].ID = ids.Assign(types.KindItem, it.ID)
	}

	// Second pass: rewrite references.
	for i := range out.Locations {
		out.Locations[i].HomeID = mapRef(types.KindHome, g.Locations[i].HomeID, "location "+g.Locations[i].ID)
	}
	for i := range out.Items {
		out.Items[i].LocationID = mapRef(types.KindLocation, g.Items[i].LocationID, "item "+g.Items[i].ID)
		out.Items[i].HomeID = mapRef(types.KindHome, g.Items[i].HomeID, "item "+g.Items[i].ID)
	}

	remapPairs := func(rel types.Relationship, pairs []types.Pair) []types.Pair {
		var mapped []types.Pair
		for _, p := range pairs {
			owner, ok := ids.Lookup(rel.Owner(), p.OwnerID)
			if !ok {
				warn("%s: owner %q not found in %s", rel, p.OwnerID, rel.Owner())
				continue
			}
			member, ok := ids.Lookup(rel.Member(), p.MemberID)
			if !ok {
				warn("%s: member %q not found in %s", rel, p.MemberID, rel.Member())
				continue
			}
			mapped = append(mapped, types.Pair{OwnerID: owner, MemberID: member})
		}
		return dedupePairs(mapped)
	}
	out.ItemLabels = remapPairs(types.RelItemLabels, g.ItemLabels)
	out.HomePolicies = remapPairs(types.RelHomePolicies, g.HomePolicies)

	return out, warnings
}
