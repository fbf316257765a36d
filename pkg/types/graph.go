package types

// Graph bundles a full entity snapshot: records per kind, join rows per
// relationship, and the asset references the records point at. It is the
// unit the archive codec encodes and decodes.
type Graph struct {
	Labels    []Label
	Locations []Location
	Policies  []InsurancePolicy
	Homes     []Home
	Items     []Item

	ItemLabels   []Pair
	HomePolicies []Pair
}

// Count returns the number of records of the given kind.
func (g *Graph) Count(kind EntityKind) int64 {
	switch kind {
	case KindLabel:
		return int64(len(g.Labels))
	case KindLocation:
		return int64(len(g.Locations))
	case KindPolicy:
		return int64(len(g.Policies))
	case KindHome:
		return int64(len(g.Homes))
	case KindItem:
		return int64(len(g.Items))
	}
	return 0
}

// Pairs returns the join rows for the given relationship.
func (g *Graph) Pairs(rel Relationship) []Pair {
	if rel == RelHomePolicies {
		return g.HomePolicies
	}
	return g.ItemLabels
}

// AssetRefs returns the de-duplicated asset references carried by all items,
// in first-seen order.
func (g *Graph) AssetRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, item := range g.Items {
		for _, ref := range item.AssetRefs() {
			if ref == "" || seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// Selection filters which user-selectable entity kinds travel through export
// and import. Homes and policies always travel; they are the containers the
// selected kinds hang off. The zero value selects everything.
type Selection struct {
	Items     bool
	Locations bool
	Labels    bool
}

// Normalize returns the selection with the zero value expanded to all kinds.
func (s Selection) Normalize() Selection {
	if !s.Items && !s.Locations && !s.Labels {
		return Selection{Items: true, Locations: true, Labels: true}
	}
	return s
}

// Apply returns a copy of g reduced to the selected kinds. Join rows whose
// endpoints were filtered out are dropped with them.
func (s Selection) Apply(g *Graph) *Graph {
	s = s.Normalize()
	out := &Graph{
		Policies:     g.Policies,
		Homes:        g.Homes,
		HomePolicies: g.HomePolicies,
	}
	if s.Labels {
		out.Labels = g.Labels
	}
	if s.Locations {
		out.Locations = g.Locations
	}
	if s.Items {
		out.Items = g.Items
		if s.Labels {
			out.ItemLabels = g.ItemLabels
		}
		if !s.Locations {
			items := make([]Item, len(g.Items))
			copy(items, g.Items)
			for i := range items {
				items[i].LocationID = nil
			}
			out.Items = items
		}
	}
	return out
}
