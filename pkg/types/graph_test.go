package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func testGraph() *Graph {
	return &Graph{
		Labels:    []Label{{ID: "l1", Name: "Fragile"}, {ID: "l2", Name: "Electronics"}},
		Locations: []Location{{ID: "loc1", Name: "Garage"}},
		Homes:     []Home{{ID: "h1", Name: "Main", IsPrimary: true}},
		Items: []Item{
			{ID: "i1", Title: "TV", PrimaryPhoto: strptr("photos/tv.jpg"), LocationID: strptr("loc1")},
			{ID: "i2", Title: "Vase", SecondaryPhotos: []string{"photos/vase-1.jpg", "photos/tv.jpg"}},
		},
		ItemLabels: []Pair{{OwnerID: "i1", MemberID: "l2"}, {OwnerID: "i2", MemberID: "l1"}},
	}
}

func TestGraphCount(t *testing.T) {
	g := testGraph()
	assert.Equal(t, int64(2), g.Count(KindLabel))
	assert.Equal(t, int64(1), g.Count(KindLocation))
	assert.Equal(t, int64(0), g.Count(KindPolicy))
	assert.Equal(t, int64(1), g.Count(KindHome))
	assert.Equal(t, int64(2), g.Count(KindItem))
}

func TestGraphAssetRefsDeduplicated(t *testing.T) {
	refs := testGraph().AssetRefs()
	require.Equal(t, []string{"photos/tv.jpg", "photos/vase-1.jpg"}, refs)
}

func TestSelectionZeroValueSelectsAll(t *testing.T) {
	s := Selection{}.Normalize()
	assert.True(t, s.Items)
	assert.True(t, s.Locations)
	assert.True(t, s.Labels)
}

func TestSelectionDropsFilteredEndpoints(t *testing.T) {
	g := testGraph()

	out := Selection{Items: true}.Apply(g)
	assert.Len(t, out.Items, 2)
	assert.Empty(t, out.Labels)
	assert.Empty(t, out.ItemLabels, "join rows must not reference filtered labels")
	for _, item := range out.Items {
		assert.Nil(t, item.LocationID, "location refs must not survive without locations")
	}

	// Homes and policies always travel.
	assert.Len(t, out.Homes, 1)
}

func TestSelectionKeepsHomesWhenOnlyLabelsSelected(t *testing.T) {
	out := Selection{Labels: true}.Apply(testGraph())
	assert.Len(t, out.Labels, 2)
	assert.Empty(t, out.Items)
	assert.Empty(t, out.ItemLabels)
	assert.Len(t, out.Homes, 1)
}

func TestDependencyOrder(t *testing.T) {
	require.Equal(t, []EntityKind{KindLabel, KindLocation, KindPolicy, KindHome, KindItem}, KindsInDependencyOrder)
	for _, rel := range Relationships {
		assert.True(t, rel.Owner().Valid())
		assert.True(t, rel.Member().Valid())
	}
}
