package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

func strptr(s string) *string     { return &s }
func fptr(f float64) *float64     { return &f }
func tptr(t time.Time) *time.Time { return &t }

func sampleGraph() *types.Graph {
	purchased := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	return &types.Graph{
		Labels: []types.Label{
			{ID: "l1", Name: "Fragile", Emoji: "🔖", Color: strptr("#FF0000FF")},
			{ID: "l2", Name: "Electronics"},
		},
		Locations: []types.Location{
			{ID: "loc1", Name: "Garage", Description: strptr("detached"), HomeID: strptr("h1")},
		},
		Policies: []types.InsurancePolicy{{
			ID: "p1", Provider: "Acme Mutual", PolicyNumber: strptr("POL-7"),
			CoverageAmount: fptr(250000), Deductible: fptr(500),
			StartDate: tptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		}},
		Homes: []types.Home{{ID: "h1", Name: "Main", IsPrimary: true, Address: strptr("1 Elm St")}},
		Items: []types.Item{{
			ID: "i1", Title: "TV", Quantity: 1, Price: fptr(799.99),
			PurchaseDate:    &purchased,
			PrimaryPhoto:    strptr("photos/tv.jpg"),
			SecondaryPhotos: []string{"photos/tv-2.jpg", "photos/tv-3.jpg"},
			Attachments:     []string{"receipts/tv.pdf"},
			LocationID:      strptr("loc1"), HomeID: strptr("h1"),
		}, {
			ID: "i2", Title: "Vase, blue \"antique\"", Quantity: 3,
			Notes: strptr("fragile\nhandle with care"),
		}},
		ItemLabels: []types.Pair{
			{OwnerID: "i1", MemberID: "l1"},
			{OwnerID: "i1", MemberID: "l2"},
		},
		HomePolicies: []types.Pair{{OwnerID: "h1", MemberID: "p1"}},
	}
}

func encodeGraph(t *testing.T, g *types.Graph) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.archive")
	enc, err := NewEncoder(path)
	require.NoError(t, err)

	require.NoError(t, enc.WriteLabels(g.Labels))
	require.NoError(t, enc.WriteLocations(g.Locations))
	require.NoError(t, enc.WritePolicies(g.Policies))
	require.NoError(t, enc.WriteHomes(g.Homes))
	require.NoError(t, enc.WriteItems(g.Items))
	require.NoError(t, enc.WritePairs(types.RelItemLabels, g.ItemLabels))
	require.NoError(t, enc.WritePairs(types.RelHomePolicies, g.HomePolicies))
	require.NoError(t, enc.Close())
	return path
}

func TestRoundTrip(t *testing.T) {
	want := sampleGraph()
	path := encodeGraph(t, want)

	got, err := Decode(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodePagesAccumulate(t *testing.T) {
	g := sampleGraph()
	path := filepath.Join(t.TempDir(), "inventory.archive")
	enc, err := NewEncoder(path)
	require.NoError(t, err)

	require.NoError(t, enc.WriteLabels(g.Labels[:1]))
	require.NoError(t, enc.WriteLabels(g.Labels[1:]))
	require.NoError(t, enc.Close())

	got, err := Decode(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, g.Labels, got.Labels)
}

func TestEncodeWritesEachTableEntryOnce(t *testing.T) {
	// Zip readers keep the last entry per name, so a duplicate header-only
	// entry after a populated one would shadow every row.
	path := encodeGraph(t, sampleGraph())

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	seen := map[string]int{}
	for _, f := range zr.File {
		seen[f.Name]++
	}
	for _, name := range requiredTables {
		assert.Equal(t, 1, seen[tablePath(name)], name)
	}
}

func TestEncodeIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.archive")

	enc, err := NewEncoder(path)
	require.NoError(t, err)
	require.NoError(t, enc.WriteLabels([]types.Label{{ID: "l1", Name: "A"}}))

	// Target file must not exist before Close.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	enc.Abort()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "abort must leave no temp files behind")
}

func TestAssetRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 640, 480))))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "photos"), 0o755))
	photoPath := filepath.Join(srcDir, "photos", "tv.jpg")
	require.NoError(t, os.WriteFile(photoPath, buf.Bytes(), 0o644))
	receiptPath := filepath.Join(srcDir, "receipt.pdf")
	require.NoError(t, os.WriteFile(receiptPath, []byte("%PDF-1.7 receipt"), 0o644))

	path := filepath.Join(t.TempDir(), "inventory.archive")
	enc, err := NewEncoder(path)
	require.NoError(t, err)
	require.NoError(t, enc.WriteAssetFile("photos/tv.jpg", photoPath))
	require.NoError(t, enc.WriteAssetFile("receipt.pdf", receiptPath))
	require.NoError(t, enc.Close())

	outDir := t.TempDir()
	_, err = Decode(context.Background(), path, outDir)
	require.NoError(t, err)

	extracted, err := os.ReadFile(filepath.Join(outDir, "photos", "tv.jpg"))
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), extracted)
	_, err = os.Stat(filepath.Join(outDir, "receipt.pdf"))
	require.NoError(t, err)

	// Image assets carry a preview entry; non-images do not.
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["previews/photos/tv.jpg.jpg"])
	assert.False(t, names["previews/receipt.pdf.jpg"])

	// Previews are derived; extraction skips them.
	_, err = os.Stat(filepath.Join(outDir, "..", "previews"))
	assert.Error(t, err)
}

// writeRawArchive builds an archive by hand so tests can control headers.
func writeRawArchive(t *testing.T, entries map[string][][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.archive")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	for name, rows := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		for _, row := range rows {
			line := ""
			for i, cell := range row {
				if i > 0 {
					line += ","
				}
				line += cell
			}
			_, err = w.Write([]byte(line + "\n"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func emptyTables() map[string][][]string {
	entries := make(map[string][][]string)
	for _, name := range requiredTables {
		entries[tablePath(name)] = [][]string{tableHeaders[name]}
	}
	return entries
}

func TestDecodeIgnoresUnknownColumns(t *testing.T) {
	entries := emptyTables()
	entries["tables/labels.csv"] = [][]string{
		{"id", "name", "emoji", "color", "sort_order"},
		{"l1", "Fragile", "", "#FF0000FF", "7"},
	}
	path := writeRawArchive(t, entries)

	g, err := Decode(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, g.Labels, 1)
	assert.Equal(t, "Fragile", g.Labels[0].Name)
	require.NotNil(t, g.Labels[0].Color)
	assert.Equal(t, "#FF0000FF", *g.Labels[0].Color)
}

func TestDecodeTreatsMissingOptionalColumnsAsAbsent(t *testing.T) {
	entries := emptyTables()
	entries["tables/items.csv"] = [][]string{
		{"id", "title"},
		{"i1", "Lamp"},
	}
	path := writeRawArchive(t, entries)

	g, err := Decode(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, g.Items, 1)
	item := g.Items[0]
	assert.Equal(t, "Lamp", item.Title)
	assert.EqualValues(t, 1, item.Quantity, "missing quantity means one physical item")
	assert.Nil(t, item.Price)
	assert.Nil(t, item.LocationID)
}

func TestDecodeRejectsMissingRequiredTable(t *testing.T) {
	entries := emptyTables()
	delete(entries, "tables/homes.csv")
	path := writeRawArchive(t, entries)

	_, err := Decode(context.Background(), path, "")
	assert.ErrorIs(t, err, types.ErrMalformedArchive)
}

func TestDecodeRejectsMissingRequiredColumn(t *testing.T) {
	entries := emptyTables()
	entries["tables/labels.csv"] = [][]string{
		{"name", "color"},
		{"Fragile", ""},
	}
	path := writeRawArchive(t, entries)

	_, err := Decode(context.Background(), path, "")
	assert.ErrorIs(t, err, types.ErrMalformedArchive)
}

func TestDecodeRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.archive")
	require.NoError(t, os.WriteFile(path, []byte("not a zip file"), 0o644))

	_, err := Decode(context.Background(), path, "")
	assert.ErrorIs(t, err, types.ErrMalformedArchive)
}

func TestDecodeRejectsEscapingAssetPath(t *testing.T) {
	entries := emptyTables()
	entries["assets/../escape.txt"] = [][]string{{"boom"}}
	path := writeRawArchive(t, entries)

	_, err := Decode(context.Background(), path, t.TempDir())
	assert.ErrorIs(t, err, types.ErrMalformedArchive)
}

func TestPreviewReadsManifest(t *testing.T) {
	g := sampleGraph()
	path := encodeGraph(t, g)

	sum, err := Preview(path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, sum.FormatVersion)
	assert.WithinDuration(t, time.Now(), sum.CreatedAt, time.Minute)
	assert.EqualValues(t, 2, sum.TableCounts["labels"])
	assert.EqualValues(t, 2, sum.TableCounts["items"])
	assert.EqualValues(t, 2, sum.TableCounts["item_labels"])
	assert.EqualValues(t, 1, sum.TableCounts["home_policies"])
	assert.Zero(t, sum.AssetCount)
}

func TestPreviewCountsRowsWithoutManifest(t *testing.T) {
	entries := emptyTables()
	entries["tables/labels.csv"] = [][]string{
		{"id", "name", "emoji", "color"},
		{"l1", "Fragile", "", ""},
		{"l2", "Electronics", "", ""},
	}
	path := writeRawArchive(t, entries)

	sum, err := Preview(path)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.TableCounts["labels"])
	assert.EqualValues(t, 0, sum.TableCounts["items"])
}
