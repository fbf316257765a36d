package archive

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// row gives name-addressed access to one CSV record. Columns are looked up
// by header name, never position, so column reordering and unknown columns
// from newer encoders are harmless.
type row struct {
	index map[string]int
	cells []string
}

func (r row) cell(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok || i >= len(r.cells) {
		return "", false
	}
	return r.cells[i], true
}

// required returns the named cell or fails the decode; used only for the
// identity and display-name columns no version of the format has lacked.
func (r row) required(table, name string) (string, error) {
	v, ok := r.cell(name)
	if !ok {
		return "", fmt.Errorf("%w: table %s missing column %q", types.ErrMalformedArchive, table, name)
	}
	return v, nil
}

func (r row) optString(name string) *string {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (r row) optFloat(name string) *float64 {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (r row) optTime(name string) *time.Time {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (r row) refList(name string) []string {
	v, ok := r.cell(name)
	if !ok || v == "" {
		return nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(v), &refs); err != nil {
		return nil
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// forEachRow streams one table's CSV rows through fn without materializing
// the table. The first record is the header.
func forEachRow(f *zip.File, table string, fn func(row) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening table %s: %w", table, err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1 // header drives width, not the first data row

	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: table %s has no header", types.ErrMalformedArchive, table)
	}
	if err != nil {
		return fmt.Errorf("%w: table %s: %v", types.ErrMalformedArchive, table, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	for {
		cells, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: table %s: %v", types.ErrMalformedArchive, table, err)
		}
		if err := fn(row{index: index, cells: cells}); err != nil {
			return err
		}
	}
}

// Decode reads an archive into a graph and extracts its bundled asset files
// into assetsDir. Entity tables decode by column name; unknown columns are
// ignored and missing optional columns decode as absent. Preview thumbnails
// are derived data and are not extracted.
//
// An empty assetsDir skips asset extraction.
func Decode(ctx context.Context, path, assetsDir string) (*types.Graph, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedArchive, err)
	}
	defer zr.Close()

	tables := make(map[string]*zip.File)
	var assetFiles []*zip.File
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, tableDir) && strings.HasSuffix(f.Name, ".csv"):
			name := strings.TrimSuffix(strings.TrimPrefix(f.Name, tableDir), ".csv")
			tables[name] = f
		case strings.HasPrefix(f.Name, assetDir):
			assetFiles = append(assetFiles, f)
		}
	}
	for _, name := range requiredTables {
		if tables[name] == nil {
			return nil, fmt.Errorf("%w: missing table %s", types.ErrMalformedArchive, name)
		}
	}

	g := &types.Graph{}

	err = forEachRow(tables["labels"], "labels", func(r row) error {
		id, err := r.required("labels", "id")
		if err != nil {
			return err
		}
		name, err := r.required("labels", "name")
		if err != nil {
			return err
		}
		emoji, _ := r.cell("emoji")
		g.Labels = append(g.Labels, types.Label{
			ID: id, Name: name, Emoji: emoji, Color: r.optString("color"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachRow(tables["locations"], "locations", func(r row) error {
		id, err := r.required("locations", "id")
		if err != nil {
			return err
		}
		name, err := r.required("locations", "name")
		if err != nil {
			return err
		}
		g.Locations = append(g.Locations, types.Location{
			ID: id, Name: name,
			Description: r.optString("description"),
			HomeID:      r.optString("home_id"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachRow(tables["policies"], "policies", func(r row) error {
		id, err := r.required("policies", "id")
		if err != nil {
			return err
		}
		provider, err := r.required("policies", "provider")
		if err != nil {
			return err
		}
		g.Policies = append(g.Policies, types.InsurancePolicy{
			ID: id, Provider: provider,
			PolicyNumber:   r.optString("policy_number"),
			CoverageAmount: r.optFloat("coverage_amount"),
			Deductible:     r.optFloat("deductible"),
			StartDate:      r.optTime("start_date"),
			EndDate:        r.optTime("end_date"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachRow(tables["homes"], "homes", func(r row) error {
		id, err := r.required("homes", "id")
		if err != nil {
			return err
		}
		name, err := r.required("homes", "name")
		if err != nil {
			return err
		}
		primary, _ := r.cell("is_primary")
		g.Homes = append(g.Homes, types.Home{
			ID: id, Name: name,
			IsPrimary: primary == "1" || primary == "true",
			Address:   r.optString("address"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachRow(tables["items"], "items", func(r row) error {
		id, err := r.required("items", "id")
		if err != nil {
			return err
		}
		title, err := r.required("items", "title")
		if err != nil {
			return err
		}
		quantity := int64(1)
		if v, ok := r.cell("quantity"); ok && v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				quantity = n
			}
		}
		g.Items = append(g.Items, types.Item{
			ID: id, Title: title,
			Description:     r.optString("description"),
			Quantity:        quantity,
			Price:           r.optFloat("price"),
			Condition:       r.optString("condition"),
			SerialNumber:    r.optString("serial_number"),
			Make:            r.optString("make"),
			Model:           r.optString("model"),
			Width:           r.optFloat("width"),
			Height:          r.optFloat("height"),
			Depth:           r.optFloat("depth"),
			Weight:          r.optFloat("weight"),
			PurchaseDate:    r.optTime("purchase_date"),
			Notes:           r.optString("notes"),
			PrimaryPhoto:    r.optString("primary_photo"),
			SecondaryPhotos: r.refList("secondary_photos"),
			Attachments:     r.refList("attachments"),
			LocationID:      r.optString("location_id"),
			HomeID:          r.optString("home_id"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.ItemLabels, err = decodePairs(tables["item_labels"], "item_labels", "item_id", "label_id")
	if err != nil {
		return nil, err
	}
	g.HomePolicies, err = decodePairs(tables["home_policies"], "home_policies", "home_id", "policy_id")
	if err != nil {
		return nil, err
	}

	if assetsDir != "" {
		if err := extractAssets(ctx, assetFiles, assetsDir); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func decodePairs(f *zip.File, table, ownerCol, memberCol string) ([]types.Pair, error) {
	var pairs []types.Pair
	err := forEachRow(f, table, func(r row) error {
		owner, err := r.required(table, ownerCol)
		if err != nil {
			return err
		}
		member, err := r.required(table, memberCol)
		if err != nil {
			return err
		}
		pairs = append(pairs, types.Pair{OwnerID: owner, MemberID: member})
		return nil
	})
	return pairs, err
}

// ExtractAssets extracts only the bundled asset files into dir, returning
// the number extracted. Used when the graph was already decoded and asset
// materialization was deferred until the destination was promoted.
func ExtractAssets(ctx context.Context, path, dir string) (int64, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrMalformedArchive, err)
	}
	defer zr.Close()

	var files []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, assetDir) && !strings.HasSuffix(f.Name, "/") {
			files = append(files, f)
		}
	}
	if err := extractAssets(ctx, files, dir); err != nil {
		return 0, err
	}
	return int64(len(files)), nil
}

// extractAssets streams the bundled asset files to dir, preserving the
// reference paths. Entry names are confined to dir; an archive cannot write
// outside it.
func extractAssets(ctx context.Context, files []*zip.File, dir string) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := strings.TrimPrefix(f.Name, assetDir)
		if ref == "" || strings.HasSuffix(f.Name, "/") {
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(ref))
		rel, err := filepath.Rel(dir, dst)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: asset path escapes asset directory: %s", types.ErrMalformedArchive, f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating asset directory: %w", err)
		}
		if err := extractOne(f, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening bundled asset %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating asset file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting asset %s: %w", f.Name, err)
	}
	return out.Close()
}

// Summary describes an archive without decoding its graph.
type Summary struct {
	FormatVersion int
	CreatedAt     time.Time
	TableCounts   map[string]int64
	AssetCount    int64
}

// Preview reads the manifest of an archive. Archives written by encoders
// that predate the manifest are summarized by streaming the table rows.
func Preview(path string) (Summary, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", types.ErrMalformedArchive, err)
	}
	defer zr.Close()

	sum := Summary{TableCounts: make(map[string]int64)}

	var manifest *zip.File
	tables := make(map[string]*zip.File)
	for _, f := range zr.File {
		switch {
		case f.Name == manifestName:
			manifest = f
		case strings.HasPrefix(f.Name, tableDir) && strings.HasSuffix(f.Name, ".csv"):
			name := strings.TrimSuffix(strings.TrimPrefix(f.Name, tableDir), ".csv")
			tables[name] = f
		case strings.HasPrefix(f.Name, assetDir) && !strings.HasSuffix(f.Name, "/"):
			if manifest == nil {
				sum.AssetCount++
			}
		}
	}
	for _, name := range requiredTables {
		if tables[name] == nil {
			return Summary{}, fmt.Errorf("%w: missing table %s", types.ErrMalformedArchive, name)
		}
	}

	if manifest != nil {
		return readManifest(manifest)
	}

	sum.FormatVersion = FormatVersion
	for name, f := range tables {
		var n int64
		if err := forEachRow(f, name, func(row) error { n++; return nil }); err != nil {
			return Summary{}, err
		}
		sum.TableCounts[name] = n
	}
	return sum, nil
}

func readManifest(f *zip.File) (Summary, error) {
	sum := Summary{TableCounts: make(map[string]int64)}
	rc, err := f.Open()
	if err != nil {
		return Summary{}, fmt.Errorf("opening manifest: %w", err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = 2
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return Summary{}, fmt.Errorf("%w: manifest: %v", types.ErrMalformedArchive, err)
		}
		key, value := rec[0], rec[1]
		switch key {
		case keyFormatVersion:
			sum.FormatVersion, _ = strconv.Atoi(value)
		case keyCreatedAt:
			sum.CreatedAt, _ = time.Parse(time.RFC3339, value)
		case keyAssetCount:
			sum.AssetCount, _ = strconv.ParseInt(value, 10, 64)
		default:
			n, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				sum.TableCounts[key] = n
			}
		}
	}
}
