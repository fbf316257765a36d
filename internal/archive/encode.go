package archive

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mesh-intelligence/boxport/internal/imaging"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Encoder streams an entity graph into an archive file. Tables are written
// page by page in dependency order (zip entries are sequential, which
// matches the engine's kind-by-kind loop), then assets, then the manifest.
//
// The encoder writes to a temp file and renames it into place on Close, so
// a failed export never leaves a half-written archive at the target path.
type Encoder struct {
	path    string
	tmpName string
	f       *os.File
	zw      *zip.Writer

	current string      // name of the table entry being written
	csvw    *csv.Writer // writer into the current entry

	counts     map[string]int64
	assets     []assetRecord
	created    map[string]bool
	tablesDone bool
}

type assetRecord struct {
	ref    string
	size   int64
	format string
	width  int
	height int
}

// NewEncoder creates an archive at path (written via a temp file).
func NewEncoder(path string) (*Encoder, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp archive: %w", err)
	}
	return &Encoder{
		path:    path,
		tmpName: tmp.Name(),
		f:       tmp,
		zw:      zip.NewWriter(tmp),
		counts:  make(map[string]int64),
		created: make(map[string]bool),
	}, nil
}

// beginTable flushes the current table entry and opens the next one with
// its header row. Re-entering the current table is a no-op so pages append.
// A table that was already flushed cannot be reopened: zip entries are
// write-once, and a second entry under the same name would shadow the rows.
func (e *Encoder) beginTable(name string) error {
	if e.current == name {
		return nil
	}
	if e.created[name] {
		return fmt.Errorf("table %s already written", name)
	}
	if e.csvw != nil {
		e.csvw.Flush()
		if err := e.csvw.Error(); err != nil {
			return fmt.Errorf("flushing %s: %w", e.current, err)
		}
	}
	w, err := e.zw.Create(tablePath(name))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	e.created[name] = true
	e.current = name
	e.csvw = csv.NewWriter(w)
	return e.csvw.Write(tableHeaders[name])
}

func (e *Encoder) writeRow(table string, row []string) error {
	if err := e.beginTable(table); err != nil {
		return err
	}
	if err := e.csvw.Write(row); err != nil {
		return fmt.Errorf("writing %s row: %w", table, err)
	}
	e.counts[table]++
	return nil
}

// WriteLabels appends one page of labels.
func (e *Encoder) WriteLabels(page []types.Label) error {
	for _, l := range page {
		if err := e.writeRow("labels", []string{l.ID, l.Name, l.Emoji, optCell(l.Color)}); err != nil {
			return err
		}
	}
	return nil
}

// WriteLocations appends one page of locations.
func (e *Encoder) WriteLocations(page []types.Location) error {
	for _, l := range page {
		if err := e.writeRow("locations", []string{l.ID, l.Name, optCell(l.Description), optCell(l.HomeID)}); err != nil {
			return err
		}
	}
	return nil
}

// WritePolicies appends one page of insurance policies.
func (e *Encoder) WritePolicies(page []types.InsurancePolicy) error {
	for _, p := range page {
		row := []string{
			p.ID, p.Provider, optCell(p.PolicyNumber),
			floatCell(p.CoverageAmount), floatCell(p.Deductible),
			timeCell(p.StartDate), timeCell(p.EndDate),
		}
		if err := e.writeRow("policies", row); err != nil {
			return err
		}
	}
	return nil
}

// WriteHomes appends one page of homes.
func (e *Encoder) WriteHomes(page []types.Home) error {
	for _, h := range page {
		primary := "0"
		if h.IsPrimary {
			primary = "1"
		}
		if err := e.writeRow("homes", []string{h.ID, h.Name, primary, optCell(h.Address)}); err != nil {
			return err
		}
	}
	return nil
}

// WriteItems appends one page of items.
func (e *Encoder) WriteItems(page []types.Item) error {
	for _, it := range page {
		row := []string{
			it.ID, it.Title, optCell(it.Description),
			strconv.FormatInt(it.Quantity, 10), floatCell(it.Price),
			optCell(it.Condition), optCell(it.SerialNumber), optCell(it.Make), optCell(it.Model),
			floatCell(it.Width), floatCell(it.Height), floatCell(it.Depth), floatCell(it.Weight),
			timeCell(it.PurchaseDate), optCell(it.Notes),
			optCell(it.PrimaryPhoto), listCell(it.SecondaryPhotos), listCell(it.Attachments),
			optCell(it.LocationID), optCell(it.HomeID),
		}
		if err := e.writeRow("items", row); err != nil {
			return err
		}
	}
	return nil
}

// WritePairs appends join rows for a relationship.
func (e *Encoder) WritePairs(rel types.Relationship, pairs []types.Pair) error {
	for _, p := range pairs {
		if err := e.writeRow(string(rel), []string{p.OwnerID, p.MemberID}); err != nil {
			return err
		}
	}
	return nil
}

// finishTables closes the current table entry and makes sure every required
// table exists, writing header-only entries for tables that saw no rows.
func (e *Encoder) finishTables() error {
	if e.tablesDone {
		return nil
	}
	for _, name := range requiredTables {
		if e.created[name] {
			continue
		}
		if err := e.beginTable(name); err != nil {
			return err
		}
	}
	if e.csvw != nil {
		e.csvw.Flush()
		if err := e.csvw.Error(); err != nil {
			return fmt.Errorf("flushing %s: %w", e.current, err)
		}
		e.csvw = nil
		e.current = ""
	}
	e.tablesDone = true
	return nil
}

// WriteAssetFile copies one asset from disk into the archive, streaming in
// chunks; photos can be large and are never loaded whole. Image assets are
// probed for the metadata table and get a preview thumbnail entry.
func (e *Encoder) WriteAssetFile(ref, srcPath string) error {
	if err := e.finishTables(); err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening asset %s: %w", ref, err)
	}
	defer f.Close()

	info, err := imaging.Probe(f)
	if err != nil {
		return fmt.Errorf("probing asset %s: %w", ref, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding asset %s: %w", ref, err)
	}

	w, err := e.zw.Create(assetDir + ref)
	if err != nil {
		return fmt.Errorf("creating asset entry %s: %w", ref, err)
	}
	size, err := io.Copy(w, f)
	if err != nil {
		return fmt.Errorf("copying asset %s: %w", ref, err)
	}

	if info.Format != "" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding asset %s: %w", ref, err)
		}
		if thumb, terr := imaging.Thumbnail(f); terr == nil {
			tw, err := e.zw.Create(previewDir + ref + ".jpg")
			if err != nil {
				return fmt.Errorf("creating preview entry %s: %w", ref, err)
			}
			if _, err := tw.Write(thumb); err != nil {
				return fmt.Errorf("writing preview %s: %w", ref, err)
			}
		}
	}

	e.assets = append(e.assets, assetRecord{
		ref: ref, size: size,
		format: info.Format, width: info.Width, height: info.Height,
	})
	return nil
}

// Close writes the asset metadata table and the manifest, finalizes the zip,
// and atomically renames the temp file to the target path.
func (e *Encoder) Close() error {
	if err := e.finishTables(); err != nil {
		e.Abort()
		return err
	}

	if err := e.writeAssetMeta(); err != nil {
		e.Abort()
		return err
	}
	if err := e.writeManifest(); err != nil {
		e.Abort()
		return err
	}

	if err := e.zw.Close(); err != nil {
		e.Abort()
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := e.f.Sync(); err != nil {
		e.Abort()
		return fmt.Errorf("syncing archive: %w", err)
	}
	if err := e.f.Close(); err != nil {
		os.Remove(e.tmpName)
		return fmt.Errorf("closing archive file: %w", err)
	}
	if err := os.Rename(e.tmpName, e.path); err != nil {
		os.Remove(e.tmpName)
		return fmt.Errorf("renaming archive: %w", err)
	}
	return nil
}

// Abort discards the partially written archive.
func (e *Encoder) Abort() {
	if e.f != nil {
		e.f.Close()
		e.f = nil
	}
	os.Remove(e.tmpName)
}

// Counts returns rows written per table so far.
func (e *Encoder) Counts() map[string]int64 {
	out := make(map[string]int64, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}

func (e *Encoder) writeAssetMeta() error {
	w, err := e.zw.Create(assetMeta)
	if err != nil {
		return fmt.Errorf("creating asset metadata: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ref", "size", "format", "width", "height"}); err != nil {
		return err
	}
	for _, a := range e.assets {
		row := []string{
			a.ref, strconv.FormatInt(a.size, 10), a.format,
			strconv.Itoa(a.width), strconv.Itoa(a.height),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Encoder) writeManifest() error {
	w, err := e.zw.Create(manifestName)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	cw := csv.NewWriter(w)
	rows := [][]string{
		{keyFormatVersion, strconv.Itoa(FormatVersion)},
		{keyCreatedAt, time.Now().UTC().Format(time.RFC3339)},
		{keyAssetCount, strconv.Itoa(len(e.assets))},
	}
	for _, name := range requiredTables {
		rows = append(rows, []string{name, strconv.FormatInt(e.counts[name], 10)})
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatCell(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// listCell renders a reference list as a JSON array inside the cell; the
// csv writer quotes it.
func listCell(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return ""
	}
	return string(b)
}
