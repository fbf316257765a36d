// Package sourcetest builds legacy source stores for tests. Both historical
// relationship layouts can be produced: foreign-key columns on the owning
// table, or explicit join tables.
package sourcetest

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Options selects the relationship layout per relationship. The zero value
// produces a pure layout-A store (foreign-key columns everywhere).
type Options struct {
	ItemLabelJoinTable  bool // item<->label as item_labels join table
	HomePolicyJoinTable bool // home<->policy as home_policies join table
	OmitPolicies        bool // oldest installs have no insurance_policies table
}

// DB wraps a writable handle on a legacy fixture store.
type DB struct {
	T    *testing.T
	Path string
	Opts Options
	db   *sql.DB
}

// New creates a legacy store file under t.TempDir and applies the legacy
// schema for the selected layouts.
func New(t *testing.T, opts Options) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory-legacy.sqlite")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &DB{T: t, Path: path, Opts: opts, db: db}
	f.applySchema()
	return f
}

func (f *DB) applySchema() {
	f.T.Helper()

	itemCols := `
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    quantity INTEGER,
    price REAL,
    condition TEXT,
    serial_number TEXT,
    make TEXT,
    model TEXT,
    width REAL,
    height REAL,
    depth REAL,
    weight REAL,
    purchase_date TEXT,
    notes TEXT,
    primary_photo TEXT,
    secondary_photos TEXT,
    attachments TEXT,
    location_id INTEGER,
    home_id INTEGER`
	if !f.Opts.ItemLabelJoinTable {
		itemCols += `,
    label_id INTEGER`
	}
	f.Exec(fmt.Sprintf("CREATE TABLE inventory_items (%s)", itemCols))

	f.Exec(`CREATE TABLE locations (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    home_id INTEGER
)`)

	f.Exec(`CREATE TABLE labels (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    emoji TEXT,
    color BLOB
)`)

	f.Exec(`CREATE TABLE homes (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0,
    address TEXT
)`)

	if !f.Opts.OmitPolicies {
		policyCols := `
    id INTEGER PRIMARY KEY,
    provider TEXT NOT NULL,
    policy_number TEXT,
    coverage_amount REAL,
    deductible REAL,
    start_date TEXT,
    end_date TEXT`
		if !f.Opts.HomePolicyJoinTable {
			policyCols += `,
    home_id INTEGER`
		}
		f.Exec(fmt.Sprintf("CREATE TABLE insurance_policies (%s)", policyCols))
	}

	if f.Opts.ItemLabelJoinTable {
		f.Exec(`CREATE TABLE item_labels (item_id INTEGER NOT NULL, label_id INTEGER NOT NULL)`)
	}
	if f.Opts.HomePolicyJoinTable {
		f.Exec(`CREATE TABLE home_policies (home_id INTEGER NOT NULL, policy_id INTEGER NOT NULL)`)
	}
}

// Exec runs one statement against the fixture store, failing the test on
// error.
func (f *DB) Exec(query string, args ...any) {
	f.T.Helper()
	if _, err := f.db.Exec(query, args...); err != nil {
		f.T.Fatalf("fixture exec %q: %v", query, err)
	}
}

// AddHome inserts a home row.
func (f *DB) AddHome(id int64, name string, primary bool) {
	p := 0
	if primary {
		p = 1
	}
	f.Exec("INSERT INTO homes (id, name, is_primary) VALUES (?, ?, ?)", id, name, p)
}

// AddLocation inserts a location row. homeID may be nil.
func (f *DB) AddLocation(id int64, name string, homeID any) {
	f.Exec("INSERT INTO locations (id, name, home_id) VALUES (?, ?, ?)", id, name, homeID)
}

// AddLabel inserts a label row. color may be nil, a []byte legacy blob, or a
// portable hex string.
func (f *DB) AddLabel(id int64, name, emoji string, color any) {
	f.Exec("INSERT INTO labels (id, name, emoji, color) VALUES (?, ?, ?, ?)", id, name, emoji, color)
}

// AddPolicy inserts an insurance policy row. homeID is only meaningful for
// layout-A stores and is ignored otherwise.
func (f *DB) AddPolicy(id int64, provider string, homeID any) {
	if f.Opts.HomePolicyJoinTable {
		f.Exec("INSERT INTO insurance_policies (id, provider) VALUES (?, ?)", id, provider)
		return
	}
	f.Exec("INSERT INTO insurance_policies (id, provider, home_id) VALUES (?, ?, ?)", id, provider, homeID)
}

// AddItem inserts an item row. extra maps additional legacy columns
// (location_id, home_id, label_id, price, primary_photo, ...) to values.
func (f *DB) AddItem(id int64, title string, extra map[string]any) {
	cols := "id, title"
	placeholders := "?, ?"
	args := []any{id, title}
	for col, val := range extra {
		cols += ", " + col
		placeholders += ", ?"
		args = append(args, val)
	}
	f.Exec(fmt.Sprintf("INSERT INTO inventory_items (%s) VALUES (%s)", cols, placeholders), args...)
}

// LinkItemLabel inserts an item_labels join row (layout B only).
func (f *DB) LinkItemLabel(itemID, labelID int64) {
	f.Exec("INSERT INTO item_labels (item_id, label_id) VALUES (?, ?)", itemID, labelID)
}

// LinkHomePolicy inserts a home_policies join row (layout B only).
func (f *DB) LinkHomePolicy(homeID, policyID int64) {
	f.Exec("INSERT INTO home_policies (home_id, policy_id) VALUES (?, ?)", homeID, policyID)
}

// LegacyColorBlob encodes RGBA components in [0,1] as the historical CLR1
// binary blob.
func LegacyColorBlob(r, g, b, a float32) []byte {
	buf := make([]byte, 0, 4+16)
	buf = append(buf, 'C', 'L', 'R', 1)
	for _, c := range []float32{r, g, b, a} {
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], math.Float32bits(c))
		buf = append(buf, word[:]...)
	}
	return buf
}
