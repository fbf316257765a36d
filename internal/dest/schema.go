package dest

// SchemaVersion is the destination schema generation. The completion marker
// written next to a migrated store embeds it, so re-running the same
// migration is a no-op while a future schema bump is not.
const SchemaVersion = 2

// Schema DDL for the destination store. Relationships are one-directional:
// foreign-key columns on the many side plus explicit join tables.
// Back-references (home -> locations, label -> items) are queries, not
// stored edges.
const (
	createLabels = `CREATE TABLE labels (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    emoji TEXT,
    color TEXT
);`

	createLocations = `CREATE TABLE locations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    home_id TEXT REFERENCES homes(id)
);`

	createPolicies = `CREATE TABLE policies (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    policy_number TEXT,
    coverage_amount REAL,
    deductible REAL,
    start_date TEXT,
    end_date TEXT
);`

	createHomes = `CREATE TABLE homes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0,
    address TEXT
);`

	createItems = `CREATE TABLE items (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    quantity INTEGER NOT NULL DEFAULT 1,
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
    location_id TEXT REFERENCES locations(id),
    home_id TEXT REFERENCES homes(id)
);`

	createItemLabels = `CREATE TABLE item_labels (
    item_id TEXT NOT NULL REFERENCES items(id),
    label_id TEXT NOT NULL REFERENCES labels(id),
    PRIMARY KEY (item_id, label_id)
);`

	createHomePolicies = `CREATE TABLE home_policies (
    home_id TEXT NOT NULL REFERENCES homes(id),
    policy_id TEXT NOT NULL REFERENCES policies(id),
    PRIMARY KEY (home_id, policy_id)
);`
)

const (
	idxItemsLocation  = `CREATE INDEX idx_items_location ON items(location_id);`
	idxItemsHome      = `CREATE INDEX idx_items_home ON items(home_id);`
	idxLocationsHome  = `CREATE INDEX idx_locations_home ON locations(home_id);`
	idxItemLabelLabel = `CREATE INDEX idx_item_labels_label ON item_labels(label_id);`
)

// schemaDDL lists all CREATE statements in dependency order.
var schemaDDL = []string{
	createLabels,
	createLocations,
	createPolicies,
	createHomes,
	createItems,
	createItemLabels,
	createHomePolicies,
	idxItemsLocation,
	idxItemsHome,
	idxLocationsHome,
	idxItemLabelLabel,
}
