// Package archive implements the portable archive codec: a single zip file
// bundling one CSV table per entity kind, one per join relationship, the
// binary asset files the rows reference, and a manifest.
//
// Compatibility policy, in both directions: decoders ignore unknown columns
// (archives from newer encoders remain readable) and treat missing optional
// columns as absent (archives from older encoders remain importable).
// Missing required tables are a MalformedArchive error.
package archive

// FormatVersion is written to the manifest. Version bumps add columns or
// optional tables; they never remove or reorder existing columns.
const FormatVersion = 1

// Archive entry layout.
const (
	tableDir     = "tables/"
	assetDir     = "assets/"
	previewDir   = "previews/"
	manifestName = "manifest.csv"
	assetMeta    = "assets.csv"
)

// Manifest keys.
const (
	keyFormatVersion = "format_version"
	keyCreatedAt     = "created_at"
	keyAssetCount    = "assets"
)

// tableHeaders fixes the column order per table. Trailing columns may be
// appended in future versions; existing positions are frozen.
var tableHeaders = map[string][]string{
	"labels":    {"id", "name", "emoji", "color"},
	"locations": {"id", "name", "description", "home_id"},
	"policies":  {"id", "provider", "policy_number", "coverage_amount", "deductible", "start_date", "end_date"},
	"homes":     {"id", "name", "is_primary", "address"},
	"items": {
		"id", "title", "description", "quantity", "price",
		"condition", "serial_number", "make", "model",
		"width", "height", "depth", "weight",
		"purchase_date", "notes",
		"primary_photo", "secondary_photos", "attachments",
		"location_id", "home_id",
	},
	"item_labels":   {"item_id", "label_id"},
	"home_policies": {"home_id", "policy_id"},
}

// requiredTables must all be present for an archive to decode.
var requiredTables = []string{
	"labels", "locations", "policies", "homes", "items",
	"item_labels", "home_policies",
}

func tablePath(name string) string {
	return tableDir + name + ".csv"
}
