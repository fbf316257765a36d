package resolve

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/boxport/internal/source"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Resolver converts raw source rows to destination records. It assigns new
// identities in first-seen order, rewrites foreign keys through the ID map,
// downgrades dangling references to absent fields, and accumulates the
// recoverable warnings the final report carries.
//
// Kinds must be fed in dependency order (labels, locations, policies, homes,
// items) so that every reference an item carries is already mapped. The one
// forward reference, location -> home, is recorded raw and resolved by
// LocationHomeRefs once homes have been seen.
type Resolver struct {
	IDs    *IDMap
	legacy ColorDecoder

	// locationHomes maps new location IDs to the raw home ID the source
	// row carried, pending back-fill.
	locationHomes map[string]string

	warnings []types.Warning
}

// NewResolver returns a Resolver using the CLR1 legacy color decoder.
func NewResolver() *Resolver {
	return &Resolver{
		IDs:           NewIDMap(),
		legacy:        CLR1Decoder{},
		locationHomes: make(map[string]string),
	}
}

// Warnings returns the recoverable conditions seen so far.
func (r *Resolver) Warnings() []types.Warning { return r.warnings }

func (r *Resolver) warnf(kind types.WarningKind, format string, args ...any) {
	r.warnings = append(r.warnings, types.Warning{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// Label converts a raw label row.
func (r *Resolver) Label(row source.RawRow) types.Label {
	rawID, _ := row.String("id")
	label := types.Label{ID: r.IDs.Assign(types.KindLabel, rawID)}
	label.Name, _ = row.String("name")
	label.Emoji, _ = row.String("emoji")

	if raw, ok := row.Bytes("color"); ok && len(raw) > 0 {
		decoded, err := DecodeColor(raw, r.legacy)
		if err != nil {
			// Decode failures downgrade to absent, never abort.
			r.warnf(types.WarnColorDecode, "label %s (%s): %v", rawID, label.Name, err)
		} else {
			label.Color = &decoded
		}
	}
	return label
}

// Location converts a raw location row. A home reference is held back for
// back-fill; homes have not been assigned IDs yet.
func (r *Resolver) Location(row source.RawRow) types.Location {
	rawID, _ := row.String("id")
	loc := types.Location{ID: r.IDs.Assign(types.KindLocation, rawID)}
	loc.Name, _ = row.String("name")
	loc.Description = optString(row, "description")

	if rawHome, ok := row.String("home_id"); ok && rawHome != "" {
		r.locationHomes[loc.ID] = rawHome
	}
	return loc
}

// Policy converts a raw insurance policy row. A layout-A home_id column is
// ignored here; the relationship travels as pairs.
func (r *Resolver) Policy(row source.RawRow) types.InsurancePolicy {
	rawID, _ := row.String("id")
	p := types.InsurancePolicy{ID: r.IDs.Assign(types.KindPolicy, rawID)}
	p.Provider, _ = row.String("provider")
	p.PolicyNumber = optString(row, "policy_number")
	p.CoverageAmount = optFloat(row, "coverage_amount")
	p.Deductible = optFloat(row, "deductible")
	p.StartDate = optTime(row, "start_date")
	p.EndDate = optTime(row, "end_date")
	return p
}

// Home converts a raw home row.
func (r *Resolver) Home(row source.RawRow) types.Home {
	rawID, _ := row.String("id")
	h := types.Home{ID: r.IDs.Assign(types.KindHome, rawID)}
	h.Name, _ = row.String("name")
	if v, ok := row.Int64("is_primary"); ok {
		h.IsPrimary = v != 0
	}
	h.Address = optString(row, "address")
	return h
}

// Item converts a raw item row, rewriting its location and home references.
// A layout-A label_id column is ignored here; label membership travels as
// pairs.
func (r *Resolver) Item(row source.RawRow) types.Item {
	rawID, _ := row.String("id")
	item := types.Item{ID: r.IDs.Assign(types.KindItem, rawID)}
	item.Title, _ = row.String("title")
	item.Description = optString(row, "description")

	// A row with no quantity is still one physical item.
	item.Quantity = 1
	if q, ok := row.Int64("quantity"); ok {
		item.Quantity = q
	}

	item.Price = optFloat(row, "price")
	item.Condition = optString(row, "condition")
	item.SerialNumber = optString(row, "serial_number")
	item.Make = optString(row, "make")
	item.Model = optString(row, "model")
	item.Width = optFloat(row, "width")
	item.Height = optFloat(row, "height")
	item.Depth = optFloat(row, "depth")
	item.Weight = optFloat(row, "weight")
	item.PurchaseDate = optTime(row, "purchase_date")
	item.Notes = optString(row, "notes")

	item.PrimaryPhoto = optString(row, "primary_photo")
	item.SecondaryPhotos = refList(row, "secondary_photos")
	item.Attachments = refList(row, "attachments")

	item.LocationID = r.mapRef(types.KindLocation, row, "location_id", rawID)
	item.HomeID = r.mapRef(types.KindHome, row, "home_id", rawID)
	return item
}

// mapRef rewrites one foreign-key column through the ID map. An unmapped
// raw ID is a dangling reference: the field becomes absent and a warning is
// recorded, so no destination row ever points at a non-existent ID.
func (r *Resolver) mapRef(kind types.EntityKind, row source.RawRow, col, ownerRawID string) *string {
	raw, ok := row.String(col)
	if !ok || raw == "" {
		return nil
	}
	mapped, ok := r.IDs.Lookup(kind, raw)
	if !ok {
		r.warnf(types.WarnDanglingReference, "row %s: %s %q not found in %s", ownerRawID, col, raw, kind)
		return nil
	}
	return &mapped
}

// RemapPairs rewrites both sides of the extracted join rows. A pair with an
// unmapped side is dropped with a dangling-reference warning.
func (r *Resolver) RemapPairs(rel types.Relationship, pairs []types.Pair) []types.Pair {
	var out []types.Pair
	for _, p := range pairs {
		owner, ok := r.IDs.Lookup(rel.Owner(), p.OwnerID)
		if !ok {
			r.warnf(types.WarnDanglingReference, "%s: owner %q not found in %s", rel, p.OwnerID, rel.Owner())
			continue
		}
		member, ok := r.IDs.Lookup(rel.Member(), p.MemberID)
		if !ok {
			r.warnf(types.WarnDanglingReference, "%s: member %q not found in %s", rel, p.MemberID, rel.Member())
			continue
		}
		out = append(out, types.Pair{OwnerID: owner, MemberID: member})
	}
	return dedupePairs(out)
}

// LocationHomeRefs resolves the held-back location -> home references once
// homes have been assigned IDs. The result maps new location IDs to new home
// IDs; dangling home references are dropped with a warning.
func (r *Resolver) LocationHomeRefs() map[string]string {
	refs := make(map[string]string, len(r.locationHomes))
	for locID, rawHome := range r.locationHomes {
		homeID, ok := r.IDs.Lookup(types.KindHome, rawHome)
		if !ok {
			r.warnf(types.WarnDanglingReference, "location %s: home %q not found", locID, rawHome)
			continue
		}
		refs[locID] = homeID
	}
	return refs
}

func optString(row source.RawRow, col string) *string {
	s, ok := row.String(col)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func optFloat(row source.RawRow, col string) *float64 {
	f, ok := row.Float64(col)
	if !ok {
		return nil
	}
	return &f
}

func optTime(row source.RawRow, col string) *time.Time {
	t, ok := row.Time(col)
	if !ok {
		return nil
	}
	return &t
}

// refList parses a JSON array of asset reference strings. Legacy rows store
// photo and attachment lists this way; anything unparseable reads as empty.
func refList(row source.RawRow, col string) []string {
	raw, ok := row.Bytes(col)
	if !ok || len(raw) == 0 {
		return nil
	}
	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil
	}
	return refs
}
