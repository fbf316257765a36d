package dest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Typed page readers for export. Pages keep export memory bounded the same
// way migration reads are bounded.

// ReadLabels reads one page of labels ordered by rowid.
func (s *Store) ReadLabels(ctx context.Context, offset, limit int64) ([]types.Label, error) {
	rows, err := s.pageQuery(ctx, "labels", []string{"id", "name", "emoji", "color"}, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Label
	for rows.Next() {
		var l types.Label
		var emoji, color sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &emoji, &color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		l.Emoji = emoji.String
		l.Color = nullStr(color)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReadLocations reads one page of locations ordered by rowid.
func (s *Store) ReadLocations(ctx context.Context, offset, limit int64) ([]types.Location, error) {
	rows, err := s.pageQuery(ctx, "locations", []string{"id", "name", "description", "home_id"}, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		var l types.Location
		var desc, home sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &desc, &home); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.Description = nullStr(desc)
		l.HomeID = nullStr(home)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReadPolicies reads one page of insurance policies ordered by rowid.
func (s *Store) ReadPolicies(ctx context.Context, offset, limit int64) ([]types.InsurancePolicy, error) {
	cols := []string{"id", "provider", "policy_number", "coverage_amount", "deductible", "start_date", "end_date"}
	rows, err := s.pageQuery(ctx, "policies", cols, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.InsurancePolicy
	for rows.Next() {
		var p types.InsurancePolicy
		var number, start, end sql.NullString
		var coverage, deductible sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Provider, &number, &coverage, &deductible, &start, &end); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p.PolicyNumber = nullStr(number)
		p.CoverageAmount = nullFloat(coverage)
		p.Deductible = nullFloat(deductible)
		p.StartDate = nullTime(start)
		p.EndDate = nullTime(end)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReadHomes reads one page of homes ordered by rowid.
func (s *Store) ReadHomes(ctx context.Context, offset, limit int64) ([]types.Home, error) {
	rows, err := s.pageQuery(ctx, "homes", []string{"id", "name", "is_primary", "address"}, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Home
	for rows.Next() {
		var h types.Home
		var primary int64
		var address sql.NullString
		if err := rows.Scan(&h.ID, &h.Name, &primary, &address); err != nil {
			return nil, fmt.Errorf("scan home: %w", err)
		}
		h.IsPrimary = primary != 0
		h.Address = nullStr(address)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReadItems reads one page of items ordered by rowid.
func (s *Store) ReadItems(ctx context.Context, offset, limit int64) ([]types.Item, error) {
	cols := []string{
		"id", "title", "description", "quantity", "price",
		"condition", "serial_number", "make", "model",
		"width", "height", "depth", "weight",
		"purchase_date", "notes",
		"primary_photo", "secondary_photos", "attachments",
		"location_id", "home_id",
	}
	rows, err := s.pageQuery(ctx, "items", cols, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Item
	for rows.Next() {
		var it types.Item
		var desc, condition, serial, mk, model, date, notes, photo, secondary, attachments, locID, homeID sql.NullString
		var price, width, height, depth, weight sql.NullFloat64
		if err := rows.Scan(&it.ID, &it.Title, &desc, &it.Quantity, &price,
			&condition, &serial, &mk, &model,
			&width, &height, &depth, &weight,
			&date, &notes,
			&photo, &secondary, &attachments,
			&locID, &homeID); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Description = nullStr(desc)
		it.Price = nullFloat(price)
		it.Condition = nullStr(condition)
		it.SerialNumber = nullStr(serial)
		it.Make = nullStr(mk)
		it.Model = nullStr(model)
		it.Width = nullFloat(width)
		it.Height = nullFloat(height)
		it.Depth = nullFloat(depth)
		it.Weight = nullFloat(weight)
		it.PurchaseDate = nullTime(date)
		it.Notes = nullStr(notes)
		it.PrimaryPhoto = nullStr(photo)
		it.SecondaryPhotos = decodeRefList(secondary)
		it.Attachments = decodeRefList(attachments)
		it.LocationID = nullStr(locID)
		it.HomeID = nullStr(homeID)
		out = append(out, it)
	}
	return out, rows.Err()
}

// ReadPairs reads all join rows for a relationship.
func (s *Store) ReadPairs(ctx context.Context, rel types.Relationship) ([]types.Pair, error) {
	ownerCol, memberCol := pairColumns(rel)
	query, args, err := sq.Select(ownerCol, memberCol).From(string(rel)).OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", rel, err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	defer rows.Close()

	var pairs []types.Pair
	for rows.Next() {
		var p types.Pair
		if err := rows.Scan(&p.OwnerID, &p.MemberID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", rel, err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (s *Store) pageQuery(ctx context.Context, table string, cols []string, offset, limit int64) (*sql.Rows, error) {
	query, args, err := sq.Select(cols...).From(table).
		OrderBy("rowid").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s page query: %w", table, err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s page at %d: %w", table, offset, err)
	}
	return rows, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func decodeRefList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(v.String), &refs); err != nil {
		return nil
	}
	return refs
}
