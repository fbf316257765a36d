package types

import "time"

// Item is a single inventory item. Label membership is not stored on the
// item; it travels as Pair rows in Graph.ItemLabels so both historical
// source layouts normalize to the same representation.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Quantity    int64    `json:"quantity"`
	Price       *float64 `json:"price,omitempty"`

	Condition    *string    `json:"condition,omitempty"`
	SerialNumber *string    `json:"serial_number,omitempty"`
	Make         *string    `json:"make,omitempty"`
	Model        *string    `json:"model,omitempty"`
	Width        *float64   `json:"width,omitempty"`
	Height       *float64   `json:"height,omitempty"`
	Depth        *float64   `json:"depth,omitempty"`
	Weight       *float64   `json:"weight,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`

	// Asset references. Reference strings address files in the asset
	// directory (and the archive's assets/ tree); rows never embed blobs.
	PrimaryPhoto    *string  `json:"primary_photo,omitempty"`
	SecondaryPhotos []string `json:"secondary_photos,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`

	LocationID *string `json:"location_id,omitempty"`
	HomeID     *string `json:"home_id,omitempty"`
}

// AssetRefs returns every asset reference the item carries, primary photo
// first.
func (i Item) AssetRefs() []string {
	var refs []string
	if i.PrimaryPhoto != nil && *i.PrimaryPhoto != "" {
		refs = append(refs, *i.PrimaryPhoto)
	}
	refs = append(refs, i.SecondaryPhotos...)
	refs = append(refs, i.Attachments...)
	return refs
}
