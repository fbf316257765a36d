package types

// Location is a place items live in (a room, a shelf, a storage unit).
// The item side of the relationship is a query, not a stored edge.
type Location struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// HomeID is back-filled after homes are written, since locations
	// commit before homes in dependency order.
	HomeID *string `json:"home_id,omitempty"`
}
