package types

// EntityKind names one of the five entity tables moved by the engine.
type EntityKind string

// Entity kinds. The string values double as destination table names and
// archive table names.
const (
	KindLabel    EntityKind = "labels"
	KindLocation EntityKind = "locations"
	KindPolicy   EntityKind = "policies"
	KindHome     EntityKind = "homes"
	KindItem     EntityKind = "items"
)

// KindsInDependencyOrder lists entity kinds so that every foreign key a kind
// carries points at a kind that appears earlier. Location -> Home is the one
// exception; it is back-filled after homes are written.
var KindsInDependencyOrder = []EntityKind{
	KindLabel,
	KindLocation,
	KindPolicy,
	KindHome,
	KindItem,
}

// Valid reports whether k is one of the five entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindLabel, KindLocation, KindPolicy, KindHome, KindItem:
		return true
	}
	return false
}

// Relationship names a many-to-many relationship stored as join rows.
type Relationship string

// Relationships. The string values double as destination and archive table
// names.
const (
	RelItemLabels   Relationship = "item_labels"
	RelHomePolicies Relationship = "home_policies"
)

// Relationships lists all join relationships in write order.
var Relationships = []Relationship{RelItemLabels, RelHomePolicies}

// Owner returns the entity kind that owns the relationship.
func (r Relationship) Owner() EntityKind {
	if r == RelHomePolicies {
		return KindHome
	}
	return KindItem
}

// Member returns the entity kind on the member side of the relationship.
func (r Relationship) Member() EntityKind {
	if r == RelHomePolicies {
		return KindPolicy
	}
	return KindLabel
}

// Pair is one join row: the owner references the member. Duplicate pairs
// within a relationship are invalid and are deduplicated before writing.
type Pair struct {
	OwnerID  string `json:"owner_id"`
	MemberID string `json:"member_id"`
}
