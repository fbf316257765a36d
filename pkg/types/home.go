package types

// Home is the container record for locations and insurance policies.
// Location and policy membership are queries against the location table and
// the home_policies join rows; the home stores no reference lists.
type Home struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	IsPrimary bool    `json:"is_primary"`
	Address   *string `json:"address,omitempty"`
}
