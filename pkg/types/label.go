package types

// Label is a user-defined tag applied to items.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`

	// Color is the portable encoding "#RRGGBBAA". Legacy sources store an
	// opaque blob instead; the resolver decodes it, and a blob that fails
	// to decode downgrades the color to nil rather than failing the run.
	Color *string `json:"color,omitempty"`
}
