package types

// Page size bounds. Pages cap resident memory regardless of dataset size;
// the clamp keeps a misconfigured value from defeating that.
const (
	DefaultPageSize = 200
	MinPageSize     = 25
	MaxPageSize     = 1000
)

// Options configures a coordinator run.
type Options struct {
	// PageSize is the number of rows per read/transform/write cycle.
	// Zero means DefaultPageSize; other values are clamped to
	// [MinPageSize, MaxPageSize].
	PageSize int `json:"page_size" yaml:"page_size"`

	// StrictReferences makes any dangling reference fail validation
	// instead of downgrading to an absent field with a warning.
	StrictReferences bool `json:"strict_references" yaml:"strict_references"`

	// BackupDir receives the source store after a completed migration.
	// The source is moved there, never deleted.
	BackupDir string `json:"backup_dir" yaml:"backup_dir"`

	// EventBuffer is the progress channel capacity. Zero means 64.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// Validate checks that the Options are well-formed.
func (o Options) Validate() error {
	if o.PageSize < 0 {
		return ErrPageSizeInvalid
	}
	return nil
}

// EffectivePageSize returns the page size with defaulting and clamping
// applied.
func (o Options) EffectivePageSize() int {
	size := o.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	if size < MinPageSize {
		size = MinPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// EffectiveEventBuffer returns the progress channel capacity.
func (o Options) EffectiveEventBuffer() int {
	if o.EventBuffer <= 0 {
		return 64
	}
	return o.EventBuffer
}
