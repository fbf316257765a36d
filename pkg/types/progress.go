package types

import "time"

// Phase names one stage of a run.
type Phase string

// Run phases in execution order.
const (
	PhaseDetecting    Phase = "detecting"
	PhaseReading      Phase = "reading"
	PhaseTransforming Phase = "transforming"
	PhaseWriting      Phase = "writing"
	PhaseValidating   Phase = "validating"
)

// State is the coordinator's state machine position.
type State string

// Coordinator states.
const (
	StateNotStarted State = "not_started"
	StateDetecting  State = "detecting"
	StateReading    State = "reading"
	StateTransform  State = "transforming"
	StateWriting    State = "writing"
	StateValidating State = "validating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state is one of the three end states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is emitted after every page. Kind is empty for phases that are
// not per-kind (detection, validation).
type Progress struct {
	Phase     Phase      `json:"phase"`
	Kind      EntityKind `json:"kind,omitempty"`
	Processed int64      `json:"processed"`
	Total     int64      `json:"total"`
}

// WarningKind classifies a recoverable condition.
type WarningKind string

// Warning kinds. WarnFinalize marks a post-promote housekeeping step (asset
// copy, source backup, marker write) that failed after the destination was
// already committed.
const (
	WarnDanglingReference WarningKind = "dangling_reference"
	WarnColorDecode       WarningKind = "color_decode_failure"
	WarnFinalize          WarningKind = "finalize_failure"
)

// Warning is a recoverable condition accumulated into the final report.
// The run continues; the affected field is set to absent.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail"`
}

// Report is the final result of a migration, export, or import run.
type Report struct {
	RunID    string                 `json:"run_id"`
	State    State                  `json:"state"`
	Counts   map[EntityKind]int64   `json:"counts,omitempty"`
	Pairs    map[Relationship]int64 `json:"pairs,omitempty"`
	Assets   int64                  `json:"assets"`
	Warnings []Warning              `json:"warnings,omitempty"`

	// DroppedEvents counts progress events discarded because the consumer
	// was slow. Delivery is best-effort; the migration never blocks on it.
	DroppedEvents int64         `json:"dropped_events"`
	Duration      time.Duration `json:"duration"`

	// Err is the fatal error of a failed run; Error is its rendering for
	// JSON output. Both are nil/empty for completed and cancelled runs.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}
