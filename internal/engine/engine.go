// Package engine coordinates migration, export, and import runs. A run walks
// a fixed state machine, moves entities in bounded pages, emits best-effort
// progress events, and can be cancelled between pages. Destinations are
// staged; nothing user-visible changes unless a run completes.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// Engine owns the run registry. One source/destination pair can have at most
// one live run; concurrent runs on distinct pairs are independent.
type Engine struct {
	mu    sync.Mutex
	runs  map[string]*Run
	locks map[string]string // pair key -> run ID holding it

	// validateSkew shifts the expected item count handed to validation.
	// Zero in production; tests set it to force a validation mismatch.
	validateSkew int64

	// pageHook, when set, runs at every page boundary before the
	// cancellation check. Tests use it to stop a run mid-flight.
	pageHook func()
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		runs:  make(map[string]*Run),
		locks: make(map[string]string),
	}
}

// Run is one in-flight or finished migration, export, or import.
type Run struct {
	ID string

	mu      sync.Mutex
	state   types.State
	report  *types.Report
	started time.Time

	events  chan types.Progress
	dropped int64
	done    chan struct{}
	cancel  context.CancelFunc
}

// newRunID returns a time-ordered run identifier, falling back to random.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// begin registers a run and takes the pair lock, or fails with
// ErrRunInProgress when the pair is already being worked.
func (e *Engine) begin(ctx context.Context, srcPath, destPath string, opts types.Options) (*Run, context.Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	pair := srcPath + "\x00" + destPath
	e.mu.Lock()
	defer e.mu.Unlock()
	if holder, held := e.locks[pair]; held {
		return nil, nil, fmt.Errorf("%w: run %s", types.ErrRunInProgress, holder)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:      newRunID(),
		state:   types.StateNotStarted,
		started: time.Now(),
		events:  make(chan types.Progress, opts.EffectiveEventBuffer()),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	e.locks[pair] = r.ID
	e.runs[r.ID] = r
	return r, ctx, nil
}

// finish records the terminal report, releases the pair lock, and closes the
// event channel.
func (e *Engine) finish(r *Run, pairKey string, report *types.Report) {
	e.mu.Lock()
	delete(e.locks, pairKey)
	e.mu.Unlock()

	r.mu.Lock()
	report.RunID = r.ID
	report.State = r.state
	report.DroppedEvents = r.dropped
	report.Duration = time.Since(r.started)
	r.report = report
	r.mu.Unlock()

	close(r.events)
	close(r.done)
	r.cancel()
}

// Cancel requests cooperative cancellation of a run. The run stops at the
// next page boundary; Cancel returns immediately.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	r, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}
	r.cancel()
	return nil
}

// Report returns the final report of a finished run, or ErrRunNotFound.
// A nil report means the run is still going.
func (e *Engine) Report(runID string) (*types.Report, error) {
	e.mu.Lock()
	r, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, nil
}

// Events returns the run's progress stream. Delivery is best-effort: when
// the consumer lags, events are dropped and counted, never blocking the run.
// The channel closes when the run reaches a terminal state.
func (r *Run) Events() <-chan types.Progress { return r.events }

// Wait blocks until the run finishes and returns its report.
func (r *Run) Wait() *types.Report {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// State returns the run's current state machine position.
func (r *Run) State() types.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setState forces the state machine position; used for terminal states.
func (r *Run) setState(s types.State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// stateOrder positions non-terminal states for advance.
var stateOrder = map[types.State]int{
	types.StateNotStarted: 0,
	types.StateDetecting:  1,
	types.StateReading:    2,
	types.StateTransform:  3,
	types.StateWriting:    4,
	types.StateValidating: 5,
}

// advance moves the state machine forward, never back. Page loops cycle
// read/transform/write repeatedly; the coarse state records the furthest
// stage reached.
func (r *Run) advance(s types.State) {
	r.mu.Lock()
	if stateOrder[s] > stateOrder[r.state] {
		r.state = s
	}
	r.mu.Unlock()
}

// emit sends a progress event without blocking. A full buffer drops the
// event and bumps the dropped counter for the final report.
func (r *Run) emit(p types.Progress) {
	select {
	case r.events <- p:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}
