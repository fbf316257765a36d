package types

import "errors"

// Fatal run errors. Recoverable conditions are Warnings, not errors.
var (
	// ErrSourceUnavailable means the source path is missing or is not a
	// recognized legacy store. The source is untouched; safe to retry.
	ErrSourceUnavailable = errors.New("source store unavailable")

	// ErrMalformedArchive means a required table is missing from an
	// archive, beyond what column-level tolerance covers.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrValidationMismatch means post-write validation found a count
	// mismatch or an unexpectedly dangling reference. The staging
	// destination is discarded; safe to retry.
	ErrValidationMismatch = errors.New("validation mismatch")

	// ErrRunInProgress means another run already holds the lock for the
	// same source/destination pair.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrRunNotFound means the run ID is unknown to the registry.
	ErrRunNotFound = errors.New("run not found")
)

// Options validation errors.
var (
	ErrPageSizeInvalid = errors.New("page size must be positive")
)
