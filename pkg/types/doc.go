// Package types defines the record model, relationship pairs, run options,
// progress events, and standard errors for the Boxport migration engine.
//
// Records are read-only snapshots: the engine builds them from a source
// store or an archive and never mutates a source. Optional scalar fields are
// pointers; nil means the value was absent in the source and must stay
// absent in the destination.
package types
