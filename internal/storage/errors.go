package storage

import "errors"

// Sentinel errors shared by every AlphaRecordStore implementation.
// The history is append-only, so there is no update path: writing an
// existing record id is always a caller bug, never an upsert.
var (
	// ErrNotFound is returned when the requested alpha record does not exist.
	ErrNotFound = errors.New("alpha record not found")

	// ErrDuplicateKey is returned when inserting a record id that is
	// already in the history.
	ErrDuplicateKey = errors.New("alpha record already exists")

	// ErrInvalidInput is returned for nil records, empty record ids and
	// non-positive limits.
	ErrInvalidInput = errors.New("invalid store input")
)
