package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a stored record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionGap is returned when a version write would leave a
	// numbering gap because an earlier version has not arrived yet.
	ErrVersionGap = errors.New("version number gap")

	// ErrLeaseHeld is returned when another worker holds the fetch lease
	// for a document.
	ErrLeaseHeld = errors.New("lease already held")
)
