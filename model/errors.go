package model

import (
	"errors"
)

// Error kinds for classifying pipeline failures. Every failure event carries
// one of these kinds so the failure sink and replay tooling can route by it.

// ErrorKind names a failure class on the wire.
type ErrorKind string

const (
	ErrorKindTransientNetwork     ErrorKind = "transient_network"
	ErrorKindPermanentFetch       ErrorKind = "permanent_fetch"
	ErrorKindParse                ErrorKind = "parse"
	ErrorKindConsistencyViolation ErrorKind = "consistency_violation"
	ErrorKindStorageUnavailable   ErrorKind = "storage_unavailable"
)

// TransientNetworkError is a temporary fetch failure (timeout, 5xx,
// connection reset) that may succeed on retry.
type TransientNetworkError struct {
	err error
}

func (e *TransientNetworkError) Error() string { return e.err.Error() }

func (e *TransientNetworkError) Unwrap() error { return e.err }

// NewTransientNetworkError wraps an error as transient (retryable).
func NewTransientNetworkError(err error) error {
	return &TransientNetworkError{err: err}
}

// PermanentFetchError is a fetch failure that retrying cannot fix
// (404, unsupported content type).
type PermanentFetchError struct {
	err error
}

func (e *PermanentFetchError) Error() string { return e.err.Error() }

func (e *PermanentFetchError) Unwrap() error { return e.err }

// NewPermanentFetchError wraps an error as permanent (not retried).
func NewPermanentFetchError(err error) error {
	return &PermanentFetchError{err: err}
}

// ParseError is a malformed or structurally unexpected document. It is
// isolated per document and never halts the parser loop.
type ParseError struct {
	err error
}

func (e *ParseError) Error() string { return e.err.Error() }

func (e *ParseError) Unwrap() error { return e.err }

// NewParseError wraps an extraction failure.
func NewParseError(err error) error {
	return &ParseError{err: err}
}

// ConsistencyViolation is a duplicate-version race or out-of-order write
// attempt. The version writer resolves these through its monotonicity
// guard; they surface as failure events only when unresolvable.
type ConsistencyViolation struct {
	err error
}

func (e *ConsistencyViolation) Error() string { return e.err.Error() }

func (e *ConsistencyViolation) Unwrap() error { return e.err }

// NewConsistencyViolation wraps a version-invariant conflict.
func NewConsistencyViolation(err error) error {
	return &ConsistencyViolation{err: err}
}

// StorageUnavailable is a canonical or content store outage. Retried with
// backoff; if exhausted the event is requeued, not dropped.
type StorageUnavailable struct {
	err error
}

func (e *StorageUnavailable) Error() string { return e.err.Error() }

func (e *StorageUnavailable) Unwrap() error { return e.err }

// NewStorageUnavailable wraps a storage outage.
func NewStorageUnavailable(err error) error {
	return &StorageUnavailable{err: err}
}

// IsTransientNetwork reports whether err is a transient network failure.
func IsTransientNetwork(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

// IsPermanentFetch reports whether err is a permanent fetch failure.
func IsPermanentFetch(err error) bool {
	var p *PermanentFetchError
	return errors.As(err, &p)
}

// IsParseError reports whether err is an extraction failure.
func IsParseError(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

// IsConsistencyViolation reports whether err is a version-invariant conflict.
func IsConsistencyViolation(err error) bool {
	var c *ConsistencyViolation
	return errors.As(err, &c)
}

// IsStorageUnavailable reports whether err is a storage outage.
func IsStorageUnavailable(err error) bool {
	var s *StorageUnavailable
	return errors.As(err, &s)
}

// Kind maps a classified error to its wire kind. Unclassified errors map to
// transient_network so they stay retryable rather than being dropped.
func Kind(err error) ErrorKind {
	switch {
	case IsPermanentFetch(err):
		return ErrorKindPermanentFetch
	case IsParseError(err):
		return ErrorKindParse
	case IsConsistencyViolation(err):
		return ErrorKindConsistencyViolation
	case IsStorageUnavailable(err):
		return ErrorKindStorageUnavailable
	default:
		return ErrorKindTransientNetwork
	}
}
