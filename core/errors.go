package core

import "errors"

var (
	// ErrNotFound is returned when a referenced course, lesson, badge or learner is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost uniqueness race or a duplicate administrative entry.
	// Engine writes recover from it locally and never surface it.
	ErrConflict = errors.New("conflict")
	// ErrStoreUnavailable wraps transient persistence failures. The triggering
	// operation is safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidInput reports a request the engine refuses to process.
	ErrInvalidInput = errors.New("invalid input")
)
