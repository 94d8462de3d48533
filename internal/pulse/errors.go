package pulse

import "errors"

var (
	// ErrDuplicateID is returned when registering an id that is already present.
	ErrDuplicateID = errors.New("pulse source already registered")
	// ErrNotFound is returned when looking up an unregistered id.
	ErrNotFound = errors.New("pulse source not found")
	// ErrInvalidSource is returned for an empty id or a non-positive period.
	ErrInvalidSource = errors.New("invalid pulse source")
	// ErrStopped is returned by a monitor that has been shut down.
	ErrStopped = errors.New("pulse monitor is stopped")
	// ErrEvaluation marks a fault while evaluating a single source's deadline.
	ErrEvaluation = errors.New("pulse evaluation failed")
)
