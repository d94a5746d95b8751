package timeline

import "errors"

var (
	// ErrNotFound means a writer was not at the slot it was expected at.
	ErrNotFound = errors.New("writer not found in timeline")

	// ErrDuplicate means a grounded writer already occupies the instant.
	ErrDuplicate = errors.New("grounded writer already placed at instant")

	// ErrInitialCondition means the initial condition cannot be removed.
	ErrInitialCondition = errors.New("initial condition cannot be removed")

	// ErrBeforeStart means a placement precedes the timeline's start.
	ErrBeforeStart = errors.New("placement precedes timeline start")

	// ErrEmptyInterval means an ungrounded interval has min >= max.
	ErrEmptyInterval = errors.New("ungrounded interval is empty")
)
