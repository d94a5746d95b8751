package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/simtime"
)

// ErrUpstreamFailed is what readers of a failed operation observe.
// It is the same sentinel the exec accumulator filters.
var ErrUpstreamFailed = exec.ErrUpstreamFailed

// RuntimeError represents an error detected by the engine.
//
// Runtime errors include:
//   - Duplicate placement: two grounded writes to one resource at one instant
//   - Placement not found: a removed write is missing from its timeline slot
//   - Missing initial: a resource has neither initial value nor default
//   - Unreachable: no candidate supplies a value at the query time
//   - Out of range: a dynamic placement resolved outside [min, max)
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Resource is the label of the affected resource, if any.
	Resource string

	// Activity is the label of the affected activity, if any.
	Activity string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBodyFailed indicates an operation body returned an error or panicked.
	ErrCodeBodyFailed RuntimeErrorCode = "BODY_FAILED"

	// ErrCodeDuplicatePlacement indicates a grounded write collides with another.
	ErrCodeDuplicatePlacement RuntimeErrorCode = "DUPLICATE_PLACEMENT"

	// ErrCodePlacementNotFound indicates a write is missing from its timeline.
	ErrCodePlacementNotFound RuntimeErrorCode = "PLACEMENT_NOT_FOUND"

	// ErrCodeMissingInitial indicates a resource has no initial condition.
	ErrCodeMissingInitial RuntimeErrorCode = "MISSING_INITIAL"

	// ErrCodeUnreachable indicates no writer supplies a value at the query time.
	ErrCodeUnreachable RuntimeErrorCode = "UNREACHABLE"

	// ErrCodePlacementOutOfRange indicates a placement outside its allowed bounds.
	ErrCodePlacementOutOfRange RuntimeErrorCode = "PLACEMENT_OUT_OF_RANGE"

	// ErrCodeTypeMismatch indicates a value does not fit its resource.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownActivity indicates an activity id or label is not known.
	ErrCodeUnknownActivity RuntimeErrorCode = "UNKNOWN_ACTIVITY"

	// ErrCodeUnknownResource indicates a resource is not part of the plan.
	ErrCodeUnknownResource RuntimeErrorCode = "UNKNOWN_RESOURCE"

	// ErrCodeInvalidActivity indicates a decomposition violates its contract.
	ErrCodeInvalidActivity RuntimeErrorCode = "INVALID_ACTIVITY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Activity != "" && e.Resource != "" {
		return fmt.Sprintf("%s: %s (activity=%s, resource=%s)", e.Code, e.Message, e.Activity, e.Resource)
	}
	if e.Activity != "" {
		return fmt.Sprintf("%s: %s (activity=%s)", e.Code, e.Message, e.Activity)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (resource=%s)", e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode returns true if err is or wraps a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStructuralError returns true for failures that indicate a caller bug in
// plan mutation: a write missing from its slot. They are never retried.
func IsStructuralError(err error) bool {
	return HasCode(err, ErrCodePlacementNotFound)
}

// IsBodyError returns true if err is or wraps a *BodyError.
func IsBodyError(err error) bool {
	var be *BodyError
	return errors.As(err, &be)
}

// BodyError records an operation body failure with its context.
type BodyError struct {
	Activity string
	Op       int
	At       simtime.Dense
	Err      error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("%s: activity %s op %d at %s: %v", ErrCodeBodyFailed, e.Activity, e.Op, e.At, e.Err)
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

// upstreamFailure is cached by every reader of a failed operation. It
// matches ErrUpstreamFailed so accumulators drop it, and unwraps to the
// original failure so a query can still name it once.
type upstreamFailure struct {
	cause error
}

func (e *upstreamFailure) Error() string {
	return "upstream failed: " + e.cause.Error()
}

func (e *upstreamFailure) Is(target error) bool {
	return target == ErrUpstreamFailed
}

func (e *upstreamFailure) Unwrap() error {
	return e.cause
}

// propagate wraps err for a reader, keeping the original cause.
func propagate(err error) error {
	return &upstreamFailure{cause: RootCause(err)}
}

// RootCause strips upstream-failure wrapping.
func RootCause(err error) error {
	var uf *upstreamFailure
	if errors.As(err, &uf) {
		return uf.cause
	}
	return err
}

// NewMissingInitialError creates a RuntimeError for a resource without an
// initial condition.
func NewMissingInitialError(res string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMissingInitial,
		Message:  "no initial value and no default",
		Resource: res,
	}
}

// NewDuplicatePlacementError creates a RuntimeError for a grounded write
// colliding with another at the same instant.
func NewDuplicatePlacementError(activity, res string, at simtime.Time) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeDuplicatePlacement,
		Message:  fmt.Sprintf("resource already written at %s", at),
		Resource: res,
		Activity: activity,
		Details:  map[string]string{"at": at.String()},
	}
}

// NewPlacementNotFoundError creates a RuntimeError for a write missing from
// its timeline.
func NewPlacementNotFoundError(activity, res string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodePlacementNotFound,
		Message:  cause.Error(),
		Resource: res,
		Activity: activity,
	}
}

// NewUnreachableError creates a RuntimeError for a query no writer answers.
func NewUnreachableError(res string, at simtime.Dense) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnreachable,
		Message:  fmt.Sprintf("no write resolves before %s", at),
		Resource: res,
	}
}

// NewOutOfRangeError creates a RuntimeError for a placement outside bounds.
func NewOutOfRangeError(activity string, at, min, max simtime.Time) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodePlacementOutOfRange,
		Message:  fmt.Sprintf("placement %s outside [%s, %s)", at, min, max),
		Activity: activity,
		Details: map[string]string{
			"at":  at.String(),
			"min": min.String(),
			"max": max.String(),
		},
	}
}

// NewTypeMismatchError wraps a resource type error.
func NewTypeMismatchError(res string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeTypeMismatch,
		Message:  cause.Error(),
		Resource: res,
	}
}

// NewInvalidActivityError creates a RuntimeError for a bad decomposition.
func NewInvalidActivityError(activity string, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInvalidActivity,
		Message:  fmt.Sprintf(format, args...),
		Activity: activity,
	}
}

// NewUnknownResourceError creates a RuntimeError for a resource outside the plan.
func NewUnknownResourceError(activity, res string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownResource,
		Message:  "resource is not part of the plan",
		Resource: res,
		Activity: activity,
	}
}
