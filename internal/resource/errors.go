package resource

import (
	"errors"
	"fmt"
)

// ErrNotRegistered is returned when a registry lookup fails.
var ErrNotRegistered = errors.New("resource not registered")

// TypeError reports a value whose dynamic type does not match the
// resource's data contract.
type TypeError struct {
	Resource string
	Form     string // "write", "read" or "sample"
	Want     string
	Got      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("resource %q: %s value has type %s, want %s", e.Resource, e.Form, e.Got, e.Want)
}

// IsTypeError returns true if err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}
