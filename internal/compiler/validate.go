package compiler

import (
	"fmt"
	"math"
	"regexp"

	"github.com/roach88/horizon/internal/model"
)

// Validation error codes (E100-E199)
const (
	ErrEmptyModel        = "E100" // model declares no resources
	ErrInvalidName       = "E101" // resource name is not an identifier
	ErrDuplicateName     = "E102" // resource declared twice
	ErrInvalidKind       = "E103" // kind is not int, float or poly
	ErrFractionalDefault = "E104" // int resource with fractional default
	ErrNonFiniteDefault  = "E105" // NaN or infinite default
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Validate checks a compiled model. Returns all errors found (does not
// fail-fast).
func Validate(m *ModelSpec) []ValidationError {
	var errs []ValidationError
	if len(m.Resources) == 0 {
		errs = append(errs, ValidationError{
			Field:   "resource",
			Message: "at least one resource is required",
			Code:    ErrEmptyModel,
		})
	}

	seen := make(map[string]bool, len(m.Resources))
	for _, r := range m.Resources {
		field := "resource." + r.Name
		line := 0
		if r.Pos.IsValid() {
			line = r.Pos.Line()
		}
		add := func(code, format string, args ...any) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf(format, args...),
				Code:    code,
				Line:    line,
			})
		}

		if !namePattern.MatchString(r.Name) {
			add(ErrInvalidName, "invalid resource name %q", r.Name)
		}
		if seen[r.Name] {
			add(ErrDuplicateName, "resource %q declared more than once", r.Name)
		}
		seen[r.Name] = true

		if _, err := model.ParseKind(string(r.Kind)); err != nil {
			add(ErrInvalidKind, "%v", err)
		}
		if math.IsNaN(r.Default) || math.IsInf(r.Default, 0) {
			add(ErrNonFiniteDefault, "default must be finite")
		} else if r.Kind == model.KindInt && r.Default != math.Trunc(r.Default) {
			add(ErrFractionalDefault, "int resource has fractional default %v", r.Default)
		}
	}
	return errs
}
