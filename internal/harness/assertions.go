package harness

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/model"
	"github.com/roach88/horizon/internal/simtime"
)

// tolerance for comparing float samples with expectations.
const tolerance = 1e-9

// AssertionError is returned when an expectation fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// observed is a view point as a sample.
type observed struct {
	at    simtime.Time
	value any
}

func expectValue(got any, want float64) error {
	f, ok := model.Float(got)
	if !ok {
		return &AssertionError{Type: "sample", Expected: formatFloat(want), Actual: fmt.Sprintf("%T", got)}
	}
	if math.Abs(f-want) > tolerance {
		return &AssertionError{Type: "sample", Expected: formatFloat(want), Actual: formatValue(got)}
	}
	return nil
}

func expectPoints(got []observed, want []ViewPoint) error {
	if len(got) != len(want) {
		return &AssertionError{
			Type:     "view",
			Expected: fmt.Sprintf("%d points", len(want)),
			Actual:   fmt.Sprintf("%d points", len(got)),
		}
	}
	for i, w := range want {
		g := got[i]
		if g.at != simtime.Time(w.At) {
			return &AssertionError{
				Type:     fmt.Sprintf("view[%d]", i),
				Expected: fmt.Sprintf("point at %s", simtime.Time(w.At)),
				Actual:   fmt.Sprintf("point at %s", g.at),
			}
		}
		if err := expectValue(g.value, w.Value); err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Type = fmt.Sprintf("view[%d]", i)
			}
			return err
		}
	}
	return nil
}

// describe flattens err into sorted one-line failure descriptions: the
// code of a runtime error, or BODY_FAILED with the failing activity.
func describe(err error) []string {
	var parts []string
	for _, leaf := range flatten(err) {
		leaf = engine.RootCause(leaf)
		var be *engine.BodyError
		var re *engine.RuntimeError
		switch {
		case errors.As(leaf, &be):
			parts = append(parts, fmt.Sprintf("%s %s: %v", engine.ErrCodeBodyFailed, be.Activity, be.Err))
		case errors.As(leaf, &re):
			parts = append(parts, string(re.Code))
		default:
			parts = append(parts, leaf.Error())
		}
	}
	slices.Sort(parts)
	return slices.Compact(parts)
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func matchesError(parts []string, want string) bool {
	for _, p := range parts {
		if strings.HasPrefix(p, want) {
			return true
		}
	}
	return false
}

func formatValue(v any) string {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return formatFloat(val)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
