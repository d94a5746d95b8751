package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the argument value kinds.
// Only String, Int, Bool, List and Object implement it. There is no float
// kind: a float argument would make structural hashes depend on formatting.
type Value interface {
	value()
}

// String is a string argument.
type String string

func (String) value() {}

// Int is an integer argument.
type Int int64

func (Int) value() {}

// Bool is a boolean argument.
type Bool bool

func (Bool) value() {}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Object maps argument names to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in canonical order (UTF-16 code units).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison orders by UTF-8 bytes, which differs for supplementary planes.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Str returns the string argument named key.
func (o Object) Str(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("argument %q is required", key)
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return string(s), nil
}

// Int returns the integer argument named key.
func (o Object) Int(key string) (int64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("argument %q is required", key)
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("argument %q: expected int, got %T", key, v)
	}
	return int64(n), nil
}

// IntOr returns the integer argument named key, or def when absent.
func (o Object) IntOr(key string, def int64) (int64, error) {
	if _, ok := o[key]; !ok {
		return def, nil
	}
	return o.Int(key)
}

// Decimal returns a numeric argument as float64. Integers are accepted
// directly; fractional values must be given as decimal strings ("2.5").
func (o Object) Decimal(key string) (float64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("argument %q is required", key)
	}
	switch val := v.(type) {
	case Int:
		return float64(val), nil
	case String:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("argument %q: expected int or decimal string, got %T", key, v)
	}
}

// Duration returns a time argument. Strings use time.ParseDuration syntax
// ("1.5s", "200ms"); bare integers are seconds.
func (o Object) Duration(key string) (time.Duration, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("argument %q is required", key)
	}
	return ParseDuration(v)
}

// ParseDuration converts a String or Int value to a duration.
func ParseDuration(v Value) (time.Duration, error) {
	switch val := v.(type) {
	case Int:
		return time.Duration(val) * time.Second, nil
	case String:
		d, err := time.ParseDuration(string(val))
		if err != nil {
			return 0, err
		}
		return d, nil
	default:
		return 0, fmt.Errorf("expected duration string or seconds, got %T", v)
	}
}

// FromAny converts decoded YAML, JSON or CUE data into a Value.
// Integral floats are accepted (JSON decoders produce float64 for every
// number); fractional floats and nulls are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid argument")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("fractional number %v: pass it as a decimal string", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("fractional number %s: pass it as a decimal string", val)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = item
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

// ObjectFromMap converts a decoded map into an Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// ToAny converts a Value back into plain Go data.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	}
	return nil
}
