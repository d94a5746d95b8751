package model

import (
	"fmt"
	"math"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
)

// Kind names a numeric resource kind.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindPoly  Kind = "poly"
)

type (
	IntResource   = resource.Resource[int64, int64, int64]
	FloatResource = resource.Resource[float64, float64, float64]
	PolyResource  = resource.Resource[resource.Polynomial, resource.Timed, float64]
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindInt, KindFloat, KindPoly:
		return k, nil
	}
	return "", fmt.Errorf("unknown resource kind %q (want int, float or poly)", s)
}

// NewInt declares an int resource defaulting to def.
func NewInt(label string, def int64) *IntResource {
	return resource.Discrete(label, resource.WithDefault(def))
}

// NewFloat declares a float resource defaulting to def. Floats hash by
// their bit pattern.
func NewFloat(label string, def float64) *FloatResource {
	return resource.Discrete(label,
		resource.WithDefault(def),
		resource.WithHasher(func(v float64) uint64 {
			return ir.NewHasher(ir.DomainValue).Uint64(math.Float64bits(v)).Sum64()
		}),
	)
}

// NewPoly declares a polynomial resource defaulting to the constant def.
func NewPoly(label string, def float64) *PolyResource {
	return resource.PolynomialResource(label, resource.WithDefault(resource.Constant(def)))
}

// New declares a resource of kind k.
func New(k Kind, label string, def float64) (resource.Handle, error) {
	switch k {
	case KindInt:
		if def != math.Trunc(def) {
			return nil, fmt.Errorf("resource %s: int default %v is fractional", label, def)
		}
		return NewInt(label, int64(def)), nil
	case KindFloat:
		return NewFloat(label, def), nil
	case KindPoly:
		return NewPoly(label, def), nil
	}
	return nil, fmt.Errorf("resource %s: unknown kind %q", label, k)
}

// KindOf reports the kind of h.
func KindOf(h resource.Handle) (Kind, error) {
	switch h.(type) {
	case *IntResource:
		return KindInt, nil
	case *FloatResource:
		return KindFloat, nil
	case *PolyResource:
		return KindPoly, nil
	}
	return "", engine.NewTypeMismatchError(h.Label(), fmt.Errorf("%T is not a numeric resource", h))
}

// numeric adapts a resource of any kind to float arithmetic.
type numeric struct {
	h    resource.Handle
	kind Kind
}

func numericOf(h resource.Handle) (numeric, error) {
	k, err := KindOf(h)
	if err != nil {
		return numeric{}, err
	}
	return numeric{h: h, kind: k}, nil
}

// constant returns the write value holding v.
func (n numeric) constant(v float64) (any, error) {
	switch n.kind {
	case KindInt:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s holds integers, got %v", n.h.Label(), v)
		}
		return int64(v), nil
	case KindFloat:
		return v, nil
	default:
		return resource.Constant(v), nil
	}
}

// add returns the evolved value offset by by.
func (n numeric) add(evolved any, by float64) (any, error) {
	switch w := evolved.(type) {
	case int64:
		if by != math.Trunc(by) {
			return nil, fmt.Errorf("%s holds integers, got increment %v", n.h.Label(), by)
		}
		return w + int64(by), nil
	case float64:
		return w + by, nil
	case resource.Polynomial:
		return w.Add(resource.Constant(by)), nil
	}
	return nil, fmt.Errorf("%s: unexpected value %T", n.h.Label(), evolved)
}

// sample returns the sampled value of n as a float.
func (n numeric) sample(in *engine.Inputs) (float64, error) {
	v, ok := in.SampleValue(n.h)
	if !ok {
		return 0, fmt.Errorf("%s not read", n.h.Label())
	}
	f, ok := Float(v)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected sample %T", n.h.Label(), v)
	}
	return f, nil
}

// Value converts v to the write value of h.
func Value(h resource.Handle, v float64) (any, error) {
	n, err := numericOf(h)
	if err != nil {
		return nil, err
	}
	return n.constant(v)
}

// Float converts a numeric sample to float64.
func Float(sample any) (float64, bool) {
	switch s := sample.(type) {
	case int64:
		return float64(s), true
	case float64:
		return s, true
	}
	return 0, false
}
