package resource

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/horizon/internal/simtime"
)

// Polynomial holds coefficients in ascending order of power, in units per
// second^i, relative to the instant it was written.
type Polynomial []float64

// Constant returns the polynomial that always evaluates to v.
func Constant(v float64) Polynomial {
	return Polynomial{v}
}

// Linear returns v + rate*t.
func Linear(v, rate float64) Polynomial {
	return Polynomial{v, rate}
}

// Eval evaluates p at dt seconds after its origin.
func (p Polynomial) Eval(dt float64) float64 {
	var sum float64
	for i := len(p) - 1; i >= 0; i-- {
		sum = sum*dt + p[i]
	}
	return sum
}

// Shift re-expresses p relative to an origin dt seconds later, so that
// p.Shift(dt).Eval(x) == p.Eval(x + dt).
func (p Polynomial) Shift(dt float64) Polynomial {
	out := make(Polynomial, len(p))
	copy(out, p)
	if dt == 0 {
		return out
	}
	// Repeated synthetic division (Taylor shift).
	n := len(out)
	for i := 0; i < n; i++ {
		for j := n - 2; j >= i; j-- {
			out[j] += dt * out[j+1]
		}
	}
	return out
}

// Derivative returns dp/dt.
func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{0}
	}
	out := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		out[i-1] = p[i] * float64(i)
	}
	return out
}

// Add returns p + q.
func (p Polynomial) Add(q Polynomial) Polynomial {
	out := make(Polynomial, max(len(p), len(q)))
	for i := range out {
		if i < len(p) {
			out[i] += p[i]
		}
		if i < len(q) {
			out[i] += q[i]
		}
	}
	return out
}

func (p Polynomial) String() string {
	if len(p) == 0 {
		return "0"
	}
	var b strings.Builder
	for i, c := range p {
		if i > 0 {
			if math.Signbit(c) {
				b.WriteString(" - ")
				c = -c
			} else {
				b.WriteString(" + ")
			}
		}
		b.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
		switch i {
		case 0:
		case 1:
			b.WriteString("t")
		default:
			b.WriteString("t^" + strconv.Itoa(i))
		}
	}
	return b.String()
}

// Timed is a polynomial anchored at the instant it was written.
type Timed struct {
	Poly Polynomial
	At   simtime.Time
}

// PolynomialResource declares a continuously evolving resource whose write
// form is a Polynomial, read form a Timed polynomial and sample form its
// value at the sampling instant.
func PolynomialResource(label string, opts ...Option[Polynomial]) *Resource[Polynomial, Timed, float64] {
	toRead := func(p Polynomial, written simtime.Time) Timed {
		return Timed{Poly: p, At: written}
	}
	fromRead := func(r Timed, now simtime.Time) Polynomial {
		return r.Poly.Shift(seconds(now - r.At))
	}
	sample := func(r Timed, now simtime.Time) float64 {
		return r.Poly.Eval(seconds(now - r.At))
	}
	opts = append([]Option[Polynomial]{Continuous[Polynomial]()}, opts...)
	return build(label, toRead, fromRead, sample, nil, opts)
}

func seconds(d simtime.Time) float64 {
	return d.Seconds()
}
