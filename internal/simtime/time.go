package simtime

import (
	"fmt"
	"math"
	"time"
)

// Time is an offset from the plan epoch.
type Time = time.Duration

// MaxOrder sorts after every order a Clock can stamp.
const MaxOrder uint64 = math.MaxUint64

// Dense is an instant plus a logical order tag.
// Within one instant, a lower order happened first.
type Dense struct {
	At    Time
	Order uint64
}

// At returns the dense time at the end of instant t: after every write
// placed at t. Point queries (sample, view) read at this time.
func At(t Time) Dense {
	return Dense{At: t, Order: MaxOrder}
}

// Start returns the dense time at the beginning of instant t.
func Start(t Time) Dense {
	return Dense{At: t}
}

// Compare returns -1, 0 or +1.
func (d Dense) Compare(o Dense) int {
	switch {
	case d.At < o.At:
		return -1
	case d.At > o.At:
		return 1
	case d.Order < o.Order:
		return -1
	case d.Order > o.Order:
		return 1
	}
	return 0
}

// Before reports whether d is strictly before o.
func (d Dense) Before(o Dense) bool {
	return d.Compare(o) < 0
}

// After reports whether d is strictly after o.
func (d Dense) After(o Dense) bool {
	return d.Compare(o) > 0
}

func (d Dense) String() string {
	if d.Order == MaxOrder {
		return fmt.Sprintf("%s#end", d.At)
	}
	return fmt.Sprintf("%s#%d", d.At, d.Order)
}

// MaxDense returns the later of a and b.
func MaxDense(a, b Dense) Dense {
	if a.After(b) {
		return a
	}
	return b
}
