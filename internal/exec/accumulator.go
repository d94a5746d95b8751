package exec

import (
	"errors"
	"reflect"
	"sync"
)

// ErrUpstreamFailed is observed by computations whose input failed. The
// failure itself is reported once where it happened; the sentinel is not.
var ErrUpstreamFailed = errors.New("upstream computation failed")

// Accumulator collects distinct errors.
//
// Thread-safety: safe for concurrent use.
type Accumulator struct {
	mu   sync.Mutex
	errs []error
}

// Add records err unless it is nil, a sentinel, or already recorded.
// It reports whether err was recorded.
func (a *Accumulator) Add(err error) bool {
	if err == nil || errors.Is(err, ErrUpstreamFailed) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.errs {
		if sameError(e, err) {
			return false
		}
	}
	a.errs = append(a.errs, err)
	return true
}

// sameError compares by identity. Non-comparable error values are never
// considered equal.
func sameError(a, b error) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Errors returns the recorded errors in report order.
func (a *Accumulator) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.errs))
	copy(out, a.errs)
	return out
}

// Len returns the number of recorded errors.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

// Err joins the recorded errors, or returns nil.
func (a *Accumulator) Err() error {
	return errors.Join(a.Errors()...)
}
