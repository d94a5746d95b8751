package timeline

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/horizon/internal/simtime"
)

// DefaultBufferSize is the number of grounded inserts held before they are
// applied to the sorted index.
const DefaultBufferSize = 64

// Entry is a grounded writer at a dense time.
type Entry[W comparable] struct {
	At     simtime.Dense
	Writer W
}

// Ungrounded is a writer that will land somewhere in [Min, Max).
type Ungrounded[W comparable] struct {
	Min, Max simtime.Time
	Order    uint64
	Writer   W
}

// Candidates are the writers that may supply a value at a query time.
type Candidates[W comparable] struct {
	Grounded    Entry[W]
	HasGrounded bool
	Ungrounded  []Ungrounded[W]
}

// Single returns the only candidate when no resolution is needed.
func (c Candidates[W]) Single() (W, bool) {
	if c.HasGrounded && len(c.Ungrounded) == 0 {
		return c.Grounded.Writer, true
	}
	if !c.HasGrounded && len(c.Ungrounded) == 1 {
		return c.Ungrounded[0].Writer, true
	}
	var zero W
	return zero, false
}

// Writers lists every candidate writer, grounded first.
func (c Candidates[W]) Writers() []W {
	out := make([]W, 0, len(c.Ungrounded)+1)
	if c.HasGrounded {
		out = append(out, c.Grounded.Writer)
	}
	for _, u := range c.Ungrounded {
		out = append(out, u.Writer)
	}
	return out
}

// Empty reports whether there is no candidate at all.
func (c Candidates[W]) Empty() bool {
	return !c.HasGrounded && len(c.Ungrounded) == 0
}

// Timeline is the temporal index of one resource.
//
// Thread-safety: safe for concurrent use. Lookups take a read lock;
// structural updates take the write lock for their duration only.
type Timeline[W comparable] struct {
	mu sync.RWMutex

	start    simtime.Time
	grounded []Entry[W] // sorted by At
	buffer   []Entry[W] // unsorted, at most bufSize
	bufSize  int

	boundaries []boundary[W] // sorted by at
}

type boundary[W comparable] struct {
	at      simtime.Time
	writers []Ungrounded[W]
}

// Option configures a Timeline.
type Option func(*config)

type config struct {
	bufSize int
}

// WithBufferSize sets the grounded insert buffer capacity.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// New creates a timeline whose initial condition is written by initial at
// order 0 of start.
func New[W comparable](start simtime.Time, initial W, opts ...Option) *Timeline[W] {
	cfg := config{bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Timeline[W]{
		start:    start,
		grounded: []Entry[W]{{At: simtime.Start(start), Writer: initial}},
		bufSize:  cfg.bufSize,
	}
}

// Start returns the instant of the initial condition.
func (tl *Timeline[W]) Start() simtime.Time {
	return tl.start
}

// Initial returns the initial-condition writer.
func (tl *Timeline[W]) Initial() W {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return tl.grounded[0].Writer
}

// InsertGrounded places w at at. It returns the writers that were possible
// upstreams at that instant before the insert; their downstreams reading
// after at may now be stale.
func (tl *Timeline[W]) InsertGrounded(at simtime.Dense, w W) ([]W, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if at.At < tl.start || at.Order == 0 {
		return nil, fmt.Errorf("insert at %s: %w", at, ErrBeforeStart)
	}
	if _, ok := tl.findAt(at.At); ok {
		return nil, fmt.Errorf("insert at %s: %w", at, ErrDuplicate)
	}

	prev := tl.lastBefore(at).Writers()
	tl.buffer = append(tl.buffer, Entry[W]{At: at, Writer: w})
	if len(tl.buffer) >= tl.bufSize {
		tl.flush()
	}
	return prev, nil
}

// Occupied reports whether a grounded writer other than the initial
// condition is placed at instant t.
func (tl *Timeline[W]) Occupied(t simtime.Time) bool {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	_, ok := tl.findAt(t)
	return ok
}

// findAt returns the non-initial grounded entry at instant t.
func (tl *Timeline[W]) findAt(t simtime.Time) (Entry[W], bool) {
	for _, e := range tl.buffer {
		if e.At.At == t {
			return e, true
		}
	}
	i, _ := slices.BinarySearchFunc(tl.grounded, t, func(e Entry[W], t simtime.Time) int {
		return cmpTime(e.At.At, t)
	})
	for ; i < len(tl.grounded) && tl.grounded[i].At.At == t; i++ {
		if tl.grounded[i].At.Order != 0 {
			return tl.grounded[i], true
		}
	}
	return Entry[W]{}, false
}

// RemoveGrounded removes and returns the grounded writer at at.
func (tl *Timeline[W]) RemoveGrounded(at simtime.Dense) (W, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	var zero W
	if at.Order == 0 && at.At == tl.start {
		return zero, ErrInitialCondition
	}
	for i, e := range tl.buffer {
		if e.At == at {
			tl.buffer = slices.Delete(tl.buffer, i, i+1)
			return e.Writer, nil
		}
	}
	i, found := slices.BinarySearchFunc(tl.grounded, at, func(e Entry[W], d simtime.Dense) int {
		return e.At.Compare(d)
	})
	if !found {
		return zero, fmt.Errorf("remove at %s: %w", at, ErrNotFound)
	}
	w := tl.grounded[i].Writer
	tl.grounded = slices.Delete(tl.grounded, i, i+1)
	return w, nil
}

// Flush applies buffered grounded inserts to the sorted index.
func (tl *Timeline[W]) Flush() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.flush()
}

func (tl *Timeline[W]) flush() {
	if len(tl.buffer) == 0 {
		return
	}
	tl.grounded = append(tl.grounded, tl.buffer...)
	slices.SortFunc(tl.grounded, func(a, b Entry[W]) int {
		return a.At.Compare(b.At)
	})
	tl.buffer = tl.buffer[:0]
}

// Pending returns the number of buffered grounded inserts.
func (tl *Timeline[W]) Pending() int {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.buffer)
}

// LastBefore returns the writers that may supply the value read at t: the
// latest grounded writer strictly before t, and every ungrounded writer that
// could land after it and still before t. exclude is never returned.
func (tl *Timeline[W]) LastBefore(t simtime.Dense, exclude W) Candidates[W] {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	c := tl.lastBefore(t)
	c.Ungrounded = slices.DeleteFunc(c.Ungrounded, func(u Ungrounded[W]) bool {
		return u.Writer == exclude
	})
	return c
}

func (tl *Timeline[W]) lastBefore(t simtime.Dense) Candidates[W] {
	var c Candidates[W]
	if e, ok := tl.groundedBefore(t); ok {
		c.Grounded, c.HasGrounded = e, true
	}
	from := tl.start
	if c.HasGrounded {
		from = c.Grounded.At.At
	}
	// Any interval meeting [from, t.At] may land between the grounded
	// candidate and t.
	c.Ungrounded = tl.overlapping(from, t.At, true)
	return c
}

// groundedBefore returns the latest grounded entry strictly before t.
func (tl *Timeline[W]) groundedBefore(t simtime.Dense) (Entry[W], bool) {
	var best Entry[W]
	found := false
	i, _ := slices.BinarySearchFunc(tl.grounded, t, func(e Entry[W], d simtime.Dense) int {
		return e.At.Compare(d)
	})
	if i > 0 {
		best, found = tl.grounded[i-1], true
	}
	for _, e := range tl.buffer {
		if e.At.Before(t) && (!found || e.At.After(best.At)) {
			best, found = e, true
		}
	}
	return best, found
}

// overlapping returns the ungrounded writers whose interval meets
// [from, to] (inclusive) or, when closed is false, (from, to].
func (tl *Timeline[W]) overlapping(from, to simtime.Time, closed bool) []Ungrounded[W] {
	if len(tl.boundaries) == 0 || to < from {
		return nil
	}
	var out []Ungrounded[W]
	seen := make(map[W]struct{})
	add := func(b boundary[W]) {
		for _, u := range b.writers {
			if !closed && u.Max <= from {
				continue
			}
			if _, ok := seen[u.Writer]; ok {
				continue
			}
			seen[u.Writer] = struct{}{}
			out = append(out, u)
		}
	}
	i := tl.boundaryIndex(from)
	if i >= 0 {
		add(tl.boundaries[i])
	}
	for j := i + 1; j < len(tl.boundaries) && tl.boundaries[j].at <= to; j++ {
		add(tl.boundaries[j])
	}
	slices.SortFunc(out, compareUngrounded[W])
	return out
}

// boundaryIndex returns the index of the last boundary at or before t, or -1.
func (tl *Timeline[W]) boundaryIndex(t simtime.Time) int {
	i, found := slices.BinarySearchFunc(tl.boundaries, t, func(b boundary[W], t simtime.Time) int {
		return cmpTime(b.at, t)
	})
	if found {
		return i
	}
	return i - 1
}

// InsertUngrounded places w somewhere in [min, max). It returns every
// existing writer whose downstreams may now be stale: the candidates in
// effect at min, grounded writers inside the interval and ungrounded
// writers overlapping it.
func (tl *Timeline[W]) InsertUngrounded(min, max simtime.Time, order uint64, w W) ([]W, error) {
	if min >= max {
		return nil, fmt.Errorf("insert [%s, %s): %w", min, max, ErrEmptyInterval)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if min < tl.start {
		return nil, fmt.Errorf("insert [%s, %s): %w", min, max, ErrBeforeStart)
	}

	stale := tl.lastBefore(simtime.Start(min)).Writers()
	seen := make(map[W]struct{}, len(stale))
	for _, s := range stale {
		seen[s] = struct{}{}
	}
	collect := func(x W) {
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			stale = append(stale, x)
		}
	}
	for _, e := range tl.groundedIn(min, max) {
		collect(e.Writer)
	}
	for _, u := range tl.overlapping(min, max-1, true) {
		collect(u.Writer)
	}

	tl.split(min)
	tl.split(max)
	u := Ungrounded[W]{Min: min, Max: max, Order: order, Writer: w}
	for i := range tl.boundaries {
		b := &tl.boundaries[i]
		if b.at >= min && b.at < max {
			b.writers = append(b.writers, u)
		}
	}
	return stale, nil
}

// split ensures a boundary exists at t, inheriting the writers that cover
// it from the preceding boundary.
func (tl *Timeline[W]) split(t simtime.Time) {
	i, found := slices.BinarySearchFunc(tl.boundaries, t, func(b boundary[W], t simtime.Time) int {
		return cmpTime(b.at, t)
	})
	if found {
		return
	}
	var writers []Ungrounded[W]
	if i > 0 {
		for _, u := range tl.boundaries[i-1].writers {
			if u.Max > t {
				writers = append(writers, u)
			}
		}
	}
	tl.boundaries = slices.Insert(tl.boundaries, i, boundary[W]{at: t, writers: writers})
}

// RemoveUngrounded removes w from [min, max).
func (tl *Timeline[W]) RemoveUngrounded(min, max simtime.Time, w W) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	removed := false
	for i := range tl.boundaries {
		b := &tl.boundaries[i]
		if b.at < min || b.at >= max {
			continue
		}
		before := len(b.writers)
		b.writers = slices.DeleteFunc(b.writers, func(u Ungrounded[W]) bool {
			return u.Writer == w && u.Min == min && u.Max == max
		})
		if len(b.writers) != before {
			removed = true
		}
	}
	if !removed {
		return fmt.Errorf("remove [%s, %s): %w", min, max, ErrNotFound)
	}
	tl.coalesce()
	return nil
}

// coalesce drops boundaries that no longer mark a change.
func (tl *Timeline[W]) coalesce() {
	out := tl.boundaries[:0]
	for _, b := range tl.boundaries {
		if len(out) == 0 {
			if len(b.writers) == 0 {
				continue
			}
		} else if sameWriters(out[len(out)-1].writers, b.writers) {
			continue
		}
		out = append(out, b)
	}
	tl.boundaries = out
}

func sameWriters[W comparable](a, b []Ungrounded[W]) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// groundedIn returns grounded entries with instant in [min, max).
func (tl *Timeline[W]) groundedIn(min, max simtime.Time) []Entry[W] {
	var out []Entry[W]
	i, _ := slices.BinarySearchFunc(tl.grounded, min, func(e Entry[W], t simtime.Time) int {
		return cmpTime(e.At.At, t)
	})
	for ; i < len(tl.grounded) && tl.grounded[i].At.At < max; i++ {
		out = append(out, tl.grounded[i])
	}
	for _, e := range tl.buffer {
		if e.At.At >= min && e.At.At < max {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entry[W]) int { return a.At.Compare(b.At) })
	return out
}

// Span is the result of Range.
type Span[W comparable] struct {
	// Start holds the candidates in effect at the start of the range.
	Start Candidates[W]
	// Grounded lists grounded writes inside the range.
	Grounded []Entry[W]
	// Ungrounded lists ungrounded writers that may land inside the range.
	Ungrounded []Ungrounded[W]
}

// Range returns what a view over (from, to] needs: the candidates in effect
// at from, and every writer that may write in (from, to].
func (tl *Timeline[W]) Range(from, to simtime.Time) Span[W] {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	span := Span[W]{Start: tl.lastBefore(simtime.At(from))}
	if to <= from {
		return span
	}
	span.Grounded = tl.groundedIn(from+1, to+1)
	span.Ungrounded = tl.overlapping(from, to, false)
	return span
}

// Grounded returns a copy of the grounded index, including buffered
// entries, in dense order.
func (tl *Timeline[W]) Grounded() []Entry[W] {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	out := slices.Clone(tl.grounded)
	out = append(out, tl.buffer...)
	slices.SortFunc(out, func(a, b Entry[W]) int { return a.At.Compare(b.At) })
	return out
}

func compareUngrounded[W comparable](a, b Ungrounded[W]) int {
	switch {
	case a.Min != b.Min:
		return cmpTime(a.Min, b.Min)
	case a.Order < b.Order:
		return -1
	case a.Order > b.Order:
		return 1
	}
	return 0
}

func cmpTime(a, b simtime.Time) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
