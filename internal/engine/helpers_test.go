package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/exec"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
	"github.com/roach88/horizon/internal/testutil"
)

type intRes = resource.Resource[int, int, int]

// testGraph places activities the way a plan does.
type testGraph struct {
	*Graph
	clock *simtime.Clock
	next  uint64
	calls *testutil.Counter
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGraph(t *testing.T, start simtime.Time, initial []Initial, opts ...Option) *testGraph {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	g, err := NewGraph(start, initial, opts...)
	require.NoError(t, err)
	return &testGraph{Graph: g, clock: simtime.NewClock(), calls: testutil.NewCounter()}
}

func (tg *testGraph) place(t *testing.T, start simtime.Time, act Activity) *Slab {
	t.Helper()
	slab, err := tg.tryPlace(start, act)
	require.NoError(t, err)
	return slab
}

func (tg *testGraph) tryPlace(start simtime.Time, act Activity) (*Slab, error) {
	tg.next++
	slab, err := tg.Place(tg.next, start, act, tg.clock)
	tg.Flush()
	return slab, err
}

func (tg *testGraph) unplace(t *testing.T, slab *Slab) {
	t.Helper()
	require.NoError(t, tg.Unplace(slab))
	tg.Flush()
}

// sample evaluates r at at.
func sample[W, R, S any](tg *testGraph, r *resource.Resource[W, R, S], at simtime.Time) (S, error) {
	var read any
	var found bool
	err := exec.Run(context.Background(), tg.ExecOptions(), func(env *exec.Env) {
		tg.Request(env, r, simtime.At(at), func(rd any, _ simtime.Dense, ok bool) {
			read, found = rd, ok
		})
	})
	var zero S
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("no value")
	}
	rd, err := r.AsRead(read)
	if err != nil {
		return zero, err
	}
	return r.Sample(rd, at), nil
}

func mustSample[W, R, S any](t *testing.T, tg *testGraph, r *resource.Resource[W, R, S], at simtime.Time) S {
	t.Helper()
	v, err := sample(tg, r, at)
	require.NoError(t, err)
	return v
}

func handles(hs ...resource.Handle) []resource.Handle { return hs }

func (tg *testGraph) increment(r *intRes, by int) Activity {
	return &FuncActivity{
		Name:      "increment",
		Arguments: ir.Object{"resource": ir.String(r.Label()), "by": ir.Int(by)},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement:  Static(start),
				ReadWrites: handles(r),
				Body: func(in *Inputs, out *Outputs) error {
					tg.calls.Inc("increment")
					Set(out, r, Evolved(in, r)+by)
					return nil
				},
			}}, nil
		},
	}
}

func (tg *testGraph) set(r *intRes, v int) Activity {
	return &FuncActivity{
		Name:      "set",
		Arguments: ir.Object{"resource": ir.String(r.Label()), "value": ir.Int(v)},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Writes:    handles(r),
				Body: func(in *Inputs, out *Outputs) error {
					tg.calls.Inc("set")
					Set(out, r, v)
					return nil
				},
			}}, nil
		},
	}
}

func (tg *testGraph) copyTo(dst, src *intRes) Activity {
	return &FuncActivity{
		Name:      "copy",
		Arguments: ir.Object{"from": ir.String(src.Label()), "to": ir.String(dst.Label())},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Reads:     handles(src),
				Writes:    handles(dst),
				Body: func(in *Inputs, out *Outputs) error {
					tg.calls.Inc("copy")
					Set(out, dst, Sample(in, src))
					return nil
				},
			}}, nil
		},
	}
}

func (tg *testGraph) sum(dst, x, y *intRes) Activity {
	return &FuncActivity{
		Name:      "sum",
		Arguments: ir.Object{"x": ir.String(x.Label()), "y": ir.String(y.Label()), "to": ir.String(dst.Label())},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Reads:     handles(x, y),
				Writes:    handles(dst),
				Body: func(in *Inputs, out *Outputs) error {
					tg.calls.Inc("sum")
					Set(out, dst, Sample(in, x)+Sample(in, y))
					return nil
				},
			}}, nil
		},
	}
}

// setBoth writes v to a and b from one op.
func (tg *testGraph) setBoth(a, b *intRes, v int) Activity {
	return &FuncActivity{
		Name:      "set_both",
		Arguments: ir.Object{"a": ir.String(a.Label()), "b": ir.String(b.Label()), "value": ir.Int(v)},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Writes:    handles(a, b),
				Body: func(in *Inputs, out *Outputs) error {
					tg.calls.Inc("set_both")
					Set(out, a, v)
					Set(out, b, v)
					return nil
				},
			}}, nil
		},
	}
}

var errBoom = errors.New("boom")

func (tg *testGraph) fail(r *intRes) Activity {
	return &FuncActivity{
		Name:      "fail",
		Arguments: ir.Object{"resource": ir.String(r.Label())},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Writes:    handles(r),
				Body: func(*Inputs, *Outputs) error {
					tg.calls.Inc("fail")
					return errBoom
				},
			}}, nil
		},
	}
}

// delayedSet writes v to r at start+delay, which must land in
// [start+min, start+max).
func (tg *testGraph) delayedSet(r *intRes, v int, delay, min, max simtime.Time) Activity {
	return &FuncActivity{
		Name:      "delayed_set",
		Arguments: ir.Object{"resource": ir.String(r.Label()), "value": ir.Int(v), "delay": ir.Int(int64(delay))},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{
				{
					Placement: Static(start),
					Delay: func(*Inputs) (simtime.Time, error) {
						tg.calls.Inc("delay")
						return delay, nil
					},
				},
				{
					Placement: Dynamic(start+min, start+max, 0),
					Writes:    handles(r),
					Body: func(in *Inputs, out *Outputs) error {
						tg.calls.Inc("delayed_set")
						Set(out, r, v)
						return nil
					},
				},
			}, nil
		},
	}
}

// joined returns the errors joined in err.
func joined(err error) []error {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		return u.Unwrap()
	}
	if err == nil {
		return nil
	}
	return []error{err}
}
