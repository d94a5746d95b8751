package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

func TestGraph_InitialCondition(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b", resource.WithDefault(7))
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 3}, {Resource: b}})

	assert.Equal(t, 3, mustSample(t, tg, a, 0))
	assert.Equal(t, 3, mustSample(t, tg, a, 100))
	assert.Equal(t, 7, mustSample(t, tg, b, 50))

	v, ok := tg.InitialValue(b)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestGraph_MissingInitial(t *testing.T) {
	a := resource.Discrete[int]("a")
	_, err := NewGraph(0, []Initial{{Resource: a}})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeMissingInitial))
}

func TestGraph_DuplicateResource(t *testing.T) {
	a := resource.Discrete[int]("a")
	_, err := NewGraph(0, []Initial{{Resource: a, Value: 1}, {Resource: a, Value: 2}})
	require.Error(t, err)
}

func TestGraph_SampleBetweenWrites(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	tg.place(t, 2, tg.set(a, 10))
	tg.place(t, 5, tg.set(a, 20))

	assert.Equal(t, 0, mustSample(t, tg, a, 1))
	// Point queries see writes at the same instant.
	assert.Equal(t, 10, mustSample(t, tg, a, 2))
	assert.Equal(t, 10, mustSample(t, tg, a, 4))
	assert.Equal(t, 20, mustSample(t, tg, a, 5))
	assert.Equal(t, 20, mustSample(t, tg, a, 99))
}

func TestGraph_RemovalRestoresState(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	assert.Equal(t, 0, mustSample(t, tg, a, 10))
	slab := tg.place(t, 3, tg.increment(a, 1))
	assert.Equal(t, 1, mustSample(t, tg, a, 10))

	tg.unplace(t, slab)
	assert.Equal(t, 0, mustSample(t, tg, a, 10))

	// The placement is free again.
	tg.place(t, 3, tg.increment(a, 5))
	assert.Equal(t, 5, mustSample(t, tg, a, 10))
}

func TestGraph_Chain(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 1}, {Resource: b, Value: 0}})

	tg.place(t, 1, tg.increment(a, 1))
	tg.place(t, 2, tg.copyTo(b, a))
	tg.place(t, 3, tg.increment(b, 10))

	assert.Equal(t, 0, mustSample(t, tg, b, 1))
	assert.Equal(t, 2, mustSample(t, tg, b, 2))
	assert.Equal(t, 12, mustSample(t, tg, b, 3))
}

func TestGraph_RepeatedQueriesDoNotReevaluate(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	tg.place(t, 1, tg.increment(a, 1))
	tg.place(t, 2, tg.increment(a, 2))

	for range 5 {
		assert.Equal(t, 3, mustSample(t, tg, a, 10))
	}
	assert.Equal(t, 2, tg.calls.Get("increment"))
}

func TestGraph_StructuralSharing(t *testing.T) {
	a := resource.Discrete[int]("a")
	metrics := NewMetrics(prometheus.NewRegistry())
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}}, WithMetrics(metrics))

	tg.place(t, 1, tg.set(a, 5))
	tg.place(t, 10, tg.set(a, 5))

	assert.Equal(t, 5, mustSample(t, tg, a, 5))
	assert.Equal(t, 5, mustSample(t, tg, a, 20))

	assert.Equal(t, 1, tg.calls.Get("set"))
	assert.Equal(t, 1, tg.History().Len(a))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryMisses))
}

func TestGraph_SameShapeDifferentInputs(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}, {Resource: b, Value: 0}})

	tg.place(t, 2, tg.copyTo(b, a))
	tg.place(t, 4, tg.increment(a, 3))
	tg.place(t, 6, tg.copyTo(b, a))

	assert.Equal(t, 0, mustSample(t, tg, b, 3))
	assert.Equal(t, 3, mustSample(t, tg, b, 7))
	assert.Equal(t, 2, tg.calls.Get("copy"))
	assert.Equal(t, 2, tg.History().Len(b))
}

func TestGraph_MultiOutputLookupCountsOnce(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	metrics := NewMetrics(prometheus.NewRegistry())
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}, {Resource: b, Value: 0}}, WithMetrics(metrics))

	tg.place(t, 1, tg.setBoth(a, b, 4))
	tg.place(t, 10, tg.setBoth(a, b, 4))

	assert.Equal(t, 4, mustSample(t, tg, a, 5))
	assert.Equal(t, 4, mustSample(t, tg, b, 20))
	assert.Equal(t, 1, tg.calls.Get("set_both"))

	st := tg.History().Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryMisses))
}

func TestGraph_SharingAcrossEqualInputs(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	// Both increments see 0, one from the initial condition and one from
	// the set.
	tg.place(t, 1, tg.increment(a, 1))
	tg.place(t, 5, tg.set(a, 0))
	tg.place(t, 6, tg.increment(a, 1))

	assert.Equal(t, 1, mustSample(t, tg, a, 2))
	assert.Equal(t, 1, mustSample(t, tg, a, 7))
	assert.Equal(t, 1, tg.calls.Get("increment"))
}

func TestGraph_InsertInvalidatesReaders(t *testing.T) {
	a := resource.Discrete[int]("a")
	metrics := NewMetrics(prometheus.NewRegistry())
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}}, WithMetrics(metrics))

	tg.place(t, 0, tg.increment(a, 1))
	assert.Equal(t, 1, mustSample(t, tg, a, 3))

	tg.place(t, 2, tg.increment(a, 1))
	assert.Equal(t, 2, mustSample(t, tg, a, 3))
	assert.Equal(t, 2, tg.calls.Get("increment"))

	// The increment at 2 now reads 2. The new one at 1 reads 1, which the
	// increment at 2 already evaluated with.
	tg.place(t, 1, tg.increment(a, 1))
	assert.Equal(t, 3, mustSample(t, tg, a, 3))
	assert.Equal(t, 3, tg.calls.Get("increment"))
	assert.Positive(t, testutil.ToFloat64(metrics.Invalidations))

	// Earlier instants are untouched.
	assert.Equal(t, 1, mustSample(t, tg, a, 0))
}

func TestGraph_RemoveInvalidatesReaders(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}, {Resource: b, Value: 0}})

	inc := tg.place(t, 1, tg.increment(a, 4))
	tg.place(t, 2, tg.copyTo(b, a))
	assert.Equal(t, 4, mustSample(t, tg, b, 5))

	tg.unplace(t, inc)
	assert.Equal(t, 0, mustSample(t, tg, b, 5))
}

func TestGraph_DynamicPlacement(t *testing.T) {
	x := resource.Discrete[int]("x")
	tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: 0}})

	tg.place(t, 5, tg.set(x, 1))
	// Grounder at 4 with delay 4 lands the write at 8, inside [5, 15).
	tg.place(t, 4, tg.delayedSet(x, 2, 4, 1, 11))

	assert.Equal(t, 0, mustSample(t, tg, x, 4))
	assert.Equal(t, 1, mustSample(t, tg, x, 5))
	assert.Equal(t, 1, mustSample(t, tg, x, 7))
	assert.Equal(t, 2, mustSample(t, tg, x, 8))
	assert.Equal(t, 2, mustSample(t, tg, x, 10))
	assert.Equal(t, 1, tg.calls.Get("delay"))
	assert.Equal(t, 1, tg.calls.Get("delayed_set"))
}

func TestGraph_DynamicPlacementBeforeGrounded(t *testing.T) {
	x := resource.Discrete[int]("x")
	tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: 0}})

	tg.place(t, 10, tg.increment(x, 1))
	// Lands at 6, before the increment, so the increment sees 5.
	tg.place(t, 4, tg.delayedSet(x, 5, 2, 1, 11))

	assert.Equal(t, 5, mustSample(t, tg, x, 8))
	assert.Equal(t, 6, mustSample(t, tg, x, 12))
}

func TestGraph_SameInstantTieBreak(t *testing.T) {
	x := resource.Discrete[int]("x")

	t.Run("ungrounded inserted last wins", func(t *testing.T) {
		tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: 0}})
		tg.place(t, 5, tg.set(x, 1))
		tg.place(t, 4, tg.delayedSet(x, 2, 1, 1, 11))
		assert.Equal(t, 2, mustSample(t, tg, x, 5))
	})

	t.Run("grounded inserted last wins", func(t *testing.T) {
		tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: 0}})
		tg.place(t, 4, tg.delayedSet(x, 2, 1, 1, 11))
		tg.place(t, 5, tg.set(x, 1))
		assert.Equal(t, 1, mustSample(t, tg, x, 5))
	})
}

func TestGraph_ResolverRegistrationsStayBounded(t *testing.T) {
	x := resource.Discrete[int]("x")
	y := resource.Discrete[int]("y")
	z := resource.Discrete[int]("z")
	tg := newTestGraph(t, 0, []Initial{
		{Resource: x, Value: 0},
		{Resource: y, Value: 0},
		{Resource: z, Value: 0},
	})

	setX := tg.place(t, 3, tg.set(x, 1))
	// The delayed write may land anywhere in [3, 22), so reads of x at 10
	// go through a resolver over both writers.
	tg.place(t, 3, tg.delayedSet(x, 2, 15, 0, 19))
	tg.place(t, 10, tg.sum(z, x, y))

	observers := func() int { return setX.nodes[0].downstream.len() }

	var first int
	for i := range 50 {
		setY := tg.place(t, 1, tg.set(y, 5))
		assert.Equal(t, 6, mustSample(t, tg, z, 11))
		if i == 0 {
			first = observers()
		}
		require.Equal(t, first, observers(), "cycle %d", i)
		tg.unplace(t, setY)
	}
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, mustSample(t, tg, z, 11))
}

func TestGraph_OutOfRange(t *testing.T) {
	x := resource.Discrete[int]("x")
	tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: 0}})

	tg.place(t, 4, tg.delayedSet(x, 2, 20, 1, 11))

	_, err := sample(tg, x, 30)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodePlacementOutOfRange))
	assert.Len(t, joined(err), 1)
}

func TestGraph_Unreachable(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 10, []Initial{{Resource: a, Value: 0}})

	_, err := sample(tg, a, 5)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnreachable))
}

func TestGraph_FailureIsolation(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	c := resource.Discrete[int]("c")
	tg := newTestGraph(t, 0, []Initial{
		{Resource: a, Value: 0},
		{Resource: b, Value: 0},
		{Resource: c, Value: 0},
	})

	tg.place(t, 1, tg.fail(b))
	tg.place(t, 1, tg.increment(a, 1))
	tg.place(t, 2, tg.copyTo(c, b))

	assert.Equal(t, 1, mustSample(t, tg, a, 5))
	assert.Equal(t, 0, mustSample(t, tg, b, 0))

	for range 2 {
		_, err := sample(tg, c, 5)
		require.Error(t, err)
		errs := joined(err)
		require.Len(t, errs, 1)

		var be *BodyError
		require.ErrorAs(t, errs[0], &be)
		assert.Equal(t, "fail", be.Activity)
		assert.ErrorIs(t, err, errBoom)
		assert.False(t, errors.Is(err, ErrUpstreamFailed))
	}
	assert.Equal(t, 1, tg.calls.Get("fail"))
	assert.Zero(t, tg.calls.Get("copy"))

	_, err := sample(tg, b, 1)
	require.Error(t, err)
	assert.True(t, IsBodyError(err))
}

func TestGraph_BodyPanic(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	tg.place(t, 1, &FuncActivity{
		Name: "panics",
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Writes:    handles(a),
				Body: func(*Inputs, *Outputs) error {
					panic("kaboom")
				},
			}}, nil
		},
	})

	_, err := sample(tg, a, 2)
	require.Error(t, err)
	assert.True(t, IsBodyError(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestGraph_UnsetOutput(t *testing.T) {
	a := resource.Discrete[int]("a")
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}})

	tg.place(t, 1, &FuncActivity{
		Name: "forgetful",
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement: Static(start),
				Writes:    handles(a),
				Body:      func(*Inputs, *Outputs) error { return nil },
			}}, nil
		},
	})

	_, err := sample(tg, a, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set")
}

func TestGraph_DeepChainSpawns(t *testing.T) {
	a := resource.Discrete[int]("a")
	metrics := NewMetrics(prometheus.NewRegistry())
	tg := newTestGraph(t, 0, []Initial{{Resource: a, Value: 0}},
		WithDepthBudget(2), WithMetrics(metrics), WithBufferSize(4))

	for i := 1; i <= 50; i++ {
		tg.place(t, simtime.Time(i), tg.increment(a, 1))
	}
	assert.Equal(t, 50, mustSample(t, tg, a, 100))
	assert.Positive(t, testutil.ToFloat64(metrics.SpawnedTasks))
}

func TestGraph_Polynomial(t *testing.T) {
	x := resource.PolynomialResource("x")
	tg := newTestGraph(t, 0, []Initial{{Resource: x, Value: resource.Constant(1)}})

	ramp := &FuncActivity{
		Name:      "ramp",
		Arguments: ir.Object{"rate": ir.Int(2)},
		Ops: func(start simtime.Time) ([]OpDecl, error) {
			return []OpDecl{{
				Placement:  Static(start),
				ReadWrites: handles(x),
				Body: func(in *Inputs, out *Outputs) error {
					Set(out, x, Evolved(in, x).Add(resource.Linear(0, 2)))
					return nil
				},
			}}, nil
		},
	}
	tg.place(t, 2*time.Second, ramp)

	assert.InDelta(t, 1.0, mustSample(t, tg, x, time.Second), 1e-9)
	assert.InDelta(t, 1.0, mustSample(t, tg, x, 2*time.Second), 1e-9)
	assert.InDelta(t, 7.0, mustSample(t, tg, x, 5*time.Second), 1e-9)
}
