package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/history"
	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/model"
	"github.com/roach88/horizon/internal/resource"
)

func ptr(f float64) *float64 { return &f }

func at(s int) Time { return Time(time.Duration(s) * time.Second) }

func inlineScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		Resources: map[string]ResourceDecl{
			"x": {Kind: "int"},
			"y": {Kind: "float", Default: 0.5},
		},
		Steps: steps,
	}
}

func TestRun_Passing(t *testing.T) {
	sc := inlineScenario(
		Step{Insert: &InsertStep{ID: "a", Activity: "set", At: at(2), Args: map[string]any{"resource": "x", "value": 4}}},
		Step{Sample: &SampleStep{Resource: "x", At: at(1), Expect: ptr(0)}},
		Step{Sample: &SampleStep{Resource: "x", At: at(3), Expect: ptr(4)}},
		Step{Sample: &SampleStep{Resource: "y", At: at(3), Expect: ptr(0.5)}},
	)

	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{
		`insert a: set {"resource":"x","value":4} at 2s`,
		"sample x at 1s = 0",
		"sample x at 3s = 4",
		"sample y at 3s = 0.5",
		"history entries=1",
	}, result.Trace)
	assert.Equal(t, 1, result.Entries)
}

func TestRun_ExpectationFailures(t *testing.T) {
	sc := inlineScenario(
		Step{Sample: &SampleStep{Resource: "x", At: at(1), Expect: ptr(7)}},
		Step{Sample: &SampleStep{Resource: "x", At: at(1), ExpectError: "UNREACHABLE"}},
		Step{Sample: &SampleStep{Resource: "nope", At: at(1)}},
		Step{View: &ViewStep{Resource: "x", From: at(0), To: at(5), Expect: []ViewPoint{{At: at(0), Value: 0}, {At: at(3), Value: 1}}}},
	)

	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected 7, got 0")
	assert.Contains(t, result.Errors[1], "expected error UNREACHABLE, got none")
	assert.Contains(t, result.Errors[2], "unexpected error: UNKNOWN_RESOURCE")
	assert.Contains(t, result.Errors[3], "expected 2 points, got 1 points")
	assert.Equal(t, "sample nope at 1s ! UNKNOWN_RESOURCE", result.Trace[2])
}

func TestRun_WrongErrorCode(t *testing.T) {
	sc := inlineScenario(
		Step{Insert: &InsertStep{Activity: "set", At: at(1), Args: map[string]any{"resource": "missing", "value": 1}, ExpectError: "INVALID_ACTIVITY"}},
	)

	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error INVALID_ACTIVITY, got UNKNOWN_RESOURCE")
}

func TestRun_Unreachable(t *testing.T) {
	sc := inlineScenario(
		Step{Sample: &SampleStep{Resource: "x", At: at(1), ExpectError: "UNREACHABLE"}},
	)
	sc.Start = at(5)

	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "sample x at 1s ! UNREACHABLE", result.Trace[0])
}

func TestRun_InitialOverrides(t *testing.T) {
	sc := inlineScenario(
		Step{Sample: &SampleStep{Resource: "x", At: at(0), Expect: ptr(9)}},
	)
	sc.Initial = map[string]float64{"x": 9}

	result, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("unknown initial", func(t *testing.T) {
		sc := inlineScenario(Step{Sample: &SampleStep{Resource: "x", At: at(0)}})
		sc.Initial = map[string]float64{"z": 1}
		_, err := Run(context.Background(), sc, Options{})
		assert.ErrorContains(t, err, "initial")
	})
	t.Run("fractional int initial", func(t *testing.T) {
		sc := inlineScenario(Step{Sample: &SampleStep{Resource: "x", At: at(0)}})
		sc.Initial = map[string]float64{"x": 1.5}
		_, err := Run(context.Background(), sc, Options{})
		assert.Error(t, err)
	})
	t.Run("bad kind", func(t *testing.T) {
		sc := inlineScenario(Step{Sample: &SampleStep{Resource: "x", At: at(0)}})
		sc.Resources["z"] = ResourceDecl{Kind: "string"}
		_, err := Run(context.Background(), sc, Options{})
		assert.Error(t, err)
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sc := inlineScenario(Step{Sample: &SampleStep{Resource: "x", At: at(0)}})
		_, err := Run(ctx, sc, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun_Metrics(t *testing.T) {
	sc := inlineScenario(
		Step{Insert: &InsertStep{Activity: "increment", At: at(1), Args: map[string]any{"resource": "x", "by": 1}}},
		Step{Sample: &SampleStep{Resource: "x", At: at(2), Expect: ptr(1)}},
		Step{Sample: &SampleStep{Resource: "x", At: at(3), Expect: ptr(1)}},
	)
	m := engine.NewMetrics(prometheus.NewRegistry())

	result, err := Run(context.Background(), sc, Options{Metrics: m, DepthBudget: 1})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BodyInvocations))
}

// memPersister keeps one snapshot in memory.
type memPersister struct {
	snap  history.Snapshot
	loads int
}

func (m *memPersister) SaveHistory(_ context.Context, snap history.Snapshot) error {
	m.snap = snap
	return nil
}

func (m *memPersister) LoadHistory(context.Context) (history.Snapshot, error) {
	m.loads++
	if m.snap == nil {
		return history.Snapshot{}, nil
	}
	return m.snap, nil
}

func TestRun_PersistedHistoryIsReused(t *testing.T) {
	sc := inlineScenario(
		Step{Insert: &InsertStep{Activity: "increment", At: at(1), Args: map[string]any{"resource": "x", "by": 3}}},
		Step{Sample: &SampleStep{Resource: "x", At: at(2), Expect: ptr(3)}},
	)
	p := &memPersister{}

	first := engine.NewMetrics(prometheus.NewRegistry())
	result, err := Run(context.Background(), sc, Options{Metrics: first, Persister: p})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1.0, promtest.ToFloat64(first.HistoryMisses))
	assert.Equal(t, 1, p.snap.Len())

	second := engine.NewMetrics(prometheus.NewRegistry())
	result, err = Run(context.Background(), sc, Options{Metrics: second, Persister: p})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1.0, promtest.ToFloat64(second.HistoryHits))
	assert.Equal(t, 0.0, promtest.ToFloat64(second.BodyInvocations))
	assert.Equal(t, 2, p.loads)
}

func TestRun_CustomLibrary(t *testing.T) {
	lib := model.NewLibrary()
	require.NoError(t, lib.Register("double", func(reg *resource.Registry, args ir.Object) (engine.Activity, error) {
		return lib.Build(reg, "increment", ir.Object{"resource": ir.String("x"), "by": ir.Int(2)})
	}))
	sc := inlineScenario(
		Step{Insert: &InsertStep{Activity: "double", At: at(1)}},
		Step{Sample: &SampleStep{Resource: "x", At: at(1), Expect: ptr(2)}},
	)

	result, err := Run(context.Background(), sc, Options{Library: lib})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestDescribe(t *testing.T) {
	body := &engine.BodyError{Activity: "fail", Err: errors.New("boom")}
	rt := &engine.RuntimeError{Code: engine.ErrCodeUnreachable}
	err := errors.Join(rt, fmt.Errorf("wrapped: %w", body), rt, errors.New("plain"))

	parts := describe(err)
	assert.Equal(t, []string{"BODY_FAILED fail: boom", "UNREACHABLE", "plain"}, parts)
	assert.True(t, matchesError(parts, "BODY_FAILED fail"))
	assert.True(t, matchesError(parts, "UNREACHABLE"))
	assert.False(t, matchesError(parts, "TYPE_MISMATCH"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "42", formatValue(int64(42)))
	assert.Equal(t, "2.5", formatValue(2.5))
	assert.Equal(t, "1e+21", formatValue(1e21))
	assert.Equal(t, "true", formatValue(true))
}
