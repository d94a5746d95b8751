package plan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/store"
	"github.com/roach88/horizon/internal/store/kv"
	"github.com/roach88/horizon/internal/testutil"
)

func TestPlan_PersistersRoundTrip(t *testing.T) {
	sqlite, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	badger, err := kv.Open(kv.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { badger.Close() })

	for name, persister := range map[string]Persister{"sqlite": sqlite, "badger": badger} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := resource.Discrete[int]("a")
			b := resource.Discrete[int]("b")
			calls := testutil.NewCounter()
			build := func() *Plan {
				p := newPlan(t, []engine.Initial{{Resource: a, Value: 1}, {Resource: b, Value: 0}})
				_, err := p.Insert(1, incr(a, calls))
				require.NoError(t, err)
				_, err = p.Insert(2, assign(b, a, calls))
				require.NoError(t, err)
				return p
			}

			first := build()
			v, err := SampleOf(ctx, first, b, 3)
			require.NoError(t, err)
			assert.Equal(t, 2, v)
			require.Equal(t, 2, calls.Total())

			n, err := first.SaveHistory(ctx, persister)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// A plan that knows only a skips b's entries.
			partial := newPlan(t, []engine.Initial{{Resource: a, Value: 1}})
			res, err := partial.LoadHistory(ctx, persister)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, res.Skipped)

			second := build()
			_, err = second.LoadHistory(ctx, persister)
			require.NoError(t, err)
			v, err = SampleOf(ctx, second, b, 3)
			require.NoError(t, err)
			assert.Equal(t, 2, v)
			assert.Equal(t, 2, calls.Total())
		})
	}
}
