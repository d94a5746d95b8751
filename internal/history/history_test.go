package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/horizon/internal/resource"
)

func TestInsertOrFetch(t *testing.T) {
	a := resource.Discrete[int]("a")
	h := New()

	_, ok := h.Get(a, 1)
	assert.False(t, ok)

	assert.Equal(t, 10, h.Insert(a, 1, 10))
	assert.Equal(t, 10, h.Insert(a, 1, 99), "first writer wins")

	v, ok := h.Get(a, 1)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	st := h.Stats()
	assert.Equal(t, 1, st.Resources)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestGetAll_CountsOncePerLookup(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	h := New()
	h.Insert(a, 3, 1)

	_, ok := h.GetAll(3, a, b)
	assert.False(t, ok, "partial hit")
	st := h.Stats()
	assert.Equal(t, uint64(0), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)

	h.Insert(b, 3, 2)
	vals, ok := h.GetAll(3, a, b)
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, vals)
	st = h.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestTablesArePerResource(t *testing.T) {
	a := resource.Discrete[int]("a")
	b := resource.Discrete[int]("b")
	h := New()

	h.Insert(a, 7, 1)
	h.Insert(b, 7, 2)

	va, _ := h.Get(a, 7)
	vb, _ := h.Get(b, 7)
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
	assert.Equal(t, 1, h.Len(a))
	assert.Equal(t, 0, h.Len(resource.Discrete[int]("c")))
}

func TestConcurrentInsertConverges(t *testing.T) {
	a := resource.Discrete[int]("a")
	h := New()

	const workers = 32
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for hash := uint64(0); hash < 100; hash++ {
				h.Insert(a, hash, int(hash))
			}
			results[i] = h.Insert(a, 42, i+1000)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 42, r)
	}
	assert.Equal(t, 100, h.Len(a))
}

func TestExportImport(t *testing.T) {
	a := resource.Discrete[int]("a")
	x := resource.PolynomialResource("x", resource.WithWriteType[resource.Polynomial]("poly/x"))
	h := New()
	h.Insert(a, 1, 5)
	h.Insert(a, 2, 6)
	h.Insert(x, 3, resource.Linear(1, 2))

	snap, err := h.Export()
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, []string{"a", "poly/x"}, snap.WriteTypes())
	assert.Equal(t, []byte("5"), snap["a"][1])

	fresh := New()
	res, err := fresh.Import(resource.MustRegistry(a, x), snap)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Entries)
	assert.Empty(t, res.Skipped)

	v, ok := fresh.Get(x, 3)
	require.True(t, ok)
	assert.Equal(t, resource.Polynomial{1, 2}, v)
}

func TestImport_SkipsUnknownWriteTypes(t *testing.T) {
	a := resource.Discrete[int]("a")
	snap := Snapshot{
		"a":       {1: []byte("5")},
		"unknown": {1: []byte("5")},
	}
	res, err := New().Import(resource.MustRegistry(a), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, []string{"unknown"}, res.Skipped)
}

func TestImport_DecodeError(t *testing.T) {
	a := resource.Discrete[int]("a")
	snap := Snapshot{"a": {9: []byte(`"not an int"`)}}
	_, err := New().Import(resource.MustRegistry(a), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("a/%016x", 9))
}
