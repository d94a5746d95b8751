package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, 1, c.Inc("a"))
	assert.Equal(t, 2, c.Inc("a"))
	c.Inc("b")

	assert.Equal(t, 2, c.Get("a"))
	assert.Equal(t, 0, c.Get("missing"))
	assert.Equal(t, 3, c.Total())
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	c.Reset()
	assert.Equal(t, 0, c.Total())
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc("k")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Get("k"))
}
