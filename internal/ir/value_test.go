package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{"zebra": Int(1), "apple": Int(2), "mango": Int(3)}
	assert.Equal(t, []string{"apple", "mango", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D.. which sort before U+FFFD in
	// UTF-16 but after it in UTF-8.
	obj := Object{"\U0001F600": Int(1), "\uFFFD": Int(2)}
	assert.Equal(t, []string{"\U0001F600", "\uFFFD"}, obj.SortedKeys())
}

func TestObjectAccessors(t *testing.T) {
	obj := Object{
		"resource": String("a"),
		"by":       Int(3),
		"rate":     String("-0.5"),
	}

	s, err := obj.Str("resource")
	require.NoError(t, err)
	assert.Equal(t, "a", s)

	n, err := obj.Int("by")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = obj.IntOr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	f, err := obj.Decimal("rate")
	require.NoError(t, err)
	assert.Equal(t, -0.5, f)

	f, err = obj.Decimal("by")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = obj.Str("by")
	assert.ErrorContains(t, err, "expected string")
	_, err = obj.Int("missing")
	assert.ErrorContains(t, err, "is required")
}

func TestObjectDuration(t *testing.T) {
	obj := Object{"whole": Int(5), "text": String("1.5s"), "bad": String("soon"), "flag": Bool(true)}

	d, err := obj.Duration("whole")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = obj.Duration("text")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	for _, key := range []string{"bad", "flag", "missing"} {
		_, err := obj.Duration(key)
		assert.Error(t, err, key)
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"name":  "heater",
		"count": 2,
		"on":    true,
		"steps": []any{1.0, int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{
		"name":  String("heater"),
		"count": Int(2),
		"on":    Bool(true),
		"steps": List{Int(1), Int(2)},
	}, v)
}

func TestFromAny_RejectsFractionsAndNull(t *testing.T) {
	_, err := FromAny(2.5)
	assert.ErrorContains(t, err, "decimal string")

	_, err = FromAny(json.Number("1.5"))
	assert.Error(t, err)

	_, err = FromAny(nil)
	assert.Error(t, err)

	_, err = ObjectFromMap(map[string]any{"x": []any{nil}})
	assert.ErrorContains(t, err, `argument "x"`)
}

func TestToAny_RoundTrip(t *testing.T) {
	in := map[string]any{"a": "x", "b": int64(4), "c": []any{true}}
	v, err := FromAny(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToAny(v))
}
