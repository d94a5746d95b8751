package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationHash_Deterministic(t *testing.T) {
	args := Object{"resource": String("a"), "by": Int(1)}
	h1, err := OperationHash("increment", 0, args)
	require.NoError(t, err)
	h2, err := OperationHash("increment", 0, Object{"by": Int(1), "resource": String("a")})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "key order must not affect identity")
}

func TestOperationHash_ChangesWithConfig(t *testing.T) {
	args := Object{"by": Int(1)}
	base := MustOperationHash("increment", 0, args)

	assert.NotEqual(t, base, MustOperationHash("decrement", 0, args))
	assert.NotEqual(t, base, MustOperationHash("increment", 1, args))
	assert.NotEqual(t, base, MustOperationHash("increment", 0, Object{"by": Int(2)}))
}

func TestOperationHash_NilArgsEqualsEmpty(t *testing.T) {
	assert.Equal(t, MustOperationHash("noop", 0, nil), MustOperationHash("noop", 0, Object{}))
}

func TestHasher_DomainSeparation(t *testing.T) {
	a := NewHasher(DomainNode).Uint64(1).Sum64()
	b := NewHasher(DomainInitial).Uint64(1).Sum64()
	assert.NotEqual(t, a, b)
}

func TestHasher_LengthPrefix(t *testing.T) {
	a := NewHasher(DomainValue).String("ab").String("c").Sum64()
	b := NewHasher(DomainValue).String("a").String("bc").Sum64()
	assert.NotEqual(t, a, b)
}

func TestValueHash(t *testing.T) {
	h1, err := ValueHash(Int(5))
	require.NoError(t, err)
	h2, err := ValueHash(Int(5))
	require.NoError(t, err)
	h3, err := ValueHash(String("5"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
