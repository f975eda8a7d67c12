package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory()

	_, ok, err := m.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("a", []byte("1")))
	v, ok, err := m.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// returned slices are copies
	v[0] = 'x'
	v, _, _ = m.Get("a")
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, m.Remove("a"))
	_, ok, _ = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestPrefixedStore(t *testing.T) {
	m := NewMemory()
	pools := Prefixed(m, "pool")
	tokens := Prefixed(m, "token:")

	require.NoError(t, pools.Set("x", []byte("p")))
	require.NoError(t, tokens.Set("x", []byte("t")))

	v, ok, err := pools.Get("x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("p"), v)

	all, err := tokens.All()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"x": []byte("t")}, all)

	raw, err := m.All()
	require.NoError(t, err)
	assert.Contains(t, raw, "pool:x")
	assert.Contains(t, raw, "token:x")

	require.NoError(t, pools.Remove("x"))
	all, _ = pools.All()
	assert.Empty(t, all)
}
