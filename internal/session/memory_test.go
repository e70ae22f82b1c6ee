package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutReplacesWholesale(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	key := NewKey()

	require.NoError(t, s.Put(ctx, key, Entry{Query: "first", IDs: []string{"a", "b", "c"}, PageSize: 18}))
	require.NoError(t, s.Put(ctx, key, Entry{Query: "second", IDs: []string{"x"}, PageSize: 18}))

	e, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", e.Query)
	assert.Equal(t, []string{"x"}, e.IDs)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", Entry{IDs: []string{"a"}}))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Put(ctx, "k2", Entry{IDs: []string{"b"}}))

	now = now.Add(45 * time.Second)
	_, err := s.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "k2")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_IsolatedCopies(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	ids := []string{"a", "b"}

	require.NoError(t, s.Put(ctx, "k", Entry{IDs: ids}))
	ids[0] = "mutated"

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	e.IDs[1] = "mutated"

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, again.IDs)
}

func TestMemoryStore_DeleteAndKeys(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", Entry{}))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Put(ctx, "", Entry{}), ErrInvalidKey)
	assert.NotEqual(t, NewKey(), NewKey())
}
