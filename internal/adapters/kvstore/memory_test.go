package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/planner/internal/ports"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v"))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	require.NoError(t, store.Set(ctx, "planner_year_2026", "a"))
	require.NoError(t, store.Set(ctx, "planner_day_2026-01-01", "b"))
	require.NoError(t, store.Set(ctx, "other_key", "c"))

	keys, err := store.Keys(ctx, "planner_")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"planner_year_2026", "planner_day_2026-01-01"}, keys)

	keys, err = store.Keys(ctx, "planner_year_")
	require.NoError(t, err)
	assert.Equal(t, []string{"planner_year_2026"}, keys)
}

func TestMemoryStoreCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	require.NoError(t, store.Set(ctx, "k", "12345"))

	err := store.Set(ctx, "k2", "too large to fit")
	assert.ErrorIs(t, err, ports.ErrCapacityExceeded)

	// Overwriting an existing key accounts for the freed bytes.
	require.NoError(t, store.Set(ctx, "k", "123456789"))

	// Deleting frees capacity for new writes.
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Set(ctx, "a", "12345678"))
}
