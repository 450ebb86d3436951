package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/x402-facilitator/facilitator/clock"
)

func TestInMemoryStore_UpsertPreservesIDAcrossUpdates(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)

	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))
	first, found, err := store.Get(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, first.ID)

	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))
	second, found, err := store.Get(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.ID, second.ID)
}

func TestInMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	resource, found, err := store.Get(context.Background(), "https://example.com/missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, resource)
}

func TestInMemoryStore_ListFiltersByType(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/b", Type: "mcp"}))

	items, pagination, err := store.List(context.Background(), ListOptions{Type: "mcp"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://example.com/b", items[0].Resource)
	require.Equal(t, 1, pagination.Total)
}

func TestInMemoryStore_ListPaginates(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		require.NoError(t, store.Upsert(context.Background(), Resource{Resource: url, Type: "http"}))
	}

	items, pagination, err := store.List(context.Background(), ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 1, pagination.Offset)
}

func TestInMemoryStore_ListClampsLimitAndOffset(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		require.NoError(t, store.Upsert(context.Background(), Resource{Resource: url, Type: "http"}))
	}

	items, pagination, err := store.List(context.Background(), ListOptions{Limit: 0})
	require.NoError(t, err)
	require.Len(t, items, 3, "a zero limit must default rather than return an unbounded page")
	require.Equal(t, defaultListLimit, pagination.Limit)

	items, pagination, err = store.List(context.Background(), ListOptions{Limit: -5})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, defaultListLimit, pagination.Limit)

	_, pagination, err = store.List(context.Background(), ListOptions{Limit: 999999})
	require.NoError(t, err)
	require.Equal(t, maxListLimit, pagination.Limit)

	items, pagination, err = store.List(context.Background(), ListOptions{Offset: -3})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, 0, pagination.Offset)
}

func TestInMemoryStore_ListHidesStaleEntries(t *testing.T) {
	c := clock.NewFixed(time.Unix(0, 0))
	store := NewInMemoryStore(c, time.Minute)

	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))

	c.Advance(2 * time.Minute)
	items, pagination, err := store.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 0, pagination.Total)
}

func TestInMemoryStore_ListSortsByLastUpdatedDescending(t *testing.T) {
	c := clock.NewFixed(time.Unix(0, 0))
	store := NewInMemoryStore(c, time.Hour)

	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/first", Type: "http"}))
	c.Advance(time.Minute)
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/second", Type: "http"}))
	c.Advance(time.Minute)
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/third", Type: "http"}))

	items, _, err := store.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "https://example.com/third", items[0].Resource, "most recently updated resource must sort first")
	require.Equal(t, "https://example.com/second", items[1].Resource)
	require.Equal(t, "https://example.com/first", items[2].Resource)
}

func TestInMemoryStore_DeleteHidesFromListButCleanupIsAgeGated(t *testing.T) {
	c := clock.NewFixed(time.Unix(0, 0))
	store := NewInMemoryStore(c, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))

	require.NoError(t, store.Delete(context.Background(), "https://example.com/a", c.Now()))

	items, _, err := store.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Empty(t, items, "soft-deleted resources must not appear in List results")

	purged, err := store.Cleanup(context.Background(), c.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, purged, "cleanup before the purge horizon must not remove a recently soft-deleted record")

	purged, err = store.Cleanup(context.Background(), c.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	_, found, err := store.Get(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.False(t, found)
}

func TestInMemoryStore_ListFiltersByMetadata(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), Resource{
		Resource: "https://example.com/a", Type: "http",
		Metadata: &Metadata{Category: "weather"},
	}))
	require.NoError(t, store.Upsert(context.Background(), Resource{
		Resource: "https://example.com/b", Type: "http",
		Metadata: &Metadata{Category: "finance"},
	}))
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/c", Type: "http"}))

	items, pagination, err := store.List(context.Background(), ListOptions{Metadata: map[string]string{"category": "finance"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://example.com/b", items[0].Resource)
	require.Equal(t, 1, pagination.Total)
}

func TestInMemoryStore_ListAppliesURLFilter(t *testing.T) {
	store := NewInMemoryStore(clock.System{}, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://example.com/a", Type: "http"}))
	require.NoError(t, store.Upsert(context.Background(), Resource{Resource: "https://internal.example/b", Type: "http"}))

	items, _, err := store.List(context.Background(), ListOptions{
		URLFilter: func(resourceURL string) bool { return resourceURL != "https://internal.example/b" },
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://example.com/a", items[0].Resource)
}
