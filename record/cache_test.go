package record

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"persona/pkg/platform/logger"
	"persona/pkg/platform/sentinel"
)

// countingStore wraps a Store and counts external-id lookups so tests can
// tell cache hits from misses.
type countingStore struct {
	Store
	externalLookups int
}

func (c *countingStore) FindByExternalID(ctx context.Context, externalID string) (*Record, error) {
	c.externalLookups++
	return c.Store.FindByExternalID(ctx, externalID)
}

func newCacheFixture(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{Store: NewInMemory()}
	cached := NewCached(inner, client, time.Minute, logger.Discard())
	return cached, inner, mr
}

func TestCachedStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	cached, inner, _ := newCacheFixture(t)

	rec := New()
	rec.Profiles["employer"] = Profile{Attributes: map[string]any{"badge": "b-1"}}
	require.NoError(t, cached.Save(ctx, rec))

	first, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.Equal(t, rec.RecordID, first.RecordID)
	require.Equal(t, 1, inner.externalLookups)

	second, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.Equal(t, rec.Version, second.Version)
	require.Equal(t, "b-1", second.Profiles["employer"].Attributes["badge"])
	require.Equal(t, 1, inner.externalLookups, "second read should be served from cache")
}

func TestCachedStoreSaveInvalidates(t *testing.T) {
	ctx := context.Background()
	cached, inner, _ := newCacheFixture(t)

	rec := New()
	require.NoError(t, cached.Save(ctx, rec))

	_, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.Equal(t, 1, inner.externalLookups)

	require.NoError(t, cached.Save(ctx, rec))

	fresh, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.Equal(t, 2, inner.externalLookups, "save should drop the cached entry")
	require.Equal(t, rec.Version, fresh.Version)
}

func TestCachedStoreSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := newCacheFixture(t)

	rec := New()
	require.NoError(t, cached.Save(ctx, rec))

	mr.Close()

	found, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.Equal(t, rec.RecordID, found.RecordID)
}

func TestCachedStoreMissPropagatesNotFound(t *testing.T) {
	ctx := context.Background()
	cached, _, _ := newCacheFixture(t)

	_, err := cached.FindByExternalID(ctx, "nope")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCachedStoreExists(t *testing.T) {
	ctx := context.Background()
	cached, _, _ := newCacheFixture(t)

	rec := New()
	require.NoError(t, cached.Save(ctx, rec))

	// Warm the cache, then answer existence from it.
	_, err := cached.FindByExternalID(ctx, rec.ExternalID)
	require.NoError(t, err)

	ok, err := cached.Exists(ctx, rec.ExternalID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cached.Exists(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
