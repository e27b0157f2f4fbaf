package record

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const cacheKeyPrefix = "record:external:"

// CachedStore decorates a Store with a Redis read-through cache keyed by
// external id. Cache entries live at most ttl and are dropped on every
// successful Save, so a stale hit is bounded and at worst surfaces as a
// conflict on the next Save, which callers already handle by re-reading.
// Cache failures never fail a request; the inner store is the truth.
// Entries are stored in the document codec's encoding, so a hit decodes
// profile bag values through the same type mapping as a store read.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewCached wraps inner with a read-through cache.
func NewCached(inner Store, client *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	if log == nil {
		log = slog.Default()
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, log: log}
}

func (c *CachedStore) Save(ctx context.Context, rec *Record) error {
	if err := c.inner.Save(ctx, rec); err != nil {
		return err
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+rec.ExternalID).Err(); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed", "external_id", rec.ExternalID, "err", err)
	}
	return nil
}

func (c *CachedStore) FindByExternalID(ctx context.Context, externalID string) (*Record, error) {
	key := cacheKeyPrefix + externalID
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec Record
		if err := bson.Unmarshal(payload, &rec); err == nil {
			return &rec, nil
		}
		// Unreadable entry; fall through to the inner store and rewrite it.
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "cache read failed", "external_id", externalID, "err", err)
	}

	rec, err := c.inner.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if payload, err := bson.Marshal(rec); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.WarnContext(ctx, "cache write failed", "external_id", externalID, "err", err)
		}
	}
	return rec, nil
}

func (c *CachedStore) Exists(ctx context.Context, externalID string) (bool, error) {
	n, err := c.client.Exists(ctx, cacheKeyPrefix+externalID).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	return c.inner.Exists(ctx, externalID)
}

func (c *CachedStore) FindByRecordID(ctx context.Context, recordID primitive.ObjectID) (*Record, error) {
	return c.inner.FindByRecordID(ctx, recordID)
}

func (c *CachedStore) FindByScopedAttribute(ctx context.Context, scope, attr string, value any) (*Record, error) {
	return c.inner.FindByScopedAttribute(ctx, scope, attr, value)
}

func (c *CachedStore) FindByLastModified(ctx context.Context, op ModifiedOp, ts time.Time) ([]*Record, error) {
	return c.inner.FindByLastModified(ctx, op, ts)
}
