// Package docstore provides generic, collection-scoped access to the
// document database. It owns persistence mechanics only: index provisioning,
// lookups, counts and the raw write primitives. Collection invariants belong
// to the stores built on top of it.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"persona/pkg/platform/sentinel"
)

// Store wraps a single collection.
type Store struct {
	coll *mongo.Collection
}

// New scopes a Store to one collection of db.
func New(db *mongo.Database, collection string) *Store {
	return &Store{coll: db.Collection(collection)}
}

// Name returns the underlying collection name.
func (s *Store) Name() string {
	return s.coll.Name()
}

// IndexSpec describes one named index.
type IndexSpec struct {
	Keys bson.D

	// Unique rejects inserts that would duplicate the indexed value.
	Unique bool

	// ExpireAfter, when non-nil, tells the engine to remove documents once
	// the indexed timestamp plus this duration has elapsed. Removal runs on
	// the engine's own schedule, not synchronously with application calls.
	// Zero means expire at the stored instant.
	ExpireAfter *time.Duration
}

// EnsureIndexes creates the named indexes. Safe to call on every startup;
// re-creating an index with an identical definition is a no-op.
func (s *Store) EnsureIndexes(ctx context.Context, specs map[string]IndexSpec) error {
	models := make([]mongo.IndexModel, 0, len(specs))
	for name, spec := range specs {
		opts := options.Index().SetName(name)
		if spec.Unique {
			opts.SetUnique(true)
		}
		if spec.ExpireAfter != nil {
			opts.SetExpireAfterSeconds(int32(spec.ExpireAfter.Seconds()))
		}
		models = append(models, mongo.IndexModel{Keys: spec.Keys, Options: opts})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure indexes on %s: %w", s.coll.Name(), err)
	}
	return nil
}

// FindOneByAttribute decodes the single document whose attribute equals value
// into dest. Returns sentinel.ErrNotFound on zero matches and
// sentinel.ErrAmbiguous when more than one document matches.
func (s *Store) FindOneByAttribute(ctx context.Context, attr string, value any, dest any) error {
	cur, err := s.coll.Find(ctx, bson.M{attr: value}, options.Find().SetLimit(2))
	if err != nil {
		return fmt.Errorf("find %s by %s: %w", s.coll.Name(), attr, err)
	}
	var docs []bson.Raw
	if err := cur.All(ctx, &docs); err != nil {
		return fmt.Errorf("read %s by %s: %w", s.coll.Name(), attr, err)
	}
	switch len(docs) {
	case 0:
		return fmt.Errorf("%s with %s=%v: %w", s.coll.Name(), attr, value, sentinel.ErrNotFound)
	case 1:
		if err := bson.Unmarshal(docs[0], dest); err != nil {
			return fmt.Errorf("decode %s document: %w", s.coll.Name(), err)
		}
		return nil
	default:
		return fmt.Errorf("%s with %s=%v: %w", s.coll.Name(), attr, value, sentinel.ErrAmbiguous)
	}
}

// FindManyByFilter decodes every matching document into dest, a pointer to a
// slice. The result order is unspecified.
func (s *Store) FindManyByFilter(ctx context.Context, filter bson.M, dest any) error {
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	if err := cur.All(ctx, dest); err != nil {
		return fmt.Errorf("read %s: %w", s.coll.Name(), err)
	}
	return nil
}

// Count returns the number of matching documents, capped at limit when
// limit > 0. Callers probing for existence pass limit 1.
func (s *Store) Count(ctx context.Context, filter bson.M, limit int64) (int64, error) {
	opts := options.Count()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	n, err := s.coll.CountDocuments(ctx, filter, opts)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.coll.Name(), err)
	}
	return n, nil
}

// ReplaceOneMatched atomically replaces the document matching filter with doc
// and reports whether anything matched. A miss is not an error; callers
// decide what a miss means for their collection.
func (s *Store) ReplaceOneMatched(ctx context.Context, filter bson.M, doc any) (bool, error) {
	res, err := s.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("replace in %s: %w", s.coll.Name(), sentinel.ErrDuplicateKey)
		}
		return false, fmt.Errorf("replace in %s: %w", s.coll.Name(), err)
	}
	return res.MatchedCount == 1, nil
}

// InsertOne inserts doc, mapping uniqueness violations to
// sentinel.ErrDuplicateKey.
func (s *Store) InsertOne(ctx context.Context, doc any) error {
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w", s.coll.Name(), sentinel.ErrDuplicateKey)
		}
		return fmt.Errorf("insert into %s: %w", s.coll.Name(), err)
	}
	return nil
}
