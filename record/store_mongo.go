package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"persona/docstore"
	"persona/pkg/platform/sentinel"
)

var (
	saveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_record_saves_total",
		Help: "Record save attempts by outcome",
	}, []string{"outcome"})
	saveDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persona_record_save_duration_ms",
		Help:    "Latency of record saves in milliseconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
	})
)

const recordCollection = "records"

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// MongoStore is the production Store backed by the document database.
type MongoStore struct {
	docs  *docstore.Store
	clock Clock
	log   *slog.Logger
}

// MongoStoreOption configures a MongoStore instance.
type MongoStoreOption func(*MongoStore)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) MongoStoreOption {
	return func(s *MongoStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(log *slog.Logger) MongoStoreOption {
	return func(s *MongoStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMongo constructs the record store and provisions its indexes.
func NewMongo(ctx context.Context, db *mongo.Database, opts ...MongoStoreOption) (*MongoStore, error) {
	s := &MongoStore{
		docs:  docstore.New(db, recordCollection),
		clock: time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	indexes := map[string]docstore.IndexSpec{
		"unique-external-id": {
			Keys:   bson.D{{Key: "external_id", Value: 1}},
			Unique: true,
		},
	}
	if err := s.docs.EnsureIndexes(ctx, indexes); err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists rec under the optimistic-concurrency protocol documented on
// Store. The conditional replace is the sole synchronization primitive: of
// all concurrent callers holding the same observed version, at most one can
// match, so at most one wins.
func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record: %w", sentinel.ErrInvalidArgument)
	}
	start := time.Now()

	// Match on identity plus the version the caller last observed.
	match := bson.M{"_id": rec.RecordID, "version": rec.Version}

	candidate := *rec
	candidate.Version = primitive.NewObjectID()

	// On an update the new last_modified must be strictly greater than the
	// stored one, even when two saves land inside a single millisecond. A
	// matched replace implies the stored timestamp equals the caller's.
	now := s.clock().UTC().Truncate(time.Millisecond)
	stamped := now
	if !stamped.After(rec.LastModified) {
		stamped = rec.LastModified.Add(time.Millisecond)
	}
	candidate.LastModified = stamped

	matched, err := s.docs.ReplaceOneMatched(ctx, match, candidate)
	if err != nil {
		saveOutcomes.WithLabelValues("error").Inc()
		return fmt.Errorf("replace record %s: %w", rec.RecordID.Hex(), err)
	}
	if matched {
		saveOutcomes.WithLabelValues("updated").Inc()
	} else {
		// Miss: either the caller's version is stale or the record was never
		// persisted. A version-blind existence probe disambiguates.
		n, err := s.docs.Count(ctx, bson.M{"_id": rec.RecordID}, 1)
		if err != nil {
			saveOutcomes.WithLabelValues("error").Inc()
			return fmt.Errorf("probe record %s: %w", rec.RecordID.Hex(), err)
		}
		if n > 0 {
			saveOutcomes.WithLabelValues("conflict").Inc()
			return fmt.Errorf("record %s at version %s is stale: %w",
				rec.RecordID.Hex(), rec.Version.Hex(), sentinel.ErrConflict)
		}
		// First write for this record id: insert, no version comparison and
		// no stored timestamp to order against. The unique external_id
		// index settles concurrent first-time creations; the loser gets
		// sentinel.ErrDuplicateKey.
		candidate.LastModified = now
		if err := s.docs.InsertOne(ctx, candidate); err != nil {
			saveOutcomes.WithLabelValues("error").Inc()
			return fmt.Errorf("create record %s: %w", rec.RecordID.Hex(), err)
		}
		saveOutcomes.WithLabelValues("created").Inc()
	}

	// The stored document won; hand the fresh token back so the caller's
	// next Save compares against it.
	rec.Version = candidate.Version
	rec.LastModified = candidate.LastModified

	saveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	s.log.DebugContext(ctx, "record saved",
		"record_id", rec.RecordID.Hex(), "external_id", rec.ExternalID, "version", rec.Version.Hex())
	return nil
}

func (s *MongoStore) FindByRecordID(ctx context.Context, recordID primitive.ObjectID) (*Record, error) {
	var rec Record
	if err := s.docs.FindOneByAttribute(ctx, "_id", recordID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) FindByExternalID(ctx context.Context, externalID string) (*Record, error) {
	var rec Record
	if err := s.docs.FindOneByAttribute(ctx, "external_id", externalID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByScopedAttribute addresses one attribute of one named profile, e.g.
// scope "employer", attr "badge" matches profiles.employer.attributes.badge.
func (s *MongoStore) FindByScopedAttribute(ctx context.Context, scope, attr string, value any) (*Record, error) {
	if scope == "" || attr == "" {
		return nil, fmt.Errorf("scope and attr must be set: %w", sentinel.ErrInvalidArgument)
	}
	path := fmt.Sprintf("profiles.%s.attributes.%s", scope, attr)
	var rec Record
	if err := s.docs.FindOneByAttribute(ctx, path, value, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) FindByLastModified(ctx context.Context, op ModifiedOp, ts time.Time) ([]*Record, error) {
	mongoOp, err := modifiedOperator(op)
	if err != nil {
		return nil, err
	}
	var recs []*Record
	filter := bson.M{"last_modified": bson.M{mongoOp: ts}}
	if err := s.docs.FindManyByFilter(ctx, filter, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *MongoStore) Exists(ctx context.Context, externalID string) (bool, error) {
	n, err := s.docs.Count(ctx, bson.M{"external_id": externalID}, 1)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func modifiedOperator(op ModifiedOp) (string, error) {
	switch op {
	case ModifiedAfter:
		return "$gt", nil
	case ModifiedAtOrAfter:
		return "$gte", nil
	default:
		return "", fmt.Errorf("unknown modified operator %q: %w", op, sentinel.ErrInvalidArgument)
	}
}
