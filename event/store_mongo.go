package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"persona/docstore"
	"persona/pkg/platform/sentinel"
)

var appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "persona_event_appends_total",
	Help: "Events appended to the store",
})

const eventCollection = "events"

// MongoStore is the production event Store. Retention rides on a TTL index:
// the engine removes documents past expires_at on its own schedule.
type MongoStore struct {
	docs *docstore.Store
	log  *slog.Logger
}

// MongoStoreOption configures a MongoStore instance.
type MongoStoreOption func(*MongoStore)

// WithLogger sets the store's logger.
func WithLogger(log *slog.Logger) MongoStoreOption {
	return func(s *MongoStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMongo constructs the event store and provisions its indexes.
func NewMongo(ctx context.Context, db *mongo.Database, opts ...MongoStoreOption) (*MongoStore, error) {
	s := &MongoStore{
		docs: docstore.New(db, eventCollection),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	discardAt := time.Duration(0) // expire at the stored instant
	indexes := map[string]docstore.IndexSpec{
		"auto-discard": {
			Keys:        bson.D{{Key: "expires_at", Value: 1}},
			ExpireAfter: &discardAt,
		},
		"unique-event-id": {
			Keys:   bson.D{{Key: "event_id", Value: 1}},
			Unique: true,
		},
	}
	if err := s.docs.EnsureIndexes(ctx, indexes); err != nil {
		return nil, err
	}
	return s, nil
}

// Append inserts ev. Events are never modified afterwards.
func (s *MongoStore) Append(ctx context.Context, ev *Event) error {
	if ev == nil || ev.EventID == "" {
		return fmt.Errorf("event id must be set: %w", sentinel.ErrInvalidArgument)
	}
	if err := s.docs.InsertOne(ctx, ev); err != nil {
		return err
	}
	appendsTotal.Inc()
	s.log.DebugContext(ctx, "event appended",
		"event_id", ev.EventID, "external_id", ev.Ref.ExternalID, "level", string(ev.Level))
	return nil
}

func (s *MongoStore) FindByEventID(ctx context.Context, eventID string) (*Event, error) {
	var ev Event
	if err := s.docs.FindOneByAttribute(ctx, "event_id", eventID, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindBySubject returns every stored event referencing the subject record,
// in no guaranteed order.
func (s *MongoStore) FindBySubject(ctx context.Context, externalID string, resourceType ResourceType) ([]*Event, error) {
	filter := bson.M{
		"ref.external_id":   externalID,
		"ref.resource_type": string(resourceType),
	}
	var events []*Event
	if err := s.docs.FindManyByFilter(ctx, filter, &events); err != nil {
		return nil, err
	}
	return events, nil
}
