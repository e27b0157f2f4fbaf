//go:build integration

package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"persona/event"
	"persona/pkg/platform/sentinel"
	"persona/pkg/testutil/containers"
)

type MongoEventStoreSuite struct {
	suite.Suite
	db    *mongo.Database
	store *event.MongoStore
}

func TestMongoEventStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MongoEventStoreSuite))
}

func (s *MongoEventStoreSuite) SetupSuite() {
	mc := containers.NewMongoContainer(s.T())
	s.db = mc.Client.Database("persona_test")
}

func (s *MongoEventStoreSuite) SetupTest() {
	s.Require().NoError(s.db.Collection("events").Drop(context.Background()))
	store, err := event.NewMongo(context.Background(), s.db)
	s.Require().NoError(err)
	s.store = store
}

func makeEvent(externalID string) *event.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &event.Event{
		EventID:   uuid.NewString(),
		Ref:       event.ResourceRef{ResourceType: event.ResourceTypeUser, ExternalID: externalID},
		Timestamp: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Source:    "persona",
		Level:     event.LevelInfo,
		Data:      map[string]any{"v": int32(1), "status": "ok", "message": "created"},
	}
}

func (s *MongoEventStoreSuite) TestAppendRoundtrip() {
	ctx := context.Background()

	ev := makeEvent("u-1")
	s.Require().NoError(s.store.Append(ctx, ev))

	first, err := s.store.FindByEventID(ctx, ev.EventID)
	s.Require().NoError(err)
	second, err := s.store.FindByEventID(ctx, ev.EventID)
	s.Require().NoError(err)

	s.Equal(ev.EventID, first.EventID)
	s.Equal(ev.Ref, first.Ref)
	s.True(ev.Timestamp.Equal(first.Timestamp))
	s.True(ev.ExpiresAt.Equal(first.ExpiresAt))
	s.Equal(ev.Source, first.Source)
	s.Equal(ev.Level, first.Level)
	s.Equal(first.Data, second.Data)

	events, err := s.store.FindBySubject(ctx, "u-1", event.ResourceTypeUser)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(ev.EventID, events[0].EventID)

	events, err = s.store.FindBySubject(ctx, "u-2", event.ResourceTypeUser)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *MongoEventStoreSuite) TestAppendRejectsDuplicateID() {
	ctx := context.Background()

	ev := makeEvent("u-1")
	s.Require().NoError(s.store.Append(ctx, ev))
	s.Require().ErrorIs(s.store.Append(ctx, ev), sentinel.ErrDuplicateKey)
}

func (s *MongoEventStoreSuite) TestNotFound() {
	_, err := s.store.FindByEventID(context.Background(), uuid.NewString())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestRetentionIndex verifies the TTL index is provisioned with a zero grace
// period. Actual removal is the engine's asynchronous business; waiting for
// its sweep cycle is not worth a minute of test time.
func (s *MongoEventStoreSuite) TestRetentionIndex() {
	ctx := context.Background()

	cur, err := s.db.Collection("events").Indexes().List(ctx)
	s.Require().NoError(err)
	var indexes []bson.M
	s.Require().NoError(cur.All(ctx, &indexes))

	var names []string
	foundTTL := false
	for _, idx := range indexes {
		name, _ := idx["name"].(string)
		names = append(names, name)
		if name == "auto-discard" {
			expire, ok := idx["expireAfterSeconds"].(int32)
			s.Require().True(ok, "auto-discard index must carry expireAfterSeconds")
			s.Equal(int32(0), expire)
			foundTTL = true
		}
	}
	s.True(foundTTL, "missing auto-discard index, have %v", names)
	s.Contains(names, "unique-event-id")

	// Provisioning again must be a no-op, not an error.
	_, err = event.NewMongo(ctx, s.db)
	s.Require().NoError(err)
}
