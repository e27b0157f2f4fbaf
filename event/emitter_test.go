package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"persona/notify"
	"persona/pkg/platform/logger"
	"persona/record"
)

type failingStore struct{}

func (failingStore) Append(context.Context, *Event) error { return errors.New("store down") }
func (failingStore) FindByEventID(context.Context, string) (*Event, error) {
	return nil, errors.New("store down")
}
func (failingStore) FindBySubject(context.Context, string, ResourceType) ([]*Event, error) {
	return nil, errors.New("store down")
}

type capturingPublisher struct {
	mu      sync.Mutex
	changes []notify.Change
	err     error
}

func (p *capturingPublisher) PublishChange(_ context.Context, ch notify.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, ch)
	return p.err
}

func TestEmitBuildsAndAppendsEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemory()
	emitter := NewEmitter(store,
		WithSource("persona-test"),
		WithRetention(time.Hour),
		WithEmitterClock(func() time.Time { return now }),
		WithEmitterLogger(logger.Discard()),
	)

	rec := record.New()
	emitter.Emit(ctx, rec, LevelInfo, "ok", "created")
	emitter.Flush()

	events, err := store.FindBySubject(ctx, rec.ExternalID, ResourceTypeUser)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, "persona-test", ev.Source)
	require.Equal(t, LevelInfo, ev.Level)
	require.Equal(t, now, ev.Timestamp)
	require.Equal(t, now.Add(time.Hour), ev.ExpiresAt)
	require.Equal(t, map[string]any{"v": 1, "status": "ok", "message": "created"}, ev.Data)
}

func TestEmitNotifiesChangePublisher(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	pub := &capturingPublisher{}
	emitter := NewEmitter(store,
		WithChangePublisher(pub),
		WithEmitterLogger(logger.Discard()),
	)

	rec := record.New()
	emitter.Emit(ctx, rec, LevelInfo, "ok", "updated")
	emitter.Flush()

	require.Len(t, pub.changes, 1)
	require.Equal(t, rec.ExternalID, pub.changes[0].ExternalID)
	require.Equal(t, string(ResourceTypeUser), pub.changes[0].ResourceType)
	require.Equal(t, "updated", pub.changes[0].Message)
}

func TestEmitDropsNilRecord(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	emitter := NewEmitter(store, WithEmitterLogger(logger.Discard()))

	before := testutil.ToFloat64(emitFailures)
	emitter.Emit(ctx, nil, LevelInfo, "ok", "created")
	emitter.Flush()

	require.Equal(t, before+1, testutil.ToFloat64(emitFailures))
}

// Emit is fire-and-forget: a broken store must neither fail nor panic the
// caller, only count and log the loss.
func TestEmitSwallowsAppendFailures(t *testing.T) {
	ctx := context.Background()
	emitter := NewEmitter(failingStore{}, WithEmitterLogger(logger.Discard()))

	before := testutil.ToFloat64(emitFailures)
	emitter.Emit(ctx, record.New(), LevelError, "fail", "write failed")
	emitter.Flush()

	require.Equal(t, before+1, testutil.ToFloat64(emitFailures))
}

func TestEmitSwallowsPublishFailures(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	pub := &capturingPublisher{err: errors.New("broker down")}
	emitter := NewEmitter(store, WithChangePublisher(pub), WithEmitterLogger(logger.Discard()))

	rec := record.New()
	before := testutil.ToFloat64(emitFailures)
	emitter.Emit(ctx, rec, LevelInfo, "ok", "created")
	emitter.Flush()

	// The event itself still landed.
	events, err := store.FindBySubject(ctx, rec.ExternalID, ResourceTypeUser)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, before+1, testutil.ToFloat64(emitFailures))
}
