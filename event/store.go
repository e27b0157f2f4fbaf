package event

import (
	"context"
	"time"
)

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// Store is the event persistence contract. Events are append-only: there is
// no update or delete path, only the store's own time-based retention.
//
// Append fails with sentinel.ErrDuplicateKey when the event id collides;
// identifiers are random, so a collision is an integrity fault, not a
// condition to retry. FindByEventID returns sentinel.ErrNotFound (wrapped)
// on absence; FindBySubject returns an empty slice with no guaranteed order.
type Store interface {
	Append(ctx context.Context, ev *Event) error
	FindByEventID(ctx context.Context, eventID string) (*Event, error)
	FindBySubject(ctx context.Context, externalID string, resourceType ResourceType) ([]*Event, error)
}
