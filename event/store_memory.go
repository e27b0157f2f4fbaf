package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"persona/pkg/platform/sentinel"
)

// InMemoryStore implements Store for tests and single-process use. The
// engine's TTL index is emulated by a sweep that deletes expired events;
// reads do not filter on expiry, preserving the best-effort visibility
// contract of the production store.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Event
	clock Clock
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemory constructs an empty in-memory event store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		byID:  make(map[string]*Event),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, ev *Event) error {
	if ev == nil || ev.EventID == "" {
		return fmt.Errorf("event id must be set: %w", sentinel.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byID[ev.EventID]; taken {
		return fmt.Errorf("event %s: %w", ev.EventID, sentinel.ErrDuplicateKey)
	}
	s.byID[ev.EventID] = ev.Clone()
	return nil
}

func (s *InMemoryStore) FindByEventID(_ context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.byID[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	}
	return ev.Clone(), nil
}

func (s *InMemoryStore) FindBySubject(_ context.Context, externalID string, resourceType ResourceType) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*Event
	for _, ev := range s.byID {
		if ev.Ref.ExternalID == externalID && ev.Ref.ResourceType == resourceType {
			events = append(events, ev.Clone())
		}
	}
	return events, nil
}

// Sweep removes every event whose expiry has elapsed and reports how many
// were dropped.
func (s *InMemoryStore) Sweep() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, ev := range s.byID {
		if !ev.ExpiresAt.After(now) {
			delete(s.byID, id)
			dropped++
		}
	}
	return dropped
}

// Run sweeps on the given interval until ctx is done, mirroring the
// asynchronous retention of the production store.
func (s *InMemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}
