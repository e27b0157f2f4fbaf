package record

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"persona/pkg/platform/sentinel"
)

// InMemoryStore implements Store for tests and single-process use. It honors
// the same contract as MongoStore, including the conditional-replace
// semantics of Save, with a process-local mutex standing in for the engine's
// atomic write.
type InMemoryStore struct {
	mu         sync.RWMutex
	byID       map[primitive.ObjectID]*Record
	byExternal map[string]primitive.ObjectID
	clock      Clock
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

// NewInMemory constructs an empty in-memory record store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		byID:       make(map[primitive.ObjectID]*Record),
		byExternal: make(map[string]primitive.ObjectID),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record: %w", sentinel.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.byID[rec.RecordID]
	if exists {
		if stored.Version != rec.Version {
			return fmt.Errorf("record %s at version %s is stale: %w",
				rec.RecordID.Hex(), rec.Version.Hex(), sentinel.ErrConflict)
		}
		if rec.ExternalID != stored.ExternalID {
			if owner, taken := s.byExternal[rec.ExternalID]; taken && owner != rec.RecordID {
				return fmt.Errorf("external_id %s: %w", rec.ExternalID, sentinel.ErrDuplicateKey)
			}
			delete(s.byExternal, stored.ExternalID)
		}
	} else {
		if _, taken := s.byExternal[rec.ExternalID]; taken {
			return fmt.Errorf("external_id %s: %w", rec.ExternalID, sentinel.ErrDuplicateKey)
		}
	}

	candidate := rec.Clone()
	candidate.Version = primitive.NewObjectID()

	// Updates must grow last_modified strictly, even inside one millisecond.
	now := s.clock().UTC().Truncate(time.Millisecond)
	if exists && !now.After(stored.LastModified) {
		now = stored.LastModified.Add(time.Millisecond)
	}
	candidate.LastModified = now

	s.byID[candidate.RecordID] = candidate
	s.byExternal[candidate.ExternalID] = candidate.RecordID

	rec.Version = candidate.Version
	rec.LastModified = candidate.LastModified
	return nil
}

func (s *InMemoryStore) FindByRecordID(_ context.Context, recordID primitive.ObjectID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID.Hex(), sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recordID, ok := s.byExternal[externalID]
	if !ok {
		return nil, fmt.Errorf("record with external_id %s: %w", externalID, sentinel.ErrNotFound)
	}
	return s.byID[recordID].Clone(), nil
}

func (s *InMemoryStore) FindByScopedAttribute(_ context.Context, scope, attr string, value any) (*Record, error) {
	if scope == "" || attr == "" {
		return nil, fmt.Errorf("scope and attr must be set: %w", sentinel.ErrInvalidArgument)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Record
	for _, rec := range s.byID {
		profile, ok := rec.Profiles[scope]
		if !ok {
			continue
		}
		v, ok := profile.Attributes[attr]
		if !ok || !reflect.DeepEqual(v, value) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("profiles.%s.attributes.%s=%v: %w", scope, attr, value, sentinel.ErrAmbiguous)
		}
		found = rec
	}
	if found == nil {
		return nil, fmt.Errorf("profiles.%s.attributes.%s=%v: %w", scope, attr, value, sentinel.ErrNotFound)
	}
	return found.Clone(), nil
}

func (s *InMemoryStore) FindByLastModified(_ context.Context, op ModifiedOp, ts time.Time) ([]*Record, error) {
	if _, err := modifiedOperator(op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*Record
	for _, rec := range s.byID {
		switch op {
		case ModifiedAfter:
			if rec.LastModified.After(ts) {
				recs = append(recs, rec.Clone())
			}
		case ModifiedAtOrAfter:
			if !rec.LastModified.Before(ts) {
				recs = append(recs, rec.Clone())
			}
		}
	}
	return recs, nil
}

func (s *InMemoryStore) Exists(_ context.Context, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byExternal[externalID]
	return ok, nil
}
