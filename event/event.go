// Package event owns the append-only, self-expiring log of facts about
// records, and the emitter that produces those facts.
package event

import "time"

// Level classifies an event's severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
)

// ResourceType names the kind of resource an event refers to.
type ResourceType string

const (
	ResourceTypeUser ResourceType = "User"
)

// ResourceRef points an event at its subject record.
type ResourceRef struct {
	ResourceType ResourceType `bson:"resource_type" json:"resource_type"`
	ExternalID   string       `bson:"external_id" json:"external_id"`
}

// Event is an immutable, time-bounded fact about a record. No field changes
// after a successful append; only the store's retention mechanism removes it,
// asynchronously, once ExpiresAt has elapsed. An expired event may stay
// briefly visible to reads; ExpiresAt is the contract boundary, not an
// instantaneous disappearance.
type Event struct {
	EventID   string         `bson:"event_id" json:"event_id"`
	Ref       ResourceRef    `bson:"ref" json:"ref"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time      `bson:"expires_at" json:"expires_at"`
	Source    string         `bson:"source" json:"source"`
	Level     Level          `bson:"level" json:"level"`
	Data      map[string]any `bson:"data" json:"data"`
}

// Clone returns a copy with its own Data bag.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	dup := *e
	if e.Data != nil {
		dup.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			dup.Data[k] = v
		}
	}
	return &dup
}
