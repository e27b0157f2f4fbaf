// Package record owns the versioned identity document and its stores.
package record

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile is one named slice of an identity: two open bags whose shape
// belongs to the profile's owner, not to this core.
type Profile struct {
	Attributes map[string]any `bson:"attributes,omitempty" json:"attributes,omitempty"`
	Data       map[string]any `bson:"data,omitempty" json:"data,omitempty"`
}

// Record is a versioned identity document.
//
// Version is an opaque concurrency token: it changes on every successful
// persisted mutation and is only ever compared for equality, never ordered.
// ExternalID is the externally visible identifier and is unique across all
// records; RecordID is the stable internal one.
type Record struct {
	RecordID     primitive.ObjectID `bson:"_id" json:"record_id"`
	ExternalID   string             `bson:"external_id" json:"external_id"`
	Version      primitive.ObjectID `bson:"version" json:"version"`
	Created      time.Time          `bson:"created" json:"created"`
	LastModified time.Time          `bson:"last_modified" json:"last_modified"`
	Profiles     map[string]Profile `bson:"profiles" json:"profiles"`
}

// New builds an unpersisted Record with fresh identifiers and token.
func New() *Record {
	now := Now()
	return &Record{
		RecordID:     primitive.NewObjectID(),
		ExternalID:   uuid.NewString(),
		Version:      primitive.NewObjectID(),
		Created:      now,
		LastModified: now,
		Profiles:     map[string]Profile{},
	}
}

// Now returns the current UTC time truncated to milliseconds, the precision
// the document codec round-trips.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Clone returns a deep copy, so a Record handed back to a caller stays that
// caller's private copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Profiles != nil {
		dup.Profiles = make(map[string]Profile, len(r.Profiles))
		for name, p := range r.Profiles {
			dup.Profiles[name] = Profile{
				Attributes: cloneBag(p.Attributes),
				Data:       cloneBag(p.Data),
			}
		}
	}
	return &dup
}

func cloneBag(bag map[string]any) map[string]any {
	if bag == nil {
		return nil
	}
	dup := make(map[string]any, len(bag))
	for k, v := range bag {
		dup[k] = v
	}
	return dup
}
