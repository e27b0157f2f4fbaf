package record

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ModifiedOp selects the comparison used by FindByLastModified.
type ModifiedOp string

const (
	// ModifiedAfter matches records modified strictly after the timestamp.
	ModifiedAfter ModifiedOp = "gt"
	// ModifiedAtOrAfter matches records modified at or after the timestamp.
	ModifiedAtOrAfter ModifiedOp = "ge"
)

// Store is the record persistence contract. All implementations share the
// sentinel error vocabulary from pkg/platform/sentinel.
//
// Save runs the optimistic-concurrency protocol: the stored document is
// replaced only if it still carries the version the caller last observed.
// On success the caller's record gets the fresh Version and LastModified
// written back in place. A stale version fails with sentinel.ErrConflict and
// leaves the caller's record untouched; re-read and retry. A record id that
// does not exist yet is inserted regardless of the supplied version, subject
// to the external-id uniqueness constraint (sentinel.ErrDuplicateKey).
// The store never retries on the caller's behalf.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByRecordID(ctx context.Context, recordID primitive.ObjectID) (*Record, error)
	FindByExternalID(ctx context.Context, externalID string) (*Record, error)
	// FindByScopedAttribute looks a record up by one attribute of one named
	// profile. More than one match is a data-integrity violation and fails
	// with sentinel.ErrAmbiguous.
	FindByScopedAttribute(ctx context.Context, scope, attr string, value any) (*Record, error)
	// FindByLastModified returns every record whose LastModified satisfies
	// the comparison. Operators outside ModifiedAfter/ModifiedAtOrAfter fail
	// with sentinel.ErrInvalidArgument.
	FindByLastModified(ctx context.Context, op ModifiedOp, ts time.Time) ([]*Record, error)
	Exists(ctx context.Context, externalID string) (bool, error)
}
