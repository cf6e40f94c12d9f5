package cache

import (
	"context"
	"time"
)

// Entry is a persisted, immutable record of one computed result. Once a
// store publishes an entry it is never mutated in place; readers either see
// a complete entry or none.
type Entry struct {
	// Result holds the serialized return value of the underlying callable.
	Result []byte

	// State holds the serialized post-call state snapshot for stateful
	// targets, nil otherwise. Stateful cache hits re-apply it to the
	// instance so a restored call leaves the object exactly as the
	// original execution did.
	State []byte

	// Meta carries the diagnostic sidecar persisted next to the result.
	Meta Metadata
}

// Stateful reports whether the entry carries a state snapshot.
func (e Entry) Stateful() bool {
	return len(e.State) > 0
}

// Metadata describes an entry for diagnostics. It never participates in
// lookups.
type Metadata struct {
	Owner       string    `json:"owner"`
	Method      string    `json:"method"`
	Fingerprint string    `json:"fingerprint"`
	Stateful    bool      `json:"stateful"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence contract the interception wrapper writes through.
//
// Get returns ok=false for a missing fingerprint; it never treats absence as
// an error. Implementations must treat corrupted or partially-written
// entries as absent so a later PutIfAbsent can heal them.
//
// PutIfAbsent is the only result-publishing primitive: it atomically
// publishes a complete entry, or reports inserted=false when another writer
// already won the fingerprint. A false return is not an error; concurrent
// identical misses race harmlessly here.
//
// Delete removes an entry so a later PutIfAbsent can take the fingerprint
// again. It exists for healing: an entry that decodes at the store level but
// not against the caller's types would otherwise pin its fingerprint to a
// permanent miss. Deleting a missing entry is a no-op.
type Store interface {
	Get(ctx context.Context, ns Namespace, fp Fingerprint) (Entry, bool, error)
	PutIfAbsent(ctx context.Context, ns Namespace, fp Fingerprint, entry Entry) (bool, error)
	Delete(ctx context.Context, ns Namespace, fp Fingerprint) error
}
