// Package record defines the generic shape shared by every synchronized
// entity collection: identity, ownership, and the two logical clocks used
// for last-write-wins conflict resolution.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Meta carries the sync-relevant fields embedded by every synchronized
// record. UpdatedAt and DeletedAt are independent logical clocks in epoch
// milliseconds: UpdatedAt advances on every edit, DeletedAt is zero while
// the record is live and set once when it is tombstoned. DeletedAt is NOT
// derived from UpdatedAt.
type Meta struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UpdatedAt int64  `json:"updatedAt"`
	DeletedAt int64  `json:"deletedAt,omitempty"`
}

// Deleted reports whether the record is a tombstone.
func (m Meta) Deleted() bool {
	return m.DeletedAt != 0
}

// Record is the constraint satisfied by every synchronized entity type.
//
// The self-referential type parameter gives value semantics: records are
// copied, not shared, and mutation happens by replacement:
//
//	rec = rec.WithMeta(m)
//
// Implementations embed Meta and return it unchanged apart from the
// requested replacement.
type Record[T any] interface {
	RecordMeta() Meta

	// WithMeta returns a copy of the record with its Meta replaced.
	WithMeta(m Meta) T
}

// Tombstone returns a copy of rec marked deleted at ts. Both clocks are
// stamped so the tombstone also wins the UpdatedAt comparison against
// stale live copies.
func Tombstone[T Record[T]](rec T, ts int64) T {
	m := rec.RecordMeta()
	m.DeletedAt = ts
	m.UpdatedAt = ts
	return rec.WithMeta(m)
}

// Now returns the current logical timestamp (epoch milliseconds).
func Now() int64 {
	return time.Now().UnixMilli()
}

// NewID returns a fresh globally unique identifier.
func NewID() string {
	return uuid.NewString()
}

// NewClientID returns a client-generated temporary record id. The server
// replaces it with its own id when the create is confirmed; the prefix
// makes unconfirmed rows easy to spot in the local store.
func NewClientID() string {
	return "tmp-" + uuid.NewString()
}
