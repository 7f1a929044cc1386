// Package engine implements the generic synchronization engine shared by
// every entity collection: optimistic local mutations feeding a persisted
// queue, a push-only queue drain, and a full pull-plus-merge reconciliation
// against the server.
package engine

import (
	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
	"github.com/satchel-dev/satchel/internal/transport"
)

// Adapter binds one entity type to its local table, remote API, payload
// transformers, and live in-memory collection. One adapter is constructed
// per entity type at startup and owns both its table and its collection;
// no other component writes to either directly.
//
// Type parameters: L is the local record shape, R the wire record shape,
// and C/U/D the create/update/delete payloads sent in a bulk request.
type Adapter[L record.Record[L], R, C, U, D any] interface {
	// EntityType names the collection ("tasks", "notes", ...). It keys the
	// sync queue and the records table.
	EntityType() string

	// UserID returns the authenticated user's id, or the empty string when
	// nobody is signed in. Reconciliation is a no-op without an identity.
	UserID() string

	// NormalizeRemote converts a wire record (string timestamps) into the
	// local shape (epoch millisecond clocks). Must be pure.
	NormalizeRemote(remote R) (L, error)

	// CreatePayload builds the wire payload for a queued create. Returning
	// false drops the operation from the outgoing batch; the reconciler
	// logs the drop.
	CreatePayload(op record.Op) (C, bool)

	// UpdatePayload builds the wire payload for a queued update.
	UpdatePayload(op record.Op) (U, bool)

	// DeletePayload builds the wire payload for a queued delete.
	DeletePayload(op record.Op) (D, bool)

	// Table is the entity's local persistent table.
	Table() *store.Table[L]

	// Remote is the entity's bulk sync API.
	Remote() transport.RemoteAPI[R, C, U, D]

	// Items returns the live, UI-observable collection. The reconciler
	// treats it as the single source of truth for what the user currently
	// sees.
	Items() []L

	// SetItems replaces the live collection.
	SetItems(items []L)
}
