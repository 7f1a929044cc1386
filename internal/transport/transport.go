// Package transport defines the wire contract between the sync engine and
// the remote server, plus the HTTP implementation used in production.
//
// The protocol is a bulk reconciliation exchange: one POST carries every
// queued create/update/delete for an entity type, one GET returns the
// server's full authoritative list. Requests and responses are plain JSON;
// there is no streaming and no partial-batch contract - a BulkSync call
// either applies as a whole or fails as a whole. Creates carry
// client-generated ids so a retried batch after an ambiguous failure
// upserts instead of duplicating.
package transport

import (
	"context"
)

// BulkRequest carries one entity type's queued mutations, partitioned by
// kind. Order within each slice is queue insertion order.
type BulkRequest[C, U, D any] struct {
	Creates []C `json:"creates"`
	Updates []U `json:"updates"`
	Deletes []D `json:"deletes"`
}

// Empty reports whether the request carries no operations.
func (r BulkRequest[C, U, D]) Empty() bool {
	return len(r.Creates) == 0 && len(r.Updates) == 0 && len(r.Deletes) == 0
}

// Created pairs a server-confirmed record with the client-generated id the
// create was submitted under, so the caller can remap temp-id rows.
type Created[R any] struct {
	// ClientID is the temporary id the client created the record under.
	// May be empty when the server kept the client's id.
	ClientID string `json:"clientId,omitempty"`
	Record   R      `json:"record"`
}

// BulkResult is the server's response to a BulkSync call.
type BulkResult[R any] struct {
	Created []Created[R] `json:"created"`
	Updated []R          `json:"updated"`
	Deleted []string     `json:"deleted"`
}

// RemoteAPI is the per-entity remote collaborator consumed by the
// reconciler.
type RemoteAPI[R, C, U, D any] interface {
	// BulkSync pushes a batch of mutations in a single round trip.
	BulkSync(ctx context.Context, req BulkRequest[C, U, D]) (*BulkResult[R], error)

	// FetchAll returns the server's full authoritative list for this
	// entity type and the authenticated user.
	FetchAll(ctx context.Context) ([]R, error)
}
