package record

import (
	"encoding/json"
	"fmt"
)

// OpType identifies the kind of queued mutation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Valid reports whether t is one of the known operation types.
func (t OpType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Op is a pending local mutation waiting to be pushed to the server.
//
// Ops are created on every local write and destroyed only when a
// reconciliation run that included them completes successfully. They are
// persisted so the queue survives process restarts.
type Op struct {
	// ID is the operation's own identity, distinct from the record it
	// mutates. One record can have several queued ops.
	ID string `json:"id"`

	// Entity names the collection the operation belongs to
	// (e.g. "tasks", "notes").
	Entity string `json:"entity"`

	// Type is create, update, or delete.
	Type OpType `json:"type"`

	// RecordID is the id of the mutated record. For creates this is the
	// client-generated temporary id.
	RecordID string `json:"recordId"`

	// Payload is the partial entity payload captured at enqueue time.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Retries counts how many reconciliation attempts have included this
	// operation without confirming it.
	Retries int `json:"retries"`
}

// NewOp builds an operation for the given mutation, marshaling the payload.
func NewOp(entity string, typ OpType, recordID string, payload any) (Op, error) {
	if !typ.Valid() {
		return Op{}, fmt.Errorf("invalid op type %q", typ)
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Op{}, fmt.Errorf("failed to marshal op payload: %w", err)
		}
		raw = b
	}
	return Op{
		ID:       NewID(),
		Entity:   entity,
		Type:     typ,
		RecordID: recordID,
		Payload:  raw,
	}, nil
}
