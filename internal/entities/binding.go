// Package entities defines the synchronized collections - tasks, notes,
// stashed browser sessions, blocked-site lists - and binds each one to the
// generic sync engine.
//
// Every entity has a local shape (epoch millisecond clocks, stored in
// SQLite and shown in the UI) and a wire shape (RFC 3339 string
// timestamps, exchanged with the server). The Binding type carries the
// conversions plus the table, remote client, and live collection, and
// satisfies engine.Adapter for all four entity types without per-entity
// reconciler code.
package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
	"github.com/satchel-dev/satchel/internal/transport"
)

// CreateOp is the wire payload for a queued create: the record plus the
// client-generated id the server should remap.
type CreateOp[W any] struct {
	ClientID string `json:"clientId"`
	Record   W      `json:"record"`
}

// DeleteOp is the wire payload for a queued delete.
type DeleteOp struct {
	ID        string `json:"id"`
	DeletedAt string `json:"deletedAt"`
}

// Remote is the concrete remote API shape shared by every entity type.
type Remote[W any] = transport.RemoteAPI[W, CreateOp[W], W, DeleteOp]

// Binding implements engine.Adapter for one entity type.
type Binding[L record.Record[L], W any] struct {
	entity   string
	userID   func() string
	table    *store.Table[L]
	remote   Remote[W]
	items    *Collection[L]
	fromWire func(W) (L, error)
	toWire   func(L) W
	validate func(L) error
}

// NewBinding constructs an adapter for one entity type. Bindings are
// created once at startup and live for the process lifetime.
func NewBinding[L record.Record[L], W any](
	entity string,
	userID func() string,
	table *store.Table[L],
	remote Remote[W],
	fromWire func(W) (L, error),
	toWire func(L) W,
	validate func(L) error,
) *Binding[L, W] {
	return &Binding[L, W]{
		entity:   entity,
		userID:   userID,
		table:    table,
		remote:   remote,
		items:    NewCollection[L](),
		fromWire: fromWire,
		toWire:   toWire,
		validate: validate,
	}
}

func (b *Binding[L, W]) EntityType() string { return b.entity }

func (b *Binding[L, W]) UserID() string { return b.userID() }

func (b *Binding[L, W]) NormalizeRemote(remote W) (L, error) {
	return b.fromWire(remote)
}

// CreatePayload validates the queued record and wraps it with its client
// id. Malformed operations (unreadable payload, failed validation) are
// dropped from the outgoing batch.
func (b *Binding[L, W]) CreatePayload(op record.Op) (CreateOp[W], bool) {
	rec, ok := b.decode(op)
	if !ok {
		return CreateOp[W]{}, false
	}
	if b.validate != nil {
		if err := b.validate(rec); err != nil {
			return CreateOp[W]{}, false
		}
	}
	return CreateOp[W]{ClientID: op.RecordID, Record: b.toWire(rec)}, true
}

func (b *Binding[L, W]) UpdatePayload(op record.Op) (W, bool) {
	var zero W
	rec, ok := b.decode(op)
	if !ok {
		return zero, false
	}
	if rec.RecordMeta().ID == "" {
		return zero, false
	}
	return b.toWire(rec), true
}

func (b *Binding[L, W]) DeletePayload(op record.Op) (DeleteOp, bool) {
	if op.RecordID == "" {
		return DeleteOp{}, false
	}
	deletedAt := record.Now()
	if rec, ok := b.decode(op); ok {
		if d := rec.RecordMeta().DeletedAt; d != 0 {
			deletedAt = d
		}
	}
	return DeleteOp{ID: op.RecordID, DeletedAt: millisToWire(deletedAt)}, true
}

func (b *Binding[L, W]) Table() *store.Table[L] { return b.table }

func (b *Binding[L, W]) Remote() Remote[W] { return b.remote }

func (b *Binding[L, W]) Items() []L { return b.items.Items() }

func (b *Binding[L, W]) SetItems(items []L) { b.items.Set(items) }

// Live returns the live collection handle for UI readers.
func (b *Binding[L, W]) Live() *Collection[L] { return b.items }

func (b *Binding[L, W]) decode(op record.Op) (L, bool) {
	var rec L
	if len(op.Payload) == 0 {
		return rec, false
	}
	if err := json.Unmarshal(op.Payload, &rec); err != nil {
		return rec, false
	}
	return rec, true
}

// WireMeta is the sync envelope shared by every wire record.
type WireMeta struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	UpdatedAt string `json:"updatedAt"`
	DeletedAt string `json:"deletedAt,omitempty"`
}

// ToMeta parses the wire envelope into local clock form.
func (w WireMeta) ToMeta() (record.Meta, error) {
	if w.ID == "" {
		return record.Meta{}, fmt.Errorf("wire record has no id")
	}
	updated, err := wireToMillis(w.UpdatedAt)
	if err != nil {
		return record.Meta{}, fmt.Errorf("bad updatedAt for %s: %w", w.ID, err)
	}
	var deleted int64
	if w.DeletedAt != "" {
		deleted, err = wireToMillis(w.DeletedAt)
		if err != nil {
			return record.Meta{}, fmt.Errorf("bad deletedAt for %s: %w", w.ID, err)
		}
	}
	return record.Meta{ID: w.ID, UserID: w.UserID, UpdatedAt: updated, DeletedAt: deleted}, nil
}

// MetaToWire converts local clocks to the wire envelope.
func MetaToWire(m record.Meta) WireMeta {
	w := WireMeta{ID: m.ID, UserID: m.UserID, UpdatedAt: millisToWire(m.UpdatedAt)}
	if m.DeletedAt != 0 {
		w.DeletedAt = millisToWire(m.DeletedAt)
	}
	return w
}

func wireToMillis(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func millisToWire(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
