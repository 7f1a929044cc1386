package engine

import (
	"context"
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
)

// Local mutations are optimistic: the record is written to the local table
// and the live collection immediately, a queue entry is persisted as the
// write-ahead intent, and a push is attempted opportunistically. The queue
// entry - not the table row - is what marks the write unconfirmed; it is
// destroyed only when a reconciliation run that included it succeeds.

// Create stamps a new record with a client-generated id and the current
// clocks, stores it locally, enqueues the create, and attempts a push.
// The stored record (with its temporary id) is returned.
func (r *Reconciler[L, R, C, U, D]) Create(ctx context.Context, rec L) (L, error) {
	var zero L
	entity := r.adapter.EntityType()

	// An ownerless row would never show up in per-user listings again, so
	// refuse the write instead of stranding it.
	userID := r.adapter.UserID()
	if userID == "" {
		return zero, fmt.Errorf("cannot create %s record without a signed-in user", entity)
	}

	m := rec.RecordMeta()
	if m.ID == "" {
		m.ID = record.NewClientID()
	}
	m.UserID = userID
	m.UpdatedAt = r.now()
	m.DeletedAt = 0
	rec = rec.WithMeta(m)

	if err := r.adapter.Table().Put(ctx, rec); err != nil {
		return zero, fmt.Errorf("failed to store new %s record: %w", entity, err)
	}
	r.adapter.SetItems(append(r.adapter.Items(), rec))

	op, err := record.NewOp(entity, record.OpCreate, m.ID, rec)
	if err != nil {
		return zero, err
	}
	if err := r.state.Add(ctx, op); err != nil {
		return zero, err
	}

	r.ProcessQueue(ctx)
	return rec, nil
}

// Update bumps the record's clock, stores it locally, enqueues the update,
// and attempts a push.
func (r *Reconciler[L, R, C, U, D]) Update(ctx context.Context, rec L) (L, error) {
	var zero L
	entity := r.adapter.EntityType()

	m := rec.RecordMeta()
	if m.ID == "" {
		return zero, fmt.Errorf("cannot update %s record without id", entity)
	}
	m.UpdatedAt = r.now()
	rec = rec.WithMeta(m)

	if err := r.adapter.Table().Put(ctx, rec); err != nil {
		return zero, fmt.Errorf("failed to store updated %s record: %w", entity, err)
	}

	items := r.adapter.Items()
	found := false
	for i, item := range items {
		if item.RecordMeta().ID == m.ID {
			items[i] = rec
			found = true
			break
		}
	}
	if !found {
		items = append(items, rec)
	}
	r.adapter.SetItems(items)

	op, err := record.NewOp(entity, record.OpUpdate, m.ID, rec)
	if err != nil {
		return zero, err
	}
	if err := r.state.Add(ctx, op); err != nil {
		return zero, err
	}

	r.ProcessQueue(ctx)
	return rec, nil
}

// Delete tombstones the record locally, removes it from the live
// collection, enqueues the delete, and attempts a push.
func (r *Reconciler[L, R, C, U, D]) Delete(ctx context.Context, id string) error {
	entity := r.adapter.EntityType()

	rec, ok, err := r.adapter.Table().Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s record %s not found", entity, id)
	}

	rec = record.Tombstone(rec, r.now())
	if err := r.adapter.Table().Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to tombstone %s record %s: %w", entity, id, err)
	}

	items := r.adapter.Items()
	out := make([]L, 0, len(items))
	for _, item := range items {
		if item.RecordMeta().ID != id {
			out = append(out, item)
		}
	}
	r.adapter.SetItems(out)

	op, err := record.NewOp(entity, record.OpDelete, id, rec)
	if err != nil {
		return err
	}
	if err := r.state.Add(ctx, op); err != nil {
		return err
	}

	r.ProcessQueue(ctx)
	return nil
}
