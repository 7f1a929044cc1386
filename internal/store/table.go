package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
)

// Table is a typed view over the records table for one entity type.
//
// The JSON payload column holds the full record; the entity, id, user_id
// and clock columns are denormalized from it for indexing. A Table is the
// only writer for its entity type - reconciliation and local mutations both
// go through the owning adapter.
type Table[T record.Record[T]] struct {
	db     *DB
	entity string
}

// NewTable binds a typed table to an entity name.
func NewTable[T record.Record[T]](db *DB, entity string) *Table[T] {
	return &Table[T]{db: db, entity: entity}
}

// Entity returns the entity name this table is bound to.
func (t *Table[T]) Entity() string {
	return t.entity
}

// Get retrieves a record by id. The second return value reports whether the
// record exists.
func (t *Table[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	var payload string

	err := t.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE entity = ? AND id = ?`,
		t.entity, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get record %s/%s: %w", t.entity, id, err)
	}

	item, err := t.decode(payload)
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// Put inserts or replaces a record.
func (t *Table[T]) Put(ctx context.Context, item T) error {
	return t.exec(ctx, t.db.conn.ExecContext, item)
}

// BulkPut upserts a batch of records in a single transaction.
func (t *Table[T]) BulkPut(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := t.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if err := t.exec(ctx, tx.ExecContext, item); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk put: %w", err)
	}
	return nil
}

// Delete removes a row outright. Reconciliation never calls this for
// synchronized deletions - those are tombstoned - but the created-apply
// step uses it to drop temp-id rows after an id remap.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	_, err := t.db.conn.ExecContext(ctx,
		`DELETE FROM records WHERE entity = ? AND id = ?`,
		t.entity, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", t.entity, id, err)
	}
	return nil
}

// Tombstone marks a record deleted at ts, stamping both clocks. Returns the
// number of affected rows; 0 means the record does not exist.
func (t *Table[T]) Tombstone(ctx context.Context, id string, ts int64) (int64, error) {
	item, ok, err := t.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if err := t.Put(ctx, record.Tombstone(item, ts)); err != nil {
		return 0, err
	}
	return 1, nil
}

// ListByUser returns every record owned by userID, tombstones included,
// ordered by id for determinism.
func (t *Table[T]) ListByUser(ctx context.Context, userID string) ([]T, error) {
	return t.list(ctx,
		`SELECT payload FROM records WHERE entity = ? AND user_id = ? ORDER BY id`,
		t.entity, userID)
}

// ListLiveByUser returns the non-tombstoned records owned by userID.
func (t *Table[T]) ListLiveByUser(ctx context.Context, userID string) ([]T, error) {
	return t.list(ctx,
		`SELECT payload FROM records
		 WHERE entity = ? AND user_id = ? AND deleted_at = 0 ORDER BY id`,
		t.entity, userID)
}

// Count returns the number of rows for this entity, tombstones included.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	var n int
	err := t.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = ?`, t.entity,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", t.entity, err)
	}
	return n, nil
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (t *Table[T]) exec(ctx context.Context, exec execFunc, item T) error {
	meta := item.RecordMeta()
	if meta.ID == "" {
		return fmt.Errorf("record for %s has no id", t.entity)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record %s: %w", t.entity, meta.ID, err)
	}

	query := `
	INSERT INTO records (entity, id, user_id, updated_at, deleted_at, payload)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(entity, id) DO UPDATE SET
		user_id = excluded.user_id,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		payload = excluded.payload
	`

	_, err = exec(ctx, query,
		t.entity, meta.ID, meta.UserID, meta.UpdatedAt, meta.DeletedAt, string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert %s record %s: %w", t.entity, meta.ID, err)
	}
	return nil
}

func (t *Table[T]) list(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := t.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", t.entity, err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", t.entity, err)
		}
		item, err := t.decode(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", t.entity, err)
	}
	return items, nil
}

func (t *Table[T]) decode(payload string) (T, error) {
	var item T
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return item, fmt.Errorf("failed to unmarshal %s record: %w", t.entity, err)
	}
	return item, nil
}
