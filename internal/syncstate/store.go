// Package syncstate holds the process-wide synchronization state: the
// persisted per-entity mutation queues and last-sync timestamps, plus the
// runtime-only online flag and per-entity syncing set.
//
// The queue and last-sync times live in SQLite (tables sync_queue and
// sync_state) so every mutating call survives a crash or restart. The
// online flag and syncing set are transient and reset to defaults on
// startup.
//
// One Store instance is constructed at startup and shared by every entity
// adapter; rows are keyed strictly by entity type so adapters never
// interfere with each other.
package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
)

// Store is the shared sync state. Safe for concurrent use by any number of
// adapters.
type Store struct {
	db *store.DB

	online atomic.Bool

	mu      sync.Mutex
	syncing map[string]bool
}

// New creates a Store over an opened database. The schema must already be
// initialized. The process starts offline until the connectivity monitor
// reports otherwise.
func New(db *store.DB) *Store {
	return &Store{
		db:      db,
		syncing: make(map[string]bool),
	}
}

// Add appends an operation to its entity's queue.
func (s *Store) Add(ctx context.Context, op record.Op) error {
	if !op.Type.Valid() {
		return fmt.Errorf("invalid op type %q", op.Type)
	}

	var payload any
	if op.Payload != nil {
		payload = string(op.Payload)
	}

	_, err := s.db.RawDB().ExecContext(ctx, `
		INSERT INTO sync_queue (op_id, entity, op_type, record_id, payload, retries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Entity, string(op.Type), op.RecordID, payload, op.Retries, record.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue op %s for %s: %w", op.ID, op.Entity, err)
	}
	return nil
}

// Remove deletes a single operation from an entity's queue. Removing an
// unknown op id is a no-op.
func (s *Store) Remove(ctx context.Context, entity, opID string) error {
	_, err := s.db.RawDB().ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity = ? AND op_id = ?`, entity, opID)
	if err != nil {
		return fmt.Errorf("failed to remove op %s from %s queue: %w", opID, entity, err)
	}
	return nil
}

// Pending returns the queued operations for an entity in insertion order.
func (s *Store) Pending(ctx context.Context, entity string) ([]record.Op, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT op_id, op_type, record_id, payload, retries
		FROM sync_queue WHERE entity = ? ORDER BY seq`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s queue: %w", entity, err)
	}
	defer rows.Close()

	var ops []record.Op
	for rows.Next() {
		op := record.Op{Entity: entity}
		var typ string
		var payload sql.NullString
		if err := rows.Scan(&op.ID, &typ, &op.RecordID, &payload, &op.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan %s queue row: %w", entity, err)
		}
		op.Type = record.OpType(typ)
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s queue: %w", entity, err)
	}
	return ops, nil
}

// IncrementRetry bumps the retry counter on a queued operation.
func (s *Store) IncrementRetry(ctx context.Context, entity, opID string) error {
	_, err := s.db.RawDB().ExecContext(ctx,
		`UPDATE sync_queue SET retries = retries + 1 WHERE entity = ? AND op_id = ?`,
		entity, opID)
	if err != nil {
		return fmt.Errorf("failed to increment retries for op %s: %w", opID, err)
	}
	return nil
}

// Clear drops every queued operation for an entity.
func (s *Store) Clear(ctx context.Context, entity string) error {
	_, err := s.db.RawDB().ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity = ?`, entity)
	if err != nil {
		return fmt.Errorf("failed to clear %s queue: %w", entity, err)
	}
	return nil
}

// PendingCount returns the queue depth for an entity.
func (s *Store) PendingCount(ctx context.Context, entity string) (int, error) {
	var n int
	err := s.db.RawDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE entity = ?`, entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s queue: %w", entity, err)
	}
	return n, nil
}

// SetOnline records the connectivity signal. Only the connectivity monitor
// (or tests) should call this; the engine never probes on its own.
func (s *Store) SetOnline(online bool) {
	s.online.Store(online)
}

// Online reports the last connectivity signal received.
func (s *Store) Online() bool {
	return s.online.Load()
}

// SetSyncing marks an entity as having a reconciliation run in flight.
// Transient; not persisted.
func (s *Store) SetSyncing(entity string, syncing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if syncing {
		s.syncing[entity] = true
	} else {
		delete(s.syncing, entity)
	}
}

// Syncing reports whether an entity has a reconciliation run in flight.
func (s *Store) Syncing(entity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing[entity]
}

// SetLastSync persists the timestamp of the most recent reconciliation
// attempt for an entity.
func (s *Store) SetLastSync(ctx context.Context, entity string, ts int64) error {
	_, err := s.db.RawDB().ExecContext(ctx, `
		INSERT INTO sync_state (entity, last_sync_at) VALUES (?, ?)
		ON CONFLICT(entity) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		entity, ts)
	if err != nil {
		return fmt.Errorf("failed to set last sync time for %s: %w", entity, err)
	}
	return nil
}

// LastSync returns the persisted last sync timestamp for an entity, or 0 if
// the entity has never synced.
func (s *Store) LastSync(ctx context.Context, entity string) (int64, error) {
	var ts int64
	err := s.db.RawDB().QueryRowContext(ctx,
		`SELECT last_sync_at FROM sync_state WHERE entity = ?`, entity).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last sync time for %s: %w", entity, err)
	}
	return ts, nil
}
