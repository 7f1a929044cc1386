package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satchel-dev/satchel/internal/merge"
	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/syncstate"
	"github.com/satchel-dev/satchel/internal/transport"
)

// Reconciler drives synchronization for one entity adapter.
//
// It exposes two operations: ProcessQueue pushes locally-queued mutations
// to the server in one bulk round trip; SyncWithServer additionally pulls
// the server's authoritative state and merges it with last-write-wins
// semantics. Both are trigger-driven - there is no internal retry or
// backoff - and both swallow network failures after logging them: the
// queue stays intact and the next trigger tries again.
//
// A compare-and-swap guard makes each reconciler single-flight; concurrent
// triggers (a user edit racing a timer tick) collapse into one run.
type Reconciler[L record.Record[L], R, C, U, D any] struct {
	adapter Adapter[L, R, C, U, D]
	state   *syncstate.Store
	logger  *log.Logger

	busy atomic.Bool

	// now is swappable for tests.
	now func() int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler wires an adapter to the shared sync state.
//
// If logger is nil, a default logger writing to stderr is used.
func NewReconciler[L record.Record[L], R, C, U, D any](
	adapter Adapter[L, R, C, U, D],
	state *syncstate.Store,
	logger *log.Logger,
) *Reconciler[L, R, C, U, D] {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler[L, R, C, U, D]{
		adapter: adapter,
		state:   state,
		logger:  logger,
		now:     record.Now,
		stopCh:  make(chan struct{}),
	}
}

// ProcessQueue flushes locally-queued mutations to the server.
//
// It is a no-op (not an error) when another run is in flight, nobody is
// signed in, the process is offline, or the queue is empty. Operations
// enqueued while the bulk call is in flight are deliberately left for the
// next run. On failure the queue is left untouched; in all cases that get
// past the guards, the syncing flag is cleared and the last-sync time is
// recorded, success or not.
func (r *Reconciler[L, R, C, U, D]) ProcessQueue(ctx context.Context) {
	entity := r.adapter.EntityType()

	if r.adapter.UserID() == "" || !r.state.Online() {
		return
	}
	if !r.busy.CompareAndSwap(false, true) {
		return
	}
	defer r.busy.Store(false)

	snapshot, err := r.state.Pending(ctx, entity)
	if err != nil {
		r.logger.Printf("%s: failed to read queue: %v", entity, err)
		return
	}
	if len(snapshot) == 0 {
		return
	}

	r.state.SetSyncing(entity, true)
	defer r.finish(ctx, entity)

	r.drainQueue(ctx, snapshot)
}

// SyncWithServer reaches eventual consistency with the authoritative
// server state: it drains the queue first, then pulls the server's full
// list, tombstones local rows deleted on other devices, and merges the
// rest by last-write-wins.
func (r *Reconciler[L, R, C, U, D]) SyncWithServer(ctx context.Context) {
	entity := r.adapter.EntityType()
	userID := r.adapter.UserID()

	if userID == "" || !r.state.Online() {
		return
	}
	if !r.busy.CompareAndSwap(false, true) {
		return
	}
	defer r.busy.Store(false)

	r.state.SetSyncing(entity, true)
	defer r.finish(ctx, entity)

	// Push before pulling so in-flight local edits carry their own clocks
	// into the merge instead of being overwritten by a stale pull.
	if snapshot, err := r.state.Pending(ctx, entity); err != nil {
		r.logger.Printf("%s: failed to read queue: %v", entity, err)
	} else if len(snapshot) > 0 {
		r.drainQueue(ctx, snapshot)
	}

	remote, err := r.adapter.Remote().FetchAll(ctx)
	if err != nil {
		r.logger.Printf("%s: fetch all failed: %v", entity, err)
		return
	}

	normalized := make([]L, 0, len(remote))
	remoteIDs := make(map[string]bool, len(remote))
	for _, item := range remote {
		local, err := r.adapter.NormalizeRemote(item)
		if err != nil {
			r.logger.Printf("%s: dropping unparseable remote record: %v", entity, err)
			continue
		}
		normalized = append(normalized, local)
		remoteIDs[local.RecordMeta().ID] = true
	}

	local, err := r.adapter.Table().ListByUser(ctx, userID)
	if err != nil {
		r.logger.Printf("%s: failed to load local records: %v", entity, err)
		return
	}

	// A live local row whose id the authoritative set no longer contains
	// was deleted server-side (e.g. from another device). Tombstone it so
	// the merge below cannot resurrect it.
	ts := r.now()
	for i, item := range local {
		m := item.RecordMeta()
		if m.Deleted() || remoteIDs[m.ID] {
			continue
		}
		local[i] = record.Tombstone(item, ts)
	}

	merged := merge.MergeByID(local, normalized)

	if err := r.adapter.Table().BulkPut(ctx, merged); err != nil {
		r.logger.Printf("%s: failed to persist merged records: %v", entity, err)
		return
	}
	r.adapter.SetItems(merge.Live(merged))

	r.logger.Printf("%s: sync complete: %d remote, %d merged", entity, len(normalized), len(merged))
}

// finish clears the syncing flag and records the last sync time. The time
// is recorded even after a failed run; only the queue contents distinguish
// success from failure.
func (r *Reconciler[L, R, C, U, D]) finish(ctx context.Context, entity string) {
	r.state.SetSyncing(entity, false)
	if err := r.state.SetLastSync(ctx, entity, r.now()); err != nil {
		r.logger.Printf("%s: failed to record last sync time: %v", entity, err)
	}
}

// drainQueue pushes one snapshot of the queue in a single bulk call and
// applies the results. The caller holds the single-flight guard.
func (r *Reconciler[L, R, C, U, D]) drainQueue(ctx context.Context, snapshot []record.Op) {
	entity := r.adapter.EntityType()

	var req transport.BulkRequest[C, U, D]
	for _, op := range snapshot {
		switch op.Type {
		case record.OpCreate:
			if p, ok := r.adapter.CreatePayload(op); ok {
				req.Creates = append(req.Creates, p)
			} else {
				r.logger.Printf("%s: dropping malformed create op %s (record %s)", entity, op.ID, op.RecordID)
			}
		case record.OpUpdate:
			if p, ok := r.adapter.UpdatePayload(op); ok {
				req.Updates = append(req.Updates, p)
			} else {
				r.logger.Printf("%s: dropping malformed update op %s (record %s)", entity, op.ID, op.RecordID)
			}
		case record.OpDelete:
			if p, ok := r.adapter.DeletePayload(op); ok {
				req.Deletes = append(req.Deletes, p)
			} else {
				r.logger.Printf("%s: dropping malformed delete op %s (record %s)", entity, op.ID, op.RecordID)
			}
		default:
			r.logger.Printf("%s: dropping op %s with unknown type %q", entity, op.ID, op.Type)
		}
	}

	if !req.Empty() {
		result, err := r.adapter.Remote().BulkSync(ctx, req)
		if err != nil {
			r.logger.Printf("%s: bulk sync failed, queue left intact: %v", entity, err)
			for _, op := range snapshot {
				if rerr := r.state.IncrementRetry(ctx, entity, op.ID); rerr != nil {
					r.logger.Printf("%s: failed to bump retries for op %s: %v", entity, op.ID, rerr)
				}
			}
			return
		}

		r.applyCreated(ctx, result.Created)
		r.applyUpdated(ctx, result.Updated)
		r.applyDeleted(ctx, result.Deleted)

		r.logger.Printf("%s: pushed %d creates, %d updates, %d deletes",
			entity, len(req.Creates), len(req.Updates), len(req.Deletes))
	}

	// Remove only the snapshotted operations. Anything enqueued during the
	// network call stays for the next run.
	for _, op := range snapshot {
		if err := r.state.Remove(ctx, entity, op.ID); err != nil {
			r.logger.Printf("%s: failed to dequeue op %s: %v", entity, op.ID, err)
		}
	}
}

// applyCreated confirms optimistic creates: the temp-id row is dropped, the
// server row inserted, and the live collection entry swapped in place so
// the temp id and the server id are never both present. Applying the same
// result twice overwrites instead of duplicating.
func (r *Reconciler[L, R, C, U, D]) applyCreated(ctx context.Context, created []transport.Created[R]) {
	entity := r.adapter.EntityType()

	for _, cr := range created {
		local, err := r.adapter.NormalizeRemote(cr.Record)
		if err != nil {
			r.logger.Printf("%s: dropping unparseable created record: %v", entity, err)
			continue
		}
		serverID := local.RecordMeta().ID

		if cr.ClientID != "" && cr.ClientID != serverID {
			if err := r.adapter.Table().Delete(ctx, cr.ClientID); err != nil {
				r.logger.Printf("%s: failed to drop temp row %s: %v", entity, cr.ClientID, err)
			}
		}
		if err := r.adapter.Table().Put(ctx, local); err != nil {
			r.logger.Printf("%s: failed to store created record %s: %v", entity, serverID, err)
			continue
		}

		items := r.adapter.Items()
		out := make([]L, 0, len(items)+1)
		replaced := false
		for _, item := range items {
			id := item.RecordMeta().ID
			if id == cr.ClientID || id == serverID {
				if !replaced {
					out = append(out, local)
					replaced = true
				}
				continue
			}
			out = append(out, item)
		}
		if !replaced {
			out = append(out, local)
		}
		r.adapter.SetItems(out)
	}
}

// applyUpdated persists the server's updated rows and swaps them into the
// live collection by id. The normalized record replaces the cache entry
// outright so the collection always matches what was just persisted; a
// server field at its zero value (done unchecked, notes cleared) lands in
// the cache exactly as it lands in the table.
func (r *Reconciler[L, R, C, U, D]) applyUpdated(ctx context.Context, updated []R) {
	entity := r.adapter.EntityType()
	if len(updated) == 0 {
		return
	}

	normalized := make([]L, 0, len(updated))
	for _, item := range updated {
		local, err := r.adapter.NormalizeRemote(item)
		if err != nil {
			r.logger.Printf("%s: dropping unparseable updated record: %v", entity, err)
			continue
		}
		normalized = append(normalized, local)
	}

	if err := r.adapter.Table().BulkPut(ctx, normalized); err != nil {
		r.logger.Printf("%s: failed to persist updated records: %v", entity, err)
	}

	items := r.adapter.Items()
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.RecordMeta().ID] = i
	}
	for _, incoming := range normalized {
		id := incoming.RecordMeta().ID
		if i, ok := index[id]; ok {
			items[i] = incoming
		} else {
			index[id] = len(items)
			items = append(items, incoming)
		}
	}
	r.adapter.SetItems(items)
}

// applyDeleted tombstones confirmed deletions locally and removes them from
// the live collection. Rows are never hard-deleted so the deletion can
// still merge against other replicas.
func (r *Reconciler[L, R, C, U, D]) applyDeleted(ctx context.Context, deleted []string) {
	entity := r.adapter.EntityType()
	if len(deleted) == 0 {
		return
	}

	ts := r.now()
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		if _, err := r.adapter.Table().Tombstone(ctx, id, ts); err != nil {
			r.logger.Printf("%s: failed to tombstone %s: %v", entity, id, err)
		}
		gone[id] = true
	}

	items := r.adapter.Items()
	out := make([]L, 0, len(items))
	for _, item := range items {
		if !gone[item.RecordMeta().ID] {
			out = append(out, item)
		}
	}
	r.adapter.SetItems(out)
}

// StartAutoSync begins periodically draining the queue (not the full pull)
// until Close is called. Overlap with other triggers is prevented by the
// single-flight guard.
func (r *Reconciler[L, R, C, U, D]) StartAutoSync(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.ProcessQueue(context.Background())
			}
		}
	}()
}

// Close stops the autosync timer and waits for it to exit. An in-flight
// bulk call is not cancelled; if it fails, the queue simply waits for the
// next trigger.
func (r *Reconciler[L, R, C, U, D]) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
