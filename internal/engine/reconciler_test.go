package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"

	"github.com/satchel-dev/satchel/internal/entities"
	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
	"github.com/satchel-dev/satchel/internal/syncstate"
	"github.com/satchel-dev/satchel/internal/transport"
)

type taskReconciler = Reconciler[entities.Task, entities.TaskWire, entities.CreateOp[entities.TaskWire], entities.TaskWire, entities.DeleteOp]

type taskRequest = transport.BulkRequest[entities.CreateOp[entities.TaskWire], entities.TaskWire, entities.DeleteOp]

// fakeRemote echoes the server contract: creates come back with a
// server-assigned id paired with the submitted client id, updates and
// deletes come back confirmed as-is.
type fakeRemote struct {
	mu       sync.Mutex
	requests []taskRequest
	fetch    []entities.TaskWire
	syncErr  error
	fetchErr error
	seq      int

	// script overrides the echo behavior when set.
	script func(taskRequest) *transport.BulkResult[entities.TaskWire]
}

func (f *fakeRemote) BulkSync(ctx context.Context, req taskRequest) (*transport.BulkResult[entities.TaskWire], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	if f.script != nil {
		return f.script(req), nil
	}

	res := &transport.BulkResult[entities.TaskWire]{}
	for _, c := range req.Creates {
		f.seq++
		rec := c.Record
		rec.ID = fmt.Sprintf("srv-%d", f.seq)
		res.Created = append(res.Created, transport.Created[entities.TaskWire]{
			ClientID: c.ClientID,
			Record:   rec,
		})
	}
	res.Updated = append(res.Updated, req.Updates...)
	for _, d := range req.Deletes {
		res.Deleted = append(res.Deleted, d.ID)
	}
	return res, nil
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]entities.TaskWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetch, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRemote) lastRequest(t *testing.T) taskRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no bulk request was sent")
	}
	return f.requests[len(f.requests)-1]
}

type harness struct {
	r      *taskReconciler
	b      *entities.Binding[entities.Task, entities.TaskWire]
	state  *syncstate.Store
	remote *fakeRemote
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	remote := &fakeRemote{}
	binding := entities.NewTaskBinding(db, remote, func() string { return userID })
	state := syncstate.New(db)

	r := NewReconciler(binding, state, log.New(io.Discard, "", 0))
	r.now = func() int64 { return 1000 }
	t.Cleanup(r.Close)

	return &harness{r: r, b: binding, state: state, remote: remote}
}

// createOffline queues a create without touching the network.
func (h *harness) createOffline(t *testing.T, title string) entities.Task {
	t.Helper()
	task, err := h.r.Create(context.Background(), entities.Task{Title: title})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return task
}

func TestProcessQueueSkipsWhenOffline(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	h.createOffline(t, "buy milk")
	h.r.ProcessQueue(ctx)

	if got := h.remote.calls(); got != 0 {
		t.Errorf("remote called %d times while offline, want 0", got)
	}
	n, err := h.state.PendingCount(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("queue depth = %d, want 1", n)
	}
}

func TestProcessQueueSkipsWithoutUser(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	h.state.SetOnline(true)
	if err := h.state.Add(ctx, mustOp(t, "tasks", "r1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	h.r.ProcessQueue(ctx)

	if got := h.remote.calls(); got != 0 {
		t.Errorf("remote called %d times with no user, want 0", got)
	}
}

func TestProcessQueueEmptyLeavesLastSyncAlone(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	if got := h.remote.calls(); got != 0 {
		t.Errorf("remote called %d times on empty queue, want 0", got)
	}
	ts, err := h.state.LastSync(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if ts != 0 {
		t.Errorf("LastSync = %d after an empty run, want 0", ts)
	}
}

func TestProcessQueuePreservesOrder(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	t1 := h.createOffline(t, "first")
	t2 := h.createOffline(t, "second")
	t1.Done = true
	if _, err := h.r.Update(ctx, t1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := h.r.Delete(ctx, t2.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	req := h.remote.lastRequest(t)
	if len(req.Creates) != 2 || len(req.Updates) != 1 || len(req.Deletes) != 1 {
		t.Fatalf("request shape = %d/%d/%d creates/updates/deletes, want 2/1/1",
			len(req.Creates), len(req.Updates), len(req.Deletes))
	}
	if req.Creates[0].ClientID != t1.ID || req.Creates[1].ClientID != t2.ID {
		t.Errorf("creates out of order: %s, %s", req.Creates[0].ClientID, req.Creates[1].ClientID)
	}
	if req.Updates[0].ID != t1.ID {
		t.Errorf("update carries id %s, want %s", req.Updates[0].ID, t1.ID)
	}
	if req.Deletes[0].ID != t2.ID {
		t.Errorf("delete carries id %s, want %s", req.Deletes[0].ID, t2.ID)
	}

	n, err := h.state.PendingCount(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("queue depth after successful drain = %d, want 0", n)
	}
}

func TestProcessQueueKeepsUpdateOrderPerRecord(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	task := h.createOffline(t, "v1")
	task.Title = "v2"
	if _, err := h.r.Update(ctx, task); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	task.Title = "v3"
	if _, err := h.r.Update(ctx, task); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	req := h.remote.lastRequest(t)
	if len(req.Updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(req.Updates))
	}
	if req.Updates[0].Title != "v2" || req.Updates[1].Title != "v3" {
		t.Errorf("updates out of insertion order: %q then %q",
			req.Updates[0].Title, req.Updates[1].Title)
	}
}

// A create followed by an update of the same unconfirmed record: the server
// coalesces the pair and answers with one created record carrying the final
// state. Locally the temp id must vanish and exactly one confirmed row
// remain.
func TestProcessQueueCreateThenUpdateCoalesced(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	task := h.createOffline(t, "A")
	tmpID := task.ID
	task.Title = "B"
	if _, err := h.r.Update(ctx, task); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	h.remote.script = func(req taskRequest) *transport.BulkResult[entities.TaskWire] {
		wire := req.Updates[len(req.Updates)-1]
		wire.ID = "srv-1"
		return &transport.BulkResult[entities.TaskWire]{
			Created: []transport.Created[entities.TaskWire]{{ClientID: tmpID, Record: wire}},
		}
	}

	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	n, err := h.state.PendingCount(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("queue depth = %d, want 0", n)
	}

	if _, ok, _ := h.b.Table().Get(ctx, tmpID); ok {
		t.Errorf("temp row %s still present", tmpID)
	}
	srv, ok, err := h.b.Table().Get(ctx, "srv-1")
	if err != nil || !ok {
		t.Fatalf("server row missing (ok=%v err=%v)", ok, err)
	}
	if srv.Title != "B" {
		t.Errorf("server row title = %q, want B", srv.Title)
	}
	if rows, err := h.b.Table().Count(ctx); err != nil || rows != 1 {
		t.Errorf("table rows = %d (err=%v), want 1", rows, err)
	}

	items := h.b.Items()
	if len(items) != 1 || items[0].ID != "srv-1" || items[0].Title != "B" {
		t.Errorf("live collection = %+v", items)
	}

	ts, err := h.state.LastSync(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if ts != 1000 {
		t.Errorf("LastSync = %d, want 1000", ts)
	}
}

func TestProcessQueueFailureKeepsQueueIntact(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	h.createOffline(t, "one")
	h.createOffline(t, "two")

	before, err := h.state.Pending(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}

	h.remote.syncErr = errors.New("server unreachable")
	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	after, err := h.state.Pending(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("queue depth changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Errorf("op %d changed identity: %s -> %s", i, before[i].ID, after[i].ID)
		}
		if after[i].Retries != before[i].Retries+1 {
			t.Errorf("op %s retries = %d, want %d", after[i].ID, after[i].Retries, before[i].Retries+1)
		}
	}

	// The attempt still counts as a sync for recency reporting.
	ts, err := h.state.LastSync(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if ts != 1000 {
		t.Errorf("LastSync = %d after a failed run, want 1000", ts)
	}
	if h.state.Syncing(entities.EntityTasks) {
		t.Error("syncing flag still set after a failed run")
	}
}

func TestProcessQueueRemapsCreatedIDs(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	stored := h.createOffline(t, "buy milk")
	h.state.SetOnline(true)
	h.r.ProcessQueue(ctx)

	// The temp row is gone, the server row is in.
	if _, ok, err := h.b.Table().Get(ctx, stored.ID); err != nil || ok {
		t.Errorf("temp row %s still present (ok=%v err=%v)", stored.ID, ok, err)
	}
	srv, ok, err := h.b.Table().Get(ctx, "srv-1")
	if err != nil || !ok {
		t.Fatalf("server row missing (ok=%v err=%v)", ok, err)
	}
	if srv.Title != "buy milk" {
		t.Errorf("server row title = %q", srv.Title)
	}

	items := h.b.Items()
	if len(items) != 1 || items[0].ID != "srv-1" {
		t.Errorf("live collection = %+v, want exactly one record with the server id", items)
	}
	n, err := h.b.Table().Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("table rows = %d, want 1", n)
	}
}

func TestApplyCreatedIsIdempotent(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	stored := h.createOffline(t, "buy milk")

	wire := entities.TaskWire{Title: "buy milk"}
	wire.ID = "srv-1"
	wire.UserID = "u1"
	wire.UpdatedAt = "2026-08-31T12:00:00Z"
	created := []transport.Created[entities.TaskWire]{{ClientID: stored.ID, Record: wire}}

	h.r.applyCreated(ctx, created)
	h.r.applyCreated(ctx, created)

	items := h.b.Items()
	if len(items) != 1 || items[0].ID != "srv-1" {
		t.Errorf("live collection = %+v, want exactly one record after double apply", items)
	}
	n, err := h.b.Table().Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("table rows = %d after double apply, want 1", n)
	}
}

// A server update that sets a field back to its zero value (done unchecked)
// must land in the live collection, not just the table.
func TestApplyUpdatedZeroValuesReachLiveCollection(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	task := entities.Task{Title: "pay rent", Notes: "by friday", Done: true, Priority: 2}
	task.ID = "a"
	task.UserID = "u1"
	task.UpdatedAt = 100
	if err := h.b.Table().Put(ctx, task); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	h.b.SetItems([]entities.Task{task})

	wire := entities.TaskWire{Title: "pay rent"}
	wire.ID = "a"
	wire.UserID = "u1"
	wire.UpdatedAt = "1970-01-01T00:00:00.200Z"

	h.r.applyUpdated(ctx, []entities.TaskWire{wire})

	stored, _, err := h.b.Table().Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	items := h.b.Items()
	if len(items) != 1 {
		t.Fatalf("live collection = %+v, want one record", items)
	}
	live := items[0]

	if stored.Done || stored.Notes != "" || stored.Priority != 0 {
		t.Errorf("table kept stale fields: %+v", stored)
	}
	if live.Done || live.Notes != "" || live.Priority != 0 {
		t.Errorf("live collection kept stale fields: %+v", live)
	}
	if live.UpdatedAt != stored.UpdatedAt || live.Done != stored.Done {
		t.Errorf("live collection diverged from table: %+v vs %+v", live, stored)
	}
}

func TestSyncWithServerMerges(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	// Local rows seeded directly: "a" is stale against the server, "b" is
	// live locally but the server no longer knows it, "c" is unknown
	// locally.
	seed := func(id, title string, updated int64) {
		task := entities.Task{Title: title}
		task.ID = id
		task.UserID = "u1"
		task.UpdatedAt = updated
		if err := h.b.Table().Put(ctx, task); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	seed("a", "local-a", 100)
	seed("b", "local-b", 100)

	wireA := entities.TaskWire{Title: "remote-a"}
	wireA.ID = "a"
	wireA.UserID = "u1"
	wireA.UpdatedAt = "1970-01-01T00:00:00.200Z" // epoch millis 200
	wireC := entities.TaskWire{Title: "remote-c"}
	wireC.ID = "c"
	wireC.UserID = "u1"
	wireC.UpdatedAt = "1970-01-01T00:00:00.050Z"
	h.remote.fetch = []entities.TaskWire{wireA, wireC}

	h.state.SetOnline(true)
	h.r.SyncWithServer(ctx)

	a, _, err := h.b.Table().Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a.Title != "remote-a" || a.UpdatedAt != 200 {
		t.Errorf("a = %+v, want the newer remote copy", a)
	}

	b, _, err := h.b.Table().Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !b.Deleted() || b.DeletedAt != 1000 {
		t.Errorf("b = %+v, want tombstoned at 1000", b)
	}

	c, ok, err := h.b.Table().Get(ctx, "c")
	if err != nil || !ok {
		t.Fatalf("c missing (ok=%v err=%v)", ok, err)
	}
	if c.Title != "remote-c" {
		t.Errorf("c = %+v", c)
	}

	items := h.b.Items()
	if len(items) != 2 {
		t.Fatalf("live collection has %d records, want 2 (a and c): %+v", len(items), items)
	}
	for _, item := range items {
		if item.ID == "b" {
			t.Error("deleted record b still visible")
		}
	}
}

func TestSyncWithServerFetchFailureKeepsLocal(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	stored := h.createOffline(t, "keep me")
	h.remote.fetchErr = errors.New("timeout")
	h.remote.syncErr = errors.New("timeout")
	h.state.SetOnline(true)

	h.r.SyncWithServer(ctx)

	if _, ok, err := h.b.Table().Get(ctx, stored.ID); err != nil || !ok {
		t.Errorf("local record lost after failed sync (ok=%v err=%v)", ok, err)
	}
	n, err := h.state.PendingCount(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("queue depth = %d after failed sync, want 1", n)
	}
	ts, err := h.state.LastSync(ctx, entities.EntityTasks)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if ts != 1000 {
		t.Errorf("LastSync = %d, want 1000 even after failure", ts)
	}
}

func mustOp(t *testing.T, entity, recordID string) record.Op {
	t.Helper()
	task := entities.Task{Title: "queued"}
	task.ID = recordID
	op, err := record.NewOp(entity, record.OpCreate, recordID, task)
	if err != nil {
		t.Fatalf("NewOp failed: %v", err)
	}
	return op
}
