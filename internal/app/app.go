// Package app wires the object graph: database, sync state, one binding
// and one reconciler per entity collection. Constructed once per process
// by the CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/satchel-dev/satchel/internal/engine"
	"github.com/satchel-dev/satchel/internal/entities"
	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
	"github.com/satchel-dev/satchel/internal/syncstate"
	"github.com/satchel-dev/satchel/internal/transport"
)

// Reconciler aliases pin down the generic instantiations used throughout
// the CLI and daemon.
type (
	TaskReconciler      = engine.Reconciler[entities.Task, entities.TaskWire, entities.CreateOp[entities.TaskWire], entities.TaskWire, entities.DeleteOp]
	NoteReconciler      = engine.Reconciler[entities.Note, entities.NoteWire, entities.CreateOp[entities.NoteWire], entities.NoteWire, entities.DeleteOp]
	SessionReconciler   = engine.Reconciler[entities.Session, entities.SessionWire, entities.CreateOp[entities.SessionWire], entities.SessionWire, entities.DeleteOp]
	BlocklistReconciler = engine.Reconciler[entities.BlockedSite, entities.BlockedSiteWire, entities.CreateOp[entities.BlockedSiteWire], entities.BlockedSiteWire, entities.DeleteOp]
)

// Config holds everything needed to assemble the app.
type Config struct {
	DBPath    string
	ServerURL string
	Token     string
	UserID    string

	// HTTPClient overrides the default transport client (tests).
	HTTPClient *http.Client

	// Logger for engine activity. Nil means stderr.
	Logger *log.Logger
}

// App is the assembled object graph.
type App struct {
	Config Config
	DB     *store.DB
	State  *syncstate.Store

	TaskBinding      *entities.Binding[entities.Task, entities.TaskWire]
	NoteBinding      *entities.Binding[entities.Note, entities.NoteWire]
	SessionBinding   *entities.Binding[entities.Session, entities.SessionWire]
	BlocklistBinding *entities.Binding[entities.BlockedSite, entities.BlockedSiteWire]

	Tasks     *TaskReconciler
	Notes     *NoteReconciler
	Sessions  *SessionReconciler
	Blocklist *BlocklistReconciler
}

// Open opens the database, initializes the schema, and builds one binding
// and reconciler per entity type. The live collections are warmed from the
// local tables so the UI sees data before any network activity.
func Open(ctx context.Context, cfg Config) (*App, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	state := syncstate.New(db)
	userID := func() string { return cfg.UserID }

	a := &App{Config: cfg, DB: db, State: state}

	a.TaskBinding = entities.NewTaskBinding(db,
		remoteFor[entities.TaskWire](cfg, entities.EntityTasks), userID)
	a.NoteBinding = entities.NewNoteBinding(db,
		remoteFor[entities.NoteWire](cfg, entities.EntityNotes), userID)
	a.SessionBinding = entities.NewSessionBinding(db,
		remoteFor[entities.SessionWire](cfg, entities.EntitySessions), userID)
	a.BlocklistBinding = entities.NewBlocklistBinding(db,
		remoteFor[entities.BlockedSiteWire](cfg, entities.EntityBlocklist), userID)

	a.Tasks = engine.NewReconciler(a.TaskBinding, state, cfg.Logger)
	a.Notes = engine.NewReconciler(a.NoteBinding, state, cfg.Logger)
	a.Sessions = engine.NewReconciler(a.SessionBinding, state, cfg.Logger)
	a.Blocklist = engine.NewReconciler(a.BlocklistBinding, state, cfg.Logger)

	if cfg.UserID != "" {
		if err := a.warm(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return a, nil
}

func remoteFor[W any](cfg Config, entity string) entities.Remote[W] {
	return transport.NewClient[W, entities.CreateOp[W], W, entities.DeleteOp](
		cfg.ServerURL, entity, cfg.Token, cfg.HTTPClient)
}

// warm loads the live collections from the local tables.
func (a *App) warm(ctx context.Context) error {
	if err := warmBinding(ctx, a.TaskBinding, a.Config.UserID); err != nil {
		return err
	}
	if err := warmBinding(ctx, a.NoteBinding, a.Config.UserID); err != nil {
		return err
	}
	if err := warmBinding(ctx, a.SessionBinding, a.Config.UserID); err != nil {
		return err
	}
	return warmBinding(ctx, a.BlocklistBinding, a.Config.UserID)
}

func warmBinding[L record.Record[L], W any](ctx context.Context, b *entities.Binding[L, W], userID string) error {
	items, err := b.Table().ListLiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to warm %s collection: %w", b.EntityType(), err)
	}
	b.SetItems(items)
	return nil
}

// ProcessAll drains every entity queue.
func (a *App) ProcessAll(ctx context.Context) {
	a.Tasks.ProcessQueue(ctx)
	a.Notes.ProcessQueue(ctx)
	a.Sessions.ProcessQueue(ctx)
	a.Blocklist.ProcessQueue(ctx)
}

// SyncAll runs a full pull-and-merge reconciliation for every entity.
func (a *App) SyncAll(ctx context.Context) {
	a.Tasks.SyncWithServer(ctx)
	a.Notes.SyncWithServer(ctx)
	a.Sessions.SyncWithServer(ctx)
	a.Blocklist.SyncWithServer(ctx)
}

// StartAutoSync begins periodic queue draining on every reconciler.
func (a *App) StartAutoSync(interval time.Duration) {
	a.Tasks.StartAutoSync(interval)
	a.Notes.StartAutoSync(interval)
	a.Sessions.StartAutoSync(interval)
	a.Blocklist.StartAutoSync(interval)
}

// EntityStatus is one row of the status report.
type EntityStatus struct {
	Entity   string
	Pending  int
	Syncing  bool
	LastSync int64 // epoch millis, 0 = never
}

// Status reports queue depth and sync recency per entity.
func (a *App) Status(ctx context.Context) ([]EntityStatus, error) {
	names := []string{
		entities.EntityTasks,
		entities.EntityNotes,
		entities.EntitySessions,
		entities.EntityBlocklist,
	}

	out := make([]EntityStatus, 0, len(names))
	for _, name := range names {
		pending, err := a.State.PendingCount(ctx, name)
		if err != nil {
			return nil, err
		}
		last, err := a.State.LastSync(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, EntityStatus{
			Entity:   name,
			Pending:  pending,
			Syncing:  a.State.Syncing(name),
			LastSync: last,
		})
	}
	return out, nil
}

// Close stops autosync timers and closes the database.
func (a *App) Close() error {
	a.Tasks.Close()
	a.Notes.Close()
	a.Sessions.Close()
	a.Blocklist.Close()
	return a.DB.Close()
}
