// Package inbox ingests JSON files dropped by the browser extension into a
// watched directory and applies them as local mutations.
//
// The watcher:
//  1. Rescans the inbox on startup (files dropped while the daemon was down)
//  2. Watches for new files with fsnotify, debouncing rapid writes
//  3. Applies each file through the matching entity adapter
//  4. Removes files that were applied successfully
//
// Two file kinds are recognized by name: session-*.json (a stashed tab
// session) and blocklist-*.json (a batch of blocked-site rules).
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/satchel-dev/satchel/internal/entities"
)

// SessionApplier records a stashed session locally and queues it for sync.
// *engine.Reconciler for the session entity satisfies it.
type SessionApplier interface {
	Create(ctx context.Context, s entities.Session) (entities.Session, error)
}

// BlocklistApplier records blocked-site rules locally and queues them.
type BlocklistApplier interface {
	Create(ctx context.Context, b entities.BlockedSite) (entities.BlockedSite, error)
}

// Config holds configuration for the Watcher.
type Config struct {
	// Dir is the inbox directory to watch.
	Dir string

	// DebounceInterval is how long a file must sit quiet before it is
	// processed, batching rapid writes from the extension.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// sessionFile is the drop format written by the extension for a stash.
type sessionFile struct {
	Name string         `json:"name,omitempty"`
	Tabs []entities.Tab `json:"tabs"`
}

// blocklistFile is the drop format for blocked-site batches.
type blocklistFile struct {
	Sites []struct {
		Pattern string `json:"pattern"`
		Reason  string `json:"reason,omitempty"`
	} `json:"sites"`
}

// Watcher ingests inbox files into the sync engine.
type Watcher struct {
	sessions  SessionApplier
	blocklist BlocklistApplier
	config    Config

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]time.Time // filepath -> last event

	wg sync.WaitGroup
}

// New creates a Watcher. Use Run to begin watching.
func New(sessions SessionApplier, blocklist BlocklistApplier, config Config) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("inbox dir cannot be empty")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[inbox] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		sessions:  sessions,
		blocklist: blocklist,
		config:    config,
		watcher:   fw,
		pending:   make(map[string]time.Time),
	}, nil
}

// Run rescans the inbox, then watches it until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.config.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	if err := w.Rescan(ctx); err != nil {
		return err
	}
	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}
	w.config.Logger.Printf("watching %s", w.config.Dir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.drainPending(ctx)

	<-ctx.Done()
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("error closing watcher: %v", err)
	}
	w.wg.Wait()
	return ctx.Err()
}

// Rescan processes every file currently sitting in the inbox.
func (w *Watcher) Rescan(ctx context.Context) error {
	dirents, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox directory: %w", err)
	}

	for _, ent := range dirents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		w.processFile(ctx, filepath.Join(w.config.Dir, ent.Name()))
	}
	return nil
}

func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("watcher error: %v", err)
		}
	}
}

// drainPending processes files that have been quiet for the debounce
// interval.
func (w *Watcher) drainPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			var ready []string
			w.pendingMu.Lock()
			for path, at := range w.pending {
				if now.Sub(at) >= w.config.DebounceInterval {
					ready = append(ready, path)
					delete(w.pending, path)
				}
			}
			w.pendingMu.Unlock()

			for _, path := range ready {
				w.processFile(ctx, path)
			}
		}
	}
}

// processFile ingests one inbox file and removes it on success. Failures
// are logged and the file is left in place for the next rescan.
func (w *Watcher) processFile(ctx context.Context, path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}

	var err error
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "session-"):
		err = w.applySession(ctx, path)
	case strings.HasPrefix(base, "blocklist-"):
		err = w.applyBlocklist(ctx, path)
	default:
		w.config.Logger.Printf("skipping unrecognized inbox file: %s", base)
		return
	}

	if err != nil {
		w.config.Logger.Printf("failed to ingest %s: %v", base, err)
		return
	}

	if err := os.Remove(path); err != nil {
		w.config.Logger.Printf("failed to remove ingested file %s: %v", base, err)
		return
	}
	w.config.Logger.Printf("ingested %s", base)
}

func (w *Watcher) applySession(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}

	session := entities.Session{Name: file.Name, Tabs: file.Tabs}
	if err := session.Validate(); err != nil {
		return err
	}

	_, err = w.sessions.Create(ctx, session)
	return err
}

func (w *Watcher) applyBlocklist(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read blocklist file: %w", err)
	}

	var file blocklistFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse blocklist file: %w", err)
	}
	if len(file.Sites) == 0 {
		return fmt.Errorf("blocklist file has no sites")
	}

	for _, site := range file.Sites {
		rule := entities.BlockedSite{Pattern: site.Pattern, Reason: site.Reason}
		if err := rule.Validate(); err != nil {
			return err
		}
		if _, err := w.blocklist.Create(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
