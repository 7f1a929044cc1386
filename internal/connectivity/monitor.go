// Package connectivity feeds the engine's online/offline flag.
//
// The monitor holds a websocket open against the sync server; a healthy
// connection means online, a failed dial or broken read means offline
// until the next successful redial. The sync engine itself never probes -
// this package is its only connectivity signal.
package connectivity

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// StatusSink receives connectivity transitions. *syncstate.Store satisfies
// it.
type StatusSink interface {
	SetOnline(online bool)
}

// Config configures the Monitor.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://sync.example.com/api/ws.
	URL string

	// Token is the bearer token presented on dial.
	Token string

	// RedialInterval is how long to wait between connection attempts.
	// Defaults to 15 seconds. This is a fixed interval, not a backoff:
	// reconciliation retry is trigger-driven and a flapping link should
	// keep producing triggers.
	RedialInterval time.Duration

	// OnOnline fires on each offline-to-online transition, after the sink
	// has been updated. Used to trigger opportunistic reconciliation.
	OnOnline func()

	// Logger for monitor activity.
	Logger *log.Logger
}

// Monitor maintains the connectivity signal.
type Monitor struct {
	sink   StatusSink
	config Config
}

// NewMonitor creates a monitor feeding the given sink.
func NewMonitor(sink StatusSink, config Config) *Monitor {
	if config.RedialInterval <= 0 {
		config.RedialInterval = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return &Monitor{sink: sink, config: config}
}

// Run dials and watches the connection until ctx is cancelled. It blocks;
// run it in its own goroutine. On return the sink is left offline.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.sink.SetOnline(false)

	for {
		if err := m.connectAndWatch(ctx); err != nil && ctx.Err() == nil {
			m.config.Logger.Printf("connection lost: %v", err)
		}
		m.sink.SetOnline(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.RedialInterval):
		}
	}
}

// connectAndWatch performs one dial and blocks reading pings until the
// connection breaks or ctx is cancelled.
func (m *Monitor) connectAndWatch(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	opts := &websocket.DialOptions{}
	if m.config.Token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + m.config.Token},
		}
	}
	conn, _, err := websocket.Dial(dialCtx, m.config.URL, opts)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	m.config.Logger.Printf("connected to %s", m.config.URL)
	m.sink.SetOnline(true)
	if m.config.OnOnline != nil {
		m.config.OnOnline()
	}

	// The server sends periodic keepalive frames; any read error means the
	// link is gone.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
	}
}

// WebsocketURL derives the monitor endpoint from an HTTP base URL.
func WebsocketURL(baseURL string) string {
	url := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/ws"
}
