package entities

import (
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
)

// EntitySessions is the queue/table key for stashed browser sessions.
const EntitySessions = "sessions"

// Tab is one open tab captured in a stashed session.
type Tab struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Session is a stashed set of browser tabs, typically dropped into the
// inbox directory by the browser extension.
type Session struct {
	record.Meta
	Name string `json:"name,omitempty"`
	Tabs []Tab  `json:"tabs"`
}

func (s Session) RecordMeta() record.Meta        { return s.Meta }
func (s Session) WithMeta(m record.Meta) Session { s.Meta = m; return s }

func (s Session) Validate() error {
	if len(s.Tabs) == 0 {
		return fmt.Errorf("session has no tabs")
	}
	for i, tab := range s.Tabs {
		if tab.URL == "" {
			return fmt.Errorf("session tab %d has no url", i)
		}
	}
	return nil
}

// SessionWire is the server representation of a stashed session.
type SessionWire struct {
	WireMeta
	Name string `json:"name,omitempty"`
	Tabs []Tab  `json:"tabs"`
}

func sessionFromWire(w SessionWire) (Session, error) {
	m, err := w.ToMeta()
	if err != nil {
		return Session{}, fmt.Errorf("invalid session: %w", err)
	}
	return Session{Meta: m, Name: w.Name, Tabs: w.Tabs}, nil
}

func sessionToWire(s Session) SessionWire {
	return SessionWire{WireMeta: MetaToWire(s.Meta), Name: s.Name, Tabs: s.Tabs}
}

// NewSessionBinding binds the session collection to the sync engine.
func NewSessionBinding(db *store.DB, remote Remote[SessionWire], userID func() string) *Binding[Session, SessionWire] {
	return NewBinding(
		EntitySessions,
		userID,
		store.NewTable[Session](db, EntitySessions),
		remote,
		sessionFromWire,
		sessionToWire,
		Session.Validate,
	)
}
