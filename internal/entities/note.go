package entities

import (
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
)

// EntityNotes is the queue/table key for the note collection.
const EntityNotes = "notes"

// Note is a free-form text note.
type Note struct {
	record.Meta
	Title  string `json:"title,omitempty"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned,omitempty"`
}

func (n Note) RecordMeta() record.Meta     { return n.Meta }
func (n Note) WithMeta(m record.Meta) Note { n.Meta = m; return n }

func (n Note) Validate() error {
	if n.Body == "" {
		return fmt.Errorf("note body is required")
	}
	return nil
}

// NoteWire is the server representation of a note.
type NoteWire struct {
	WireMeta
	Title  string `json:"title,omitempty"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned,omitempty"`
}

func noteFromWire(w NoteWire) (Note, error) {
	m, err := w.ToMeta()
	if err != nil {
		return Note{}, fmt.Errorf("invalid note: %w", err)
	}
	return Note{Meta: m, Title: w.Title, Body: w.Body, Pinned: w.Pinned}, nil
}

func noteToWire(n Note) NoteWire {
	return NoteWire{WireMeta: MetaToWire(n.Meta), Title: n.Title, Body: n.Body, Pinned: n.Pinned}
}

// NewNoteBinding binds the note collection to the sync engine.
func NewNoteBinding(db *store.DB, remote Remote[NoteWire], userID func() string) *Binding[Note, NoteWire] {
	return NewBinding(
		EntityNotes,
		userID,
		store.NewTable[Note](db, EntityNotes),
		remote,
		noteFromWire,
		noteToWire,
		Note.Validate,
	)
}
