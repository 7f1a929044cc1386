package entities

import (
	"sync"

	"github.com/satchel-dev/satchel/internal/record"
)

// Collection is the live, UI-observable set of records for one entity
// type. It is owned by a single Binding; the reconciler replaces its
// contents wholesale and readers get copies, so a reconciliation in flight
// never exposes a half-applied state.
type Collection[L record.Record[L]] struct {
	mu    sync.RWMutex
	items []L
}

// NewCollection returns an empty collection.
func NewCollection[L record.Record[L]]() *Collection[L] {
	return &Collection[L]{}
}

// Items returns a copy of the current collection.
func (c *Collection[L]) Items() []L {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]L, len(c.items))
	copy(out, c.items)
	return out
}

// Set replaces the collection.
func (c *Collection[L]) Set(items []L) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

// Get looks up a record by id.
func (c *Collection[L]) Get(id string) (L, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero L
	for _, item := range c.items {
		if item.RecordMeta().ID == id {
			return item, true
		}
	}
	return zero, false
}

// Len returns the number of records currently visible.
func (c *Collection[L]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
