package entities

import (
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
)

// EntityTasks is the queue/table key for the task collection.
const EntityTasks = "tasks"

// Task is a to-do item.
type Task struct {
	record.Meta
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Priority int    `json:"priority,omitempty"` // 0 = default, 1-3 raise urgency
	DueAt    *int64 `json:"dueAt,omitempty"`    // epoch millis
}

func (t Task) RecordMeta() record.Meta     { return t.Meta }
func (t Task) WithMeta(m record.Meta) Task { t.Meta = m; return t }

// Validate checks the fields a create must carry before it may reach the
// network.
func (t Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.Priority < 0 || t.Priority > 3 {
		return fmt.Errorf("task priority must be between 0 and 3 (got %d)", t.Priority)
	}
	return nil
}

// TaskWire is the server representation of a task.
type TaskWire struct {
	WireMeta
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Priority int    `json:"priority,omitempty"`
	DueAt    string `json:"dueAt,omitempty"`
}

func taskFromWire(w TaskWire) (Task, error) {
	m, err := w.ToMeta()
	if err != nil {
		return Task{}, fmt.Errorf("invalid task: %w", err)
	}
	t := Task{
		Meta:     m,
		Title:    w.Title,
		Notes:    w.Notes,
		Done:     w.Done,
		Priority: w.Priority,
	}
	if w.DueAt != "" {
		due, err := wireToMillis(w.DueAt)
		if err != nil {
			return Task{}, fmt.Errorf("invalid task %s dueAt: %w", w.ID, err)
		}
		t.DueAt = &due
	}
	return t, nil
}

func taskToWire(t Task) TaskWire {
	w := TaskWire{
		WireMeta: MetaToWire(t.Meta),
		Title:    t.Title,
		Notes:    t.Notes,
		Done:     t.Done,
		Priority: t.Priority,
	}
	if t.DueAt != nil {
		w.DueAt = millisToWire(*t.DueAt)
	}
	return w
}

// NewTaskBinding binds the task collection to the sync engine.
func NewTaskBinding(db *store.DB, remote Remote[TaskWire], userID func() string) *Binding[Task, TaskWire] {
	return NewBinding(
		EntityTasks,
		userID,
		store.NewTable[Task](db, EntityTasks),
		remote,
		taskFromWire,
		taskToWire,
		Task.Validate,
	)
}
