// Package task tracks in-flight backend tasks and polls each one to a
// terminal state, delivering completion exactly once.
package task

import (
	"sync"

	"github.com/aarnphm/morph/internal/agent"
)

// Task is one registered backend task awaiting completion.
type Task struct {
	ID     string
	FileID string
	Class  agent.TaskClass
}

// Registry is the in-memory set of pending tasks, keyed by task id.
// Registration is idempotent and removal of an absent id is a no-op, so
// concurrent observers can race on the same id safely.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]Task
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Add registers a task. It reports whether the task was newly added;
// re-registering an existing id leaves the registry unchanged.
func (r *Registry) Add(t Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return false
	}
	r.tasks[t.ID] = t
	return true
}

// CompareAndRemove removes the task if it is still registered and reports
// whether this caller won the removal. Completion side effects must be
// gated on a true return so two observers never both fire for the same id.
func (r *Registry) CompareAndRemove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// Get returns the task with the given id.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Len returns the number of pending tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Snapshot returns a copy of all pending tasks.
func (r *Registry) Snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// RemoveWhere removes every task matching the predicate and returns the
// removed tasks. Used to tear down all tasks scoped to a vault or file.
func (r *Registry) RemoveWhere(match func(Task) bool) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Task
	for id, t := range r.tasks {
		if match(t) {
			delete(r.tasks, id)
			removed = append(removed, t)
		}
	}
	return removed
}
