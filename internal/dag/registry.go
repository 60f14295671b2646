package dag

import (
	"sort"
	"sync"
)

// Registry maps task names to tasks. Tasks are registered once at startup and
// invoked any number of times thereafter.
//
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register adds a task. Prerequisites are not resolved here; unknown names
// surface from Validate or Compile.
func (r *Registry) Register(t Task) error {
	if t.Name == "" {
		return invalidf("task name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name]; exists {
		return &DuplicateTaskError{Name: t.Name}
	}
	after := make([]string, len(t.After))
	copy(after, t.After)
	t.After = after
	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(t Task) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns all registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Validate resolves every declared prerequisite and proves the declared
// prerequisite graph is acyclic.
//
// It rejects:
//   - prerequisites naming unregistered tasks (UnknownDependencyError)
//   - a task listing the same prerequisite twice
//   - self-dependencies and any cycle (ErrCycleFound with a witness path)
func (r *Registry) Validate() error {
	r.mu.RLock()
	tasks := make([]Task, 0, len(r.order))
	for _, name := range r.order {
		tasks = append(tasks, r.tasks[name])
	}
	r.mu.RUnlock()

	if len(tasks) == 0 {
		return invalidf("no tasks registered")
	}

	var edges []Edge
	for _, t := range tasks {
		seen := make(map[string]struct{}, len(t.After))
		for _, dep := range t.After {
			if _, ok := r.Lookup(dep); !ok {
				return &UnknownDependencyError{Task: t.Name, Dependency: dep}
			}
			if _, dup := seen[dep]; dup {
				return invalidf("task %q lists prerequisite %q twice", t.Name, dep)
			}
			seen[dep] = struct{}{}
			edges = append(edges, Edge{From: dep, To: t.Name})
		}
	}

	_, err := NewTaskGraph(tasks, edges)
	return err
}
