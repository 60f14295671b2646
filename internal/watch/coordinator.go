package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sitepipe/internal/dag"
	"sitepipe/internal/fsync"
	"sitepipe/internal/notify"
	"sitepipe/internal/transform"
)

// Binding maps source globs to the tasks rebuilt when a matching file
// changes. Patterns are relative to the watched root; "!" excludes.
type Binding struct {
	Name     string
	Patterns []string
	Tasks    []string
}

// Runner runs a named task with its prerequisites.
type Runner interface {
	Run(ctx context.Context, target string) (*dag.GraphResult, error)
}

// Reloader is told about the outcome of each rebuild.
type Reloader interface {
	Reload()
	BuildError(stage, message string)
}

// State of the Coordinator.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Bindings []Binding
	Runner   Runner
	Reloader Reloader
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Coordinator runs bound tasks in response to source changes.
//
// Runs never overlap. A change that arrives while a run is in progress adds
// its tasks to a pending set; when the run ends the pending tasks are run
// once, however many changes arrived. A failed run leaves the coordinator
// Idle and ready for the next change; failures never propagate out.
type Coordinator struct {
	opts   CoordinatorOptions
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	pending []string
	queued  map[string]bool
}

// NewCoordinator returns an Idle coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{opts: opts, logger: logger, queued: make(map[string]bool)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Match returns the tasks bound to a root-relative path, in binding order
// without duplicates.
func (c *Coordinator) Match(path string) []string {
	var tasks []string
	seen := map[string]bool{}
	for _, b := range c.opts.Bindings {
		if !fsync.MatchPath(b.Patterns, path) {
			continue
		}
		for _, t := range b.Tasks {
			if !seen[t] {
				seen[t] = true
				tasks = append(tasks, t)
			}
		}
	}
	return tasks
}

// Trigger reacts to changed paths. It returns false when no binding matched.
// When Idle the coordinator starts a run in the background; when Running the
// tasks are queued for the follow-up run.
func (c *Coordinator) Trigger(ctx context.Context, paths ...string) bool {
	var tasks []string
	for _, p := range paths {
		tasks = append(tasks, c.Match(p)...)
	}
	if len(tasks) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tasks {
		if !c.queued[t] {
			c.queued[t] = true
			c.pending = append(c.pending, t)
		}
	}
	if c.state == Idle {
		c.state = Running
		go c.loop(ctx)
	} else {
		c.logger.Debug("rebuild queued", "tasks", tasks)
	}
	return true
}

// Wait blocks until the coordinator is Idle with nothing queued.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == Running {
		c.cond.Wait()
	}
}

// Run feeds debounced batches into Trigger until ctx is done or batches is
// closed, then waits for the current run to end.
func (c *Coordinator) Run(ctx context.Context, batches <-chan []string) {
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case paths, ok := <-batches:
			if !ok {
				return
			}
			if !c.Trigger(ctx, paths...) {
				c.logger.Debug("change ignored", "paths", paths)
			}
		}
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 || ctx.Err() != nil {
			c.pending, c.queued = nil, make(map[string]bool)
			c.state = Idle
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		batch := c.pending
		c.pending, c.queued = nil, make(map[string]bool)
		c.mu.Unlock()

		c.rebuild(ctx, batch)
	}
}

// rebuild runs the tasks in order and stops at the first failure.
func (c *Coordinator) rebuild(ctx context.Context, tasks []string) {
	start := time.Now()
	for _, task := range tasks {
		_, err := c.opts.Runner.Run(ctx, task)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		stage, message := Describe(task, err)
		c.logger.Error("rebuild failed", "task", task, "stage", stage, "error", err)
		if c.opts.Reloader != nil {
			c.opts.Reloader.BuildError(stage, message)
		}
		if c.opts.Notifier != nil {
			if nerr := c.opts.Notifier.Notify(ctx, notify.Message{Title: stage, Body: message}); nerr != nil {
				c.logger.Warn("notification failed", "error", nerr)
			}
		}
		return
	}
	c.logger.Info("rebuild finished", "tasks", tasks, "duration_ms", time.Since(start).Milliseconds())
	if c.opts.Reloader != nil {
		c.opts.Reloader.Reload()
	}
}

// Describe names the stage that failed and the message to show for err. A
// transform failure reports its own stage; other failures report the task.
func Describe(task string, err error) (stage, message string) {
	var te *transform.TransformError
	if errors.As(err, &te) {
		if te.Message == "" {
			return te.Stage, te.Error()
		}
		return te.Stage, te.Message
	}
	var taskErr *dag.TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Task, taskErr.Err.Error()
	}
	return task, err.Error()
}
