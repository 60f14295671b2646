package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sitepipe/internal/trace"
)

// Executor runs a TaskGraph once.
//
// Dispatch is ready-driven: whenever a task finishes, the scheduler is polled
// and every newly ready task is started in (depth, name) order, subject to
// Concurrency. Members of a parallel group therefore run concurrently while
// sequencing edges keep sequential steps apart.
//
// On the first failure no further task is started; tasks already running are
// awaited, the remaining PENDING tasks become SKIPPED and Run returns a
// *TaskError naming the failing task. Nothing already written is rolled back.
type Executor struct {
	Graph *TaskGraph

	// Concurrency bounds the number of actions running at once. Zero or less
	// means unbounded.
	Concurrency int

	Sink   trace.Sink
	Logger *slog.Logger

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor with all nodes initialized to PENDING.
func NewExecutor(g *TaskGraph) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	return &Executor{Graph: g, state: newExecutionState(g)}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

type taskOutcome struct {
	name     string
	err      error
	duration time.Duration
}

// Run executes the graph to completion or first failure.
//
// The returned GraphResult is non-nil whenever the graph was started, even on
// failure. The error is the same as GraphResult.Err.
func (e *Executor) Run(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res := &GraphResult{
		PlanHash:  e.Graph.Hash(),
		Durations: make(map[string]time.Duration, len(e.Graph.nodes)),
	}

	doneCh := make(chan taskOutcome)
	inFlight := 0
	var failure *TaskError
	var aborted error

	for {
		e.mu.Lock()
		if failure == nil && aborted == nil {
			if err := ctx.Err(); err != nil {
				aborted = err
			}
		}
		if failure == nil && aborted == nil {
			for _, name := range GetReadyTasks(e.Graph, e.state) {
				if e.Concurrency > 0 && inFlight >= e.Concurrency {
					break
				}
				if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
					e.mu.Unlock()
					e.drain(doneCh, inFlight)
					return nil, err
				}
				res.ExecutionOrder = append(res.ExecutionOrder, name)
				inFlight++
				trace.SafeRecord(e.Sink, trace.Event{Kind: trace.EventTaskStarted, TaskID: name})
				logger.Debug("task started", "task", name)
				go e.execute(ctx, e.Graph.nodesByName[name].Task, doneCh)
			}
		}
		if inFlight == 0 {
			e.mu.Unlock()
			break
		}
		e.mu.Unlock()

		out := <-doneCh

		e.mu.Lock()
		inFlight--
		res.Durations[out.name] = out.duration
		res.CompletionOrder = append(res.CompletionOrder, out.name)
		if out.err == nil {
			if err := Transition(e.state, out.name, TaskRunning, TaskCompleted); err != nil {
				e.mu.Unlock()
				e.drain(doneCh, inFlight)
				return nil, err
			}
			trace.SafeRecord(e.Sink, trace.Event{Kind: trace.EventTaskCompleted, TaskID: out.name})
			logger.Debug("task completed", "task", out.name, "duration_ms", out.duration.Milliseconds())
		} else {
			if err := Transition(e.state, out.name, TaskRunning, TaskFailed); err != nil {
				e.mu.Unlock()
				e.drain(doneCh, inFlight)
				return nil, err
			}
			trace.SafeRecord(e.Sink, trace.Event{Kind: trace.EventTaskFailed, TaskID: out.name})
			logger.Debug("task failed", "task", out.name, "duration_ms", out.duration.Milliseconds(), "error", out.err)
			if failure == nil {
				failure = &TaskError{Task: out.name, Err: out.err}
			}
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case failure != nil:
		res.Failed = failure.Task
		res.Err = failure
		e.skipRemaining(failure.Task)
	case aborted != nil:
		res.Err = fmt.Errorf("%w: %w", ErrAborted, aborted)
		e.skipRemaining("")
	default:
		for name, st := range e.state {
			if !IsTerminal(st) {
				return nil, fmt.Errorf("no ready tasks but %q is %s", name, st)
			}
		}
	}

	res.FinalState = e.state.clone()
	return res, res.Err
}

func (e *Executor) skipRemaining(cause string) {
	for _, name := range AbortPending(e.state) {
		trace.SafeRecord(e.Sink, trace.Event{Kind: trace.EventTaskSkipped, TaskID: name, Reason: "RunAborted", CauseTaskID: cause})
	}
}

// drain waits for n in-flight tasks so no goroutine is left blocked on doneCh.
func (e *Executor) drain(doneCh <-chan taskOutcome, n int) {
	for ; n > 0; n-- {
		<-doneCh
	}
}

func (e *Executor) execute(ctx context.Context, t Task, doneCh chan<- taskOutcome) {
	start := time.Now()
	err := runAction(ctx, t)
	doneCh <- taskOutcome{name: t.Name, err: err, duration: time.Since(start)}
}

func runAction(ctx context.Context, t Task) (err error) {
	if t.Action == nil {
		return nil
	}
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	if err := t.Action(ctx); err != nil {
		return err
	}
	return nil
}

// IsTaskFailure reports whether err is a failure of a task action (as opposed
// to a configuration or internal error).
func IsTaskFailure(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}
