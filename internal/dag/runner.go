package dag

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sitepipe/internal/trace"
)

// Runner resolves and executes the plan for a requested task.
//
// Each Run compiles a fresh plan and starts every task from PENDING; a run
// after a failure begins from the start of the graph.
type Runner struct {
	Registry *Registry
	Logger   *slog.Logger
	Sink     trace.Sink

	// Concurrency is passed to each Executor. Zero means unbounded.
	Concurrency int

	// NewRunID overrides run id generation (tests).
	NewRunID func() string
}

// NewRunner returns a Runner over reg.
func NewRunner(reg *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{Registry: reg, Logger: logger}
}

type ctxKeyRunID struct{}

// RunIDFromContext returns the id of the run an action is executing in.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyRunID{}).(string)
	return v, ok
}

// Run executes target and its prerequisites.
//
// Configuration errors (unknown task, cycle) are returned with a nil result.
// Task failures return both the partial result and a *TaskError.
func (r *Runner) Run(ctx context.Context, target string) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := Compile(r.Registry, target)
	if err != nil {
		return nil, err
	}

	runID := r.runID()
	logger := r.Logger.With("run_id", runID, "target", target)

	exec, err := NewExecutor(g)
	if err != nil {
		return nil, err
	}
	exec.Concurrency = r.Concurrency
	exec.Sink = r.Sink
	exec.Logger = logger

	logger.Info("run started", "tasks", g.Len(), "plan", g.Hash().String()[:12])
	start := time.Now()

	res, err := exec.Run(context.WithValue(ctx, ctxKeyRunID{}, runID))
	if res == nil {
		logger.Error("run aborted", "error", err)
		return nil, err
	}
	res.RunID = runID
	res.Target = target

	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Error("run failed", "failed_task", res.Failed, "duration_ms", elapsed, "error", err)
		return res, err
	}
	logger.Info("run finished", "duration_ms", elapsed)
	return res, nil
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}
