package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"sitepipe/internal/config"
	"sitepipe/internal/dag"
	"sitepipe/internal/devserver"
	"sitepipe/internal/fsync"
	"sitepipe/internal/notify"
	"sitepipe/internal/pipeline"
	"sitepipe/internal/trace"
	"sitepipe/internal/watch"
)

type CLIResult struct {
	ExitCode int

	// GraphResult is the result of the last task run, if any ran.
	GraphResult *dag.GraphResult
}

// Streams are the process outputs Execute writes to.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Hooks customise Execute for embedding and tests.
type Hooks struct {
	Streams Streams

	// Transforms overrides content stages of the pipeline.
	Transforms pipeline.Transforms

	// Notifier replaces the configured build error notifier.
	Notifier notify.Notifier
}

// Execute runs a parsed invocation against the real process streams.
func Execute(ctx context.Context, inv Invocation) (CLIResult, error) {
	return ExecuteWith(ctx, inv, Hooks{Streams: Streams{Stdout: os.Stdout, Stderr: os.Stderr}})
}

// ExecuteWith maps an Invocation to pipeline runs.
//
// Configuration is read from the project file, then the environment, then
// the flags. With no task names the build task runs and, when it succeeds,
// the dev server and watcher run until ctx is done. Named tasks run once
// each, in order, stopping at the first failure.
func ExecuteWith(ctx context.Context, inv Invocation, hooks Hooks) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	stdout, stderr := hooks.Streams.Stdout, hooks.Streams.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if inv.Usage != "" {
		_, err := io.WriteString(stdout, inv.Usage)
		if err == nil {
			res.ExitCode = ExitSuccess
		}
		return res, err
	}

	cfg, err := loadConfig(inv)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	logger := NewLogger(stderr, cfg.LogFormat, cfg.LogLevel)

	var rec *trace.Recorder
	opts := pipeline.Options{Config: cfg, Logger: logger, Transforms: hooks.Transforms, Notifier: hooks.Notifier}
	if inv.Trace.Enabled {
		rec = trace.NewRecorder()
		opts.Sink = rec
	}

	pc, err := pipeline.New(opts)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, fmt.Errorf("task registry: %w", err)
	}

	if inv.List {
		if err := listTasks(stdout, pc.Registry); err != nil {
			return res, err
		}
		res.ExitCode = ExitSuccess
		return res, nil
	}

	tasks := inv.Tasks
	if len(tasks) == 0 {
		tasks = []string{pipeline.DefaultTask}
	}
	for _, name := range tasks {
		if _, ok := pc.Registry.Lookup(name); !ok {
			res.ExitCode = ExitInvalidInvocation
			return res, invalidInvocationf("unknown task %q (see -list)", name)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("panic: %v", r)
		}
	}()

	var traces bytes.Buffer
	for _, name := range tasks {
		gr, err := pc.Run(ctx, name)
		res.GraphResult = gr
		if rec != nil && gr != nil {
			if terr := appendTrace(&traces, rec, gr); terr != nil {
				return res, terr
			}
		}
		if err != nil {
			if dag.IsTaskFailure(err) {
				reportFailure(ctx, pc, name, err)
			}
			res.ExitCode = runExitCode(err)
			return res, errors.Join(err, writeTrace(inv, traces.Bytes()))
		}
	}
	if err := writeTrace(inv, traces.Bytes()); err != nil {
		return res, err
	}

	if !inv.Serve() {
		res.ExitCode = ExitSuccess
		return res, nil
	}

	if err := pc.Serve(ctx); err != nil {
		var portErr *devserver.PortInUseError
		if errors.As(err, &portErr) {
			res.ExitCode = ExitConfigError
		}
		return res, err
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

func loadConfig(inv Invocation) (config.Config, error) {
	root, err := filepath.Abs(inv.WorkDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve workdir: %w", err)
	}
	cfg, err := config.Load(root, inv.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if inv.Port != 0 {
		cfg.Port = inv.Port
	}
	if inv.Production {
		cfg.Production = true
	}
	if inv.LogFormat != "" {
		cfg.LogFormat = inv.LogFormat
	}
	if inv.LogLevel != "" {
		cfg.LogLevel = inv.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runExitCode maps a Runner error. Task failures and aborted runs are graph
// failures; anything else is internal.
func runExitCode(err error) int {
	switch {
	case dag.IsTaskFailure(err), errors.Is(err, dag.ErrAborted):
		return ExitGraphFailure
	default:
		var unknown *dag.UnknownDependencyError
		if errors.As(err, &unknown) || errors.Is(err, dag.ErrCycleFound) {
			return ExitConfigError
		}
		return ExitInternalError
	}
}

// reportFailure sends a failed run to the notifier the same way a failed
// rebuild in watch mode is reported.
func reportFailure(ctx context.Context, pc *pipeline.Context, task string, err error) {
	stage, message := watch.Describe(task, err)
	if nerr := pc.Notifier.Notify(ctx, notify.Message{Title: stage, Body: message}); nerr != nil {
		pc.Logger.Warn("notification failed", "error", nerr)
	}
}

func listTasks(w io.Writer, reg *dag.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range reg.Names() {
		t, _ := reg.Lookup(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, t.Description)
	}
	return tw.Flush()
}

// appendTrace adds the canonical trace of gr as one line and resets rec for
// the next run.
func appendTrace(buf *bytes.Buffer, rec *trace.Recorder, gr *dag.GraphResult) error {
	tr := rec.Trace(string(gr.PlanHash), gr.Target)
	rec.Reset()
	b, err := tr.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	buf.Write(b)
	buf.WriteByte('\n')
	return nil
}

func writeTrace(inv Invocation, data []byte) error {
	if !inv.Trace.Enabled {
		return nil
	}
	p := inv.Trace.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(inv.WorkDir, p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	return fsync.WriteFileAtomic(p, data, 0o644)
}
