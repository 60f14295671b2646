package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sitepipe/internal/config"
	"sitepipe/internal/dag"
	"sitepipe/internal/devserver"
	"sitepipe/internal/fsync"
	"sitepipe/internal/notify"
	"sitepipe/internal/publish"
	"sitepipe/internal/trace"
	"sitepipe/internal/watch"
)

// Options configures New.
type Options struct {
	Config config.Config
	Logger *slog.Logger

	// Notifier defaults to the log plus, when enabled in Config, desktop
	// notifications.
	Notifier notify.Notifier

	// Transforms overrides individual content stages.
	Transforms Transforms

	// Publisher overrides the object storage target of the publish task.
	Publisher *publish.Publisher

	// Sink receives task lifecycle events of every run.
	Sink trace.Sink
}

// Context owns every long-lived object of a sitepipe process.
type Context struct {
	Config      config.Config
	Logger      *slog.Logger
	Registry    *dag.Registry
	Runner      *dag.Runner
	Output      *fsync.Output
	Hub         *devserver.Hub
	Server      *devserver.Server
	Notifier    notify.Notifier
	Coordinator *watch.Coordinator
	Publisher   *publish.Publisher

	transforms Transforms

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	watcher *watch.Watcher
	batches *watch.Debouncer
}

// New builds the context and validates the task registry. Nothing is started.
func New(opts Options) (*Context, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Context{
		Config:    cfg,
		Logger:    logger,
		Output:    fsync.NewOutput(cfg.OutputPath()),
		Publisher: opts.Publisher,
	}
	c.transforms = opts.Transforms.withDefaults(cfg, c.Output)

	c.Registry = dag.NewRegistry()
	for _, t := range c.tasks() {
		if err := c.Registry.Register(t); err != nil {
			return nil, err
		}
	}
	if err := c.Registry.Validate(); err != nil {
		return nil, err
	}

	c.Runner = dag.NewRunner(c.Registry, logger)
	c.Runner.Concurrency = cfg.Concurrency
	c.Runner.Sink = opts.Sink

	c.Notifier = opts.Notifier
	if c.Notifier == nil {
		n := notify.Multi{notify.Log{Logger: logger}}
		if cfg.DesktopNotify {
			n = append(n, notify.NewDesktop("sitepipe"))
		}
		c.Notifier = n
	}

	c.Hub = devserver.NewHub(logger)
	c.Server = devserver.New(devserver.Options{
		Port:   cfg.Port,
		Output: c.Output,
		Hub:    c.Hub,
		Logger: logger,
	})
	c.Coordinator = watch.NewCoordinator(watch.CoordinatorOptions{
		Bindings: c.Bindings(),
		Runner:   c.Runner,
		Reloader: c.Hub,
		Notifier: c.Notifier,
		Logger:   logger,
	})
	return c, nil
}

// Run executes one task and its prerequisites.
func (c *Context) Run(ctx context.Context, task string) (*dag.GraphResult, error) {
	return c.Runner.Run(ctx, task)
}

// Start binds the dev server and begins watching sources. It returns once
// everything is running; Stop ends it.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return errors.New("pipeline already started")
	}

	if err := c.Server.Start(ctx); err != nil {
		return err
	}
	w, err := watch.NewWatcher(c.Config.Root, watch.WatcherOptions{Ignore: []string{c.Config.OutputDir}})
	if err != nil {
		_ = c.Server.Stop(ctx)
		return err
	}
	d := watch.NewDebouncer(c.Config.Debounce())

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		watch.Forward(gctx, w, d, c.Logger)
		return nil
	})
	g.Go(func() error {
		c.Coordinator.Run(gctx, d.Batches())
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-c.Server.Done():
			return c.Server.Err()
		}
	})

	c.cancel, c.group, c.watcher, c.batches = cancel, g, w, d
	c.Logger.Info("watching sources", "root", c.Config.Root, "mode", c.Config.Mode())
	return nil
}

// Wait blocks until the running context fails or is stopped.
func (c *Context) Wait() error {
	c.mu.Lock()
	g := c.group
	c.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop ends watching, waits for a rebuild in progress and shuts the dev
// server down.
func (c *Context) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, g, w, d := c.cancel, c.group, c.watcher, c.batches
	c.cancel, c.group, c.watcher, c.batches = nil, nil, nil, nil
	c.mu.Unlock()
	if g == nil {
		return nil
	}

	cancel()
	errs := []error{c.Server.Stop(ctx), g.Wait()}
	d.Close()
	errs = append(errs, w.Close())
	return errors.Join(errs...)
}

// Serve starts the context and blocks until ctx is done or the dev server
// fails, then stops it.
func (c *Context) Serve(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- c.Wait() }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, c.Stop(stopCtx))
}
