package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"sitepipe/internal/fsync"
)

// Options configures a Server.
type Options struct {
	// Host defaults to all interfaces.
	Host string

	// Port to bind. Zero picks a free port (tests).
	Port int

	Output *fsync.Output
	Hub    *Hub
	Logger *slog.Logger

	ShutdownTimeout time.Duration
}

// Server serves the output tree with live-reload injected into HTML pages.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	srv      *http.Server
	ln       net.Listener
	done     chan struct{}
	serveErr error
}

// New returns a server; nothing is bound until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Server{opts: opts, logger: opts.Logger}
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub { return s.opts.Hub }

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(livereloadPath, s.opts.Hub.Handler())
	mux.HandleFunc(livereloadScript, serveClientJS)
	mux.HandleFunc("/", s.serveFile)
	return wrap(s.logger, mux)
}

// Start binds the port and serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.Output == nil {
		return errors.New("devserver: output tree is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("devserver: already started")
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return &PortInUseError{Port: s.opts.Port, Err: err}
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	done := make(chan struct{})
	s.srv, s.ln, s.done, s.serveErr = srv, ln, done, nil

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
		close(done)
	}()

	s.logger.Info("dev server listening", "addr", "http://"+ln.Addr().String(), "root", s.opts.Output.Root())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Done is closed when serving stops; Err then reports why.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that stopped serving, nil after a clean Stop.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Stop disconnects live-reload clients and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.opts.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-done
	return s.Err()
}

func serveClientJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientJS))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}

	data, info, err := s.opts.Output.ReadFile(name)
	switch {
	case errors.Is(err, fs.ErrNotExist) || errors.Is(err, fsync.ErrOutsideRoot):
		http.NotFound(w, r)
		return
	case err != nil:
		s.logger.Error("read output file", "path", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	case info.IsDir():
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
		return
	}

	if ext := strings.ToLower(path.Ext(name)); ext == ".html" || ext == ".htm" {
		data = injectClient(data)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(data))
}
