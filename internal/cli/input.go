package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

type TraceConfig struct {
	Enabled bool
	Path    string
}

// Invocation is the parsed, canonical description of one sitepipe process.
//
// Zero values mean "not given on the command line"; the configuration file
// and environment decide those.
type Invocation struct {
	// WorkDir is the project root. Relative values are resolved by Execute.
	WorkDir    string
	ConfigPath string

	// Tasks are run once each, in order. Empty means build and serve.
	Tasks []string

	Port       int
	NoServe    bool
	Production bool
	List       bool
	LogFormat  string
	LogLevel   string
	Trace      TraceConfig

	// Usage is set, and everything else ignored, when -h or -help was given.
	Usage string
}

// Serve reports whether the invocation ends in the dev server.
func (inv Invocation) Serve() bool {
	return len(inv.Tasks) == 0 && !inv.NoServe && !inv.List && inv.Usage == ""
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses `sitepipe [flags] [task...]`.
//
// Flags may appear before, between or after task names. ParseInvocation
// reads neither the environment nor the process working directory.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("sitepipe", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var inv Invocation
	var tracePath string
	fs.StringVar(&inv.WorkDir, "workdir", ".", "Project directory.")
	fs.StringVar(&inv.ConfigPath, "config", "", "Config file (default sitepipe.yaml, sitepipe.yml or sitepipe.toml).")
	fs.IntVar(&inv.Port, "port", 0, "Dev server port.")
	fs.BoolVar(&inv.NoServe, "no-serve", false, "Build without starting the dev server.")
	fs.BoolVar(&inv.Production, "production", false, "Production mode.")
	fs.BoolVar(&inv.List, "list", false, "List tasks and exit.")
	fs.StringVar(&inv.LogFormat, "log-format", "", "Log format: text|json.")
	fs.StringVar(&inv.LogLevel, "log-level", "", "Log level: debug|info|warn|error.")
	fs.StringVar(&tracePath, "trace", "", "Write the task trace of every run to this file.")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return Invocation{WorkDir: ".", Usage: usage(fs)}, nil
			}
			// flag package returns errors like: "flag provided but not defined: -x"
			return Invocation{}, invalidInvocationf("%v", err)
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		inv.Tasks = append(inv.Tasks, rest[0])
		rest = rest[1:]
	}

	for _, name := range inv.Tasks {
		if strings.TrimSpace(name) == "" {
			return Invocation{}, invalidInvocationf("task name must not be empty")
		}
	}
	if inv.List && len(inv.Tasks) > 0 {
		return Invocation{}, invalidInvocationf("-list takes no task names (got %q)", strings.Join(inv.Tasks, " "))
	}

	if strings.TrimSpace(inv.WorkDir) == "" {
		return Invocation{}, invalidInvocationf("-workdir must not be empty")
	}
	inv.WorkDir = filepath.Clean(inv.WorkDir)

	if inv.Port != 0 && (inv.Port < 1 || inv.Port > 65535) {
		return Invocation{}, invalidInvocationf("-port %d out of range", inv.Port)
	}
	switch inv.LogFormat {
	case "", "text", "json":
	default:
		return Invocation{}, invalidInvocationf("invalid -log-format %q (expected text|json)", inv.LogFormat)
	}
	switch strings.ToLower(inv.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return Invocation{}, invalidInvocationf("invalid -log-level %q (expected debug|info|warn|error)", inv.LogLevel)
	}

	if strings.TrimSpace(tracePath) != "" {
		inv.Trace = TraceConfig{Enabled: true, Path: filepath.Clean(tracePath)}
	}
	return inv, nil
}

func usage(fs *flag.FlagSet) string {
	var b strings.Builder
	b.WriteString("Usage: sitepipe [flags] [task...]\n\nFlags:\n")
	fs.SetOutput(&b)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	return b.String()
}

// ExitCode extracts a semantic exit code from an error returned by
// ParseInvocation or Execute. Unknown errors map to ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
