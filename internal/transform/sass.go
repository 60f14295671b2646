package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"sort"
	"strings"
	"syscall"
)

// SassOptions configures the Sass compiler invocation.
type SassOptions struct {
	// Binary is the Dart Sass executable. Defaults to "sass" on PATH.
	Binary string

	// OutputStyle is "expanded" (default) or "compressed".
	OutputStyle string

	// LoadPaths are passed as --load-path, in order.
	LoadPaths []string

	// OutputName is the path of the single CSS file produced.
	OutputName string

	// Dir is the compiler's working directory. Entry paths and relative
	// load paths resolve against it.
	Dir string

	// Env is added to the compiler's environment.
	Env []string
}

// Sass compiles every non-partial .scss/.sass entry with the Sass CLI and
// concatenates the results, in path order, into OutputName.
type Sass struct {
	Options SassOptions
}

// NewSass returns a Sass stage with defaults applied.
func NewSass(opts SassOptions) *Sass {
	if opts.Binary == "" {
		opts.Binary = "sass"
	}
	if opts.OutputStyle == "" {
		opts.OutputStyle = "expanded"
	}
	if opts.OutputName == "" {
		opts.OutputName = "styles.css"
	}
	return &Sass{Options: opts}
}

func (s *Sass) Stage() string { return StageSass }

func (s *Sass) Apply(ctx context.Context, in []File) ([]File, error) {
	switch s.Options.OutputStyle {
	case "expanded", "compressed":
	default:
		return nil, failf(StageSass, "unsupported output style %q", s.Options.OutputStyle)
	}

	entries := make([]File, 0, len(in))
	for _, f := range in {
		base := path.Base(f.Path)
		if strings.HasPrefix(base, "_") {
			continue
		}
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	var css bytes.Buffer
	for _, f := range entries {
		out, err := s.compile(ctx, f)
		if err != nil {
			return nil, err
		}
		css.Write(out)
		if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
			css.WriteByte('\n')
		}
	}
	return []File{{Path: s.Options.OutputName, Data: css.Bytes()}}, nil
}

func (s *Sass) compile(ctx context.Context, f File) ([]byte, error) {
	args := []string{"--stdin", "--no-source-map", "--style=" + s.Options.OutputStyle}
	if strings.HasSuffix(f.Path, ".sass") {
		args = append(args, "--indented")
	}
	// The entry's own directory resolves its relative imports.
	args = append(args, "--load-path="+path.Dir(f.Path))
	for _, p := range s.Options.LoadPaths {
		args = append(args, "--load-path="+p)
	}

	res, err := runTool(ctx, s.Options.Dir, s.Options.Binary, args, f.Data, s.Options.Env)
	if err != nil {
		return nil, &TransformError{Stage: StageSass, Message: f.Path + ": " + err.Error(), Err: err}
	}
	if res.exitCode != 0 {
		msg := strings.TrimSpace(string(res.stderr))
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.exitCode)
		}
		return nil, &TransformError{Stage: StageSass, Message: f.Path + ": " + msg}
	}
	return res.stdout, nil
}

type toolResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
}

// runTool runs an external tool with stdin attached and captures its output.
// A non-zero exit is reported through exitCode; err is only set when the
// tool could not be run or ctx was cancelled. On cancellation the whole
// process group is killed.
func runTool(ctx context.Context, dir, bin string, args []string, stdin []byte, env []string) (*toolResult, error) {
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("%s cancelled: %w", bin, ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", bin, err)
		}
		exitCode = exitErr.ExitCode()
	}
	return &toolResult{stdout: stdout.Bytes(), stderr: stderr.Bytes(), exitCode: exitCode}, nil
}
