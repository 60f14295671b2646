package transform

import (
	"context"
	"fmt"
	"strings"

	"sitepipe/internal/fsync"
)

// File is an in-memory file with a slash-separated relative path.
type File = fsync.File

// Stage names reported in TransformError.
const (
	StageSass       = "sass"
	StageCSS        = "css"
	StageLint       = "lint"
	StageJavaScript = "javascript"
	StageImages     = "images"
	StageCachebust  = "cachebust"
)

// Transform maps input files to output files.
//
// Determinism: for fixed input and options Apply returns byte-identical
// output.
type Transform interface {
	Stage() string
	Apply(ctx context.Context, in []File) ([]File, error)
}

// TransformError is a failure reported by a transform stage. Message is the
// diagnostic text shown to the user (compiler or linter output).
type TransformError struct {
	Stage   string
	Message string
	Err     error
}

func (e *TransformError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	switch {
	case msg == "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	case msg == "":
		return e.Stage + ": failed"
	}
	return fmt.Sprintf("%s: %s", e.Stage, msg)
}

func (e *TransformError) Unwrap() error { return e.Err }

func failf(stage, format string, args ...any) error {
	return &TransformError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Chain applies transforms in order, feeding each one's output to the next.
type Chain []Transform

// Stage returns the stage names joined by "+".
func (c Chain) Stage() string {
	names := make([]string, 0, len(c))
	for _, t := range c {
		names = append(names, t.Stage())
	}
	return strings.Join(names, "+")
}

// Apply runs every transform; the first error stops the chain.
func (c Chain) Apply(ctx context.Context, in []File) ([]File, error) {
	files := in
	for _, t := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := t.Apply(ctx, files)
		if err != nil {
			return nil, err
		}
		files = out
	}
	return files, nil
}

// Func adapts a function to Transform.
type Func struct {
	Name string
	Fn   func(ctx context.Context, in []File) ([]File, error)
}

func (f Func) Stage() string { return f.Name }

func (f Func) Apply(ctx context.Context, in []File) ([]File, error) { return f.Fn(ctx, in) }
