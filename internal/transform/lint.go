package transform

import (
	"context"
	"sort"

	"github.com/evanw/esbuild/pkg/api"
)

// LintOptions configures the JavaScript lint stage.
type LintOptions struct {
	// WarningsAsErrors fails the stage on esbuild warnings as well
	// (duplicate keys, suspicious comparisons, unreachable code and so on).
	WarningsAsErrors bool
}

// Lint parses every script and fails on the first file with diagnostics.
// Files are checked in path order and passed through unchanged.
type Lint struct {
	Options LintOptions
}

func NewLint(opts LintOptions) *Lint { return &Lint{Options: opts} }

func (l *Lint) Stage() string { return StageLint }

func (l *Lint) Apply(ctx context.Context, in []File) ([]File, error) {
	files := sortedFiles(in)
	var problems []api.Message
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := api.Transform(string(f.Data), api.TransformOptions{
			Loader:     api.LoaderJS,
			Sourcefile: f.Path,
			LogLevel:   api.LogLevelSilent,
		})
		problems = append(problems, res.Errors...)
		if l.Options.WarningsAsErrors {
			problems = append(problems, res.Warnings...)
		}
	}
	if len(problems) > 0 {
		return nil, &TransformError{Stage: StageLint, Message: formatMessages(problems)}
	}
	return files, nil
}

func sortedFiles(in []File) []File {
	out := append([]File(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
