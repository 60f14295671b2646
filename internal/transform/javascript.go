package transform

import (
	"bytes"
	"context"
	"path"

	"github.com/evanw/esbuild/pkg/api"
)

// JSOptions configures script bundling.
type JSOptions struct {
	// Target is the output language level, e.g. "es2015" (default) or "es5".
	Target string

	Minify    bool
	SourceMap bool

	// EmbedSources stores the original sources inside the source map.
	EmbedSources bool

	// OutputName is the path of the bundle. Defaults to "scripts.min.js".
	OutputName string
}

// JavaScript concatenates scripts in path order, transpiles them to the
// target language level and optionally minifies.
type JavaScript struct {
	Options JSOptions
}

func NewJavaScript(opts JSOptions) *JavaScript {
	if opts.OutputName == "" {
		opts.OutputName = "scripts.min.js"
	}
	return &JavaScript{Options: opts}
}

func (j *JavaScript) Stage() string { return StageJavaScript }

func (j *JavaScript) Apply(ctx context.Context, in []File) ([]File, error) {
	target, err := esTarget(j.Options.Target)
	if err != nil {
		return nil, &TransformError{Stage: StageJavaScript, Message: err.Error(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var src bytes.Buffer
	for _, f := range sortedFiles(in) {
		src.Write(f.Data)
		// Guard against files without a trailing newline or semicolon.
		src.WriteString("\n;\n")
	}

	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        "scripts.js",
		Target:            target,
		MinifyWhitespace:  j.Options.Minify,
		MinifyIdentifiers: j.Options.Minify,
		MinifySyntax:      j.Options.Minify,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	}
	if j.Options.SourceMap {
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = sourcesContent(j.Options.EmbedSources)
	}

	res := api.Transform(src.String(), opts)
	if len(res.Errors) > 0 {
		return nil, &TransformError{Stage: StageJavaScript, Message: formatMessages(res.Errors)}
	}

	name := j.Options.OutputName
	if j.Options.SourceMap && len(res.Map) > 0 {
		code := append(res.Code, []byte("//# sourceMappingURL="+path.Base(name)+".map\n")...)
		return []File{{Path: name, Data: code}, {Path: name + ".map", Data: res.Map}}, nil
	}
	return []File{{Path: name, Data: res.Code}}, nil
}
