package transform

import (
	"context"
	"path"

	"github.com/evanw/esbuild/pkg/api"
)

// CSSOptions configures vendor prefixing and minification.
type CSSOptions struct {
	// Targets maps browser name to minimum version, e.g. {"chrome": "58"}.
	// Properties these browsers need prefixes for are prefixed.
	Targets map[string]string

	Minify    bool
	SourceMap bool

	// EmbedSources stores the original sources inside the source map.
	EmbedSources bool

	// OutputName renames the single output file. Empty keeps the input name.
	OutputName string
}

// CSS prefixes and optionally minifies stylesheets with esbuild.
type CSS struct {
	Options CSSOptions
}

func NewCSS(opts CSSOptions) *CSS { return &CSS{Options: opts} }

func (c *CSS) Stage() string { return StageCSS }

func (c *CSS) Apply(ctx context.Context, in []File) ([]File, error) {
	eng, err := engines(c.Options.Targets)
	if err != nil {
		return nil, &TransformError{Stage: StageCSS, Message: err.Error(), Err: err}
	}

	var out []File
	for _, f := range in {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := f.Path
		if c.Options.OutputName != "" {
			name = c.Options.OutputName
		}
		opts := api.TransformOptions{
			Loader:           api.LoaderCSS,
			Sourcefile:       f.Path,
			Engines:          eng,
			MinifyWhitespace: c.Options.Minify,
			MinifySyntax:     c.Options.Minify,
			LegalComments:    api.LegalCommentsNone,
			LogLevel:         api.LogLevelSilent,
		}
		if c.Options.SourceMap {
			opts.Sourcemap = api.SourceMapExternal
			opts.SourcesContent = sourcesContent(c.Options.EmbedSources)
		}

		res := api.Transform(string(f.Data), opts)
		if len(res.Errors) > 0 {
			return nil, &TransformError{Stage: StageCSS, Message: formatMessages(res.Errors)}
		}

		code := res.Code
		if c.Options.SourceMap && len(res.Map) > 0 {
			code = append(code, []byte("/*# sourceMappingURL="+path.Base(name)+".map */\n")...)
			out = append(out, File{Path: name, Data: code}, File{Path: name + ".map", Data: res.Map})
			continue
		}
		out = append(out, File{Path: name, Data: code})
	}
	return out, nil
}
