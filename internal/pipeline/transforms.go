package pipeline

import (
	"sitepipe/internal/config"
	"sitepipe/internal/fsync"
	"sitepipe/internal/transform"
)

// Output file names, relative to the output root.
const (
	styleOutput  = "css/styles.min.css"
	scriptOutput = "js/scripts.min.js"
)

// Transforms are the content stages used by the tasks. Any nil field is
// built from the configuration.
type Transforms struct {
	Sass       transform.Transform
	CSS        transform.Transform
	Lint       transform.Transform
	JavaScript transform.Transform
	Images     transform.Transform
	Cachebust  transform.Transform
}

// withDefaults fills nil stages for cfg. Development builds keep CSS readable
// and embed sources in source maps; production builds minify and link maps
// without sources.
func (t Transforms) withDefaults(cfg config.Config, out *fsync.Output) Transforms {
	if t.Sass == nil {
		t.Sass = transform.NewSass(transform.SassOptions{
			Binary:      cfg.Sass.Binary,
			OutputStyle: "expanded",
			LoadPaths:   cfg.Sass.LoadPaths,
			OutputName:  "css/styles.css",
			Dir:         cfg.Root,
		})
	}
	if t.CSS == nil {
		t.CSS = transform.NewCSS(transform.CSSOptions{
			Targets:      cfg.Browsers,
			Minify:       cfg.Production,
			SourceMap:    true,
			EmbedSources: !cfg.Production,
			OutputName:   styleOutput,
		})
	}
	if t.Lint == nil {
		t.Lint = transform.NewLint(transform.LintOptions{})
	}
	if t.JavaScript == nil {
		t.JavaScript = transform.NewJavaScript(transform.JSOptions{
			Target:       cfg.JSTarget,
			Minify:       true,
			SourceMap:    true,
			EmbedSources: !cfg.Production,
			OutputName:   scriptOutput,
		})
	}
	if t.Images == nil {
		t.Images = transform.NewImages(transform.ImageOptions{
			JPEGQuality:    cfg.Images.JPEGQuality,
			PNGCompression: cfg.Images.PNGCompression,
			Concurrency:    cfg.Concurrency,
		})
	}
	if t.Cachebust == nil {
		t.Cachebust = transform.NewCachebust(transform.CachebustOptions{
			ReadAsset: func(name string) ([]byte, error) {
				data, _, err := out.ReadFile(name)
				return data, err
			},
		})
	}
	return t
}
