package pipeline

import (
	"context"
	"fmt"
	"path"

	"sitepipe/internal/dag"
	"sitepipe/internal/fsync"
	"sitepipe/internal/publish"
	"sitepipe/internal/transform"
	"sitepipe/internal/watch"
)

// Task names.
const (
	TaskHTML          = "html"
	TaskCopyJS        = "copy-js"
	TaskCopyCSS       = "copy-css"
	TaskCopyFonts     = "copy-fonts"
	TaskLintJS        = "lint-js"
	TaskJavaScript    = "javascript"
	TaskImages        = "images"
	TaskSass          = "sass"
	TaskCachebust     = "cachebust"
	TaskDeleteAll     = "delete-all"
	TaskCreateFolders = "create-folders"
	TaskReset         = "reset"
	TaskAssets        = "assets"
	TaskBuild         = "build"
	TaskPublish       = "publish"
	TaskWatchHTML     = "watch-html"
	TaskWatchSass     = "watch-sass"
	TaskWatchJS       = "watch-js"
	TaskWatchImages   = "watch-img"
)

// DefaultTask is run before serving when no task is named.
const DefaultTask = TaskBuild

func (c *Context) tasks() []dag.Task {
	cfg := c.Config
	return []dag.Task{
		{Name: TaskDeleteAll, Description: "remove the output directory", Action: func(context.Context) error {
			return c.Output.Remove()
		}},
		{Name: TaskCreateFolders, Description: "create the output skeleton", Action: func(context.Context) error {
			return c.Output.Prepare(cfg.Skeleton)
		}},
		{Name: TaskReset, Description: "empty the output directory down to the skeleton", Action: func(context.Context) error {
			return c.Output.Clean(cfg.Skeleton)
		}},

		{Name: TaskHTML, Description: "copy HTML pages", Action: c.copyTo(cfg.Paths.HTML, ".")},
		{Name: TaskCopyJS, Description: "copy vendored scripts", Action: c.copyTo(cfg.Paths.LibScripts, "js")},
		{Name: TaskCopyCSS, Description: "copy vendored stylesheets", Action: c.copyTo(cfg.Paths.LibStyles, "css")},
		{Name: TaskCopyFonts, Description: "copy fonts", Action: c.copyTo(cfg.Paths.Fonts, "fonts")},

		{Name: TaskLintJS, Description: "check scripts for syntax errors", Action: func(ctx context.Context) error {
			in, err := c.sources(cfg.Paths.Scripts, "")
			if err != nil {
				return err
			}
			_, err = c.transforms.Lint.Apply(ctx, in)
			return err
		}},
		{Name: TaskJavaScript, Description: "bundle and minify scripts", After: []string{TaskLintJS},
			Action: c.build(cfg.Paths.Scripts, "", c.transforms.JavaScript)},
		{Name: TaskImages, Description: "optimize images", Action: c.build(cfg.Paths.Images, "images", c.transforms.Images)},
		{Name: TaskSass, Description: "compile, prefix and minify stylesheets", After: []string{TaskImages},
			Action: c.build(cfg.Paths.Styles, "", transform.Chain{c.transforms.Sass, c.transforms.CSS})},
		{Name: TaskCachebust, Description: "fingerprint asset references in HTML", Action: c.cachebust},

		{Name: TaskAssets, Description: "build stylesheets and scripts", After: []string{TaskSass, TaskJavaScript}, RunAs: dag.Parallel},
		{Name: TaskBuild, Description: "full clean build", After: []string{
			TaskReset, TaskHTML, TaskCopyJS, TaskCopyCSS, TaskCopyFonts, TaskAssets, TaskCachebust,
		}},
		{Name: TaskPublish, Description: "build and upload the output to object storage", After: []string{TaskBuild}, Action: c.publish},

		{Name: TaskWatchHTML, After: []string{TaskHTML, TaskCachebust}},
		{Name: TaskWatchSass, After: []string{TaskSass, TaskCachebust}},
		{Name: TaskWatchJS, After: []string{TaskJavaScript, TaskCachebust}},
		{Name: TaskWatchImages, After: []string{TaskImages}},
	}
}

// Bindings returns the source globs watched in serve mode and the tasks each
// one rebuilds.
func (c *Context) Bindings() []watch.Binding {
	p := c.Config.Paths
	return []watch.Binding{
		{Name: "html", Patterns: p.HTML, Tasks: []string{TaskWatchHTML}},
		{Name: "sass", Patterns: p.StyleSources, Tasks: []string{TaskWatchSass}},
		{Name: "js", Patterns: p.Scripts, Tasks: []string{TaskWatchJS}},
		{Name: "images", Patterns: p.Images, Tasks: []string{TaskWatchImages}},
	}
}

func (c *Context) copyTo(patterns []string, dest string) dag.Action {
	return func(ctx context.Context) error {
		written, err := c.Output.Copy(ctx, c.Config.Root, patterns, dest)
		if err != nil {
			return err
		}
		c.Logger.Debug("files copied", "dest", dest, "files", len(written))
		return nil
	}
}

// sources reads the files matched by patterns. With a prefix, paths become
// prefix/<path below the pattern's static part>, ready to commit; without one
// they stay relative to the project root.
func (c *Context) sources(patterns []string, prefix string) ([]fsync.File, error) {
	matches, err := fsync.Expand(c.Config.Root, patterns)
	if err != nil {
		return nil, err
	}
	files, err := fsync.ReadMatches(c.Config.Root, matches)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		for i, m := range matches {
			files[i].Path = path.Join(prefix, m.Rel)
		}
	}
	return files, nil
}

// build runs t over the matched sources and commits the result only when t
// succeeded, so a failed stage leaves the previous output in place.
func (c *Context) build(patterns []string, prefix string, t transform.Transform) dag.Action {
	return func(ctx context.Context) error {
		in, err := c.sources(patterns, prefix)
		if err != nil {
			return err
		}
		if len(in) == 0 {
			c.Logger.Debug("no sources", "stage", t.Stage())
			return nil
		}
		out, err := t.Apply(ctx, in)
		if err != nil {
			return err
		}
		return c.Output.Commit(out)
	}
}

func (c *Context) cachebust(ctx context.Context) error {
	pages, err := c.Output.Snapshot([]string{"**/*.{html,htm}"})
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	out, err := c.transforms.Cachebust.Apply(ctx, pages)
	if err != nil {
		return err
	}
	return c.Output.Commit(out)
}

func (c *Context) publish(ctx context.Context) error {
	p := c.Publisher
	if p == nil {
		cfg, err := publish.ConfigFromEnv()
		if err != nil {
			return fmt.Errorf("publish config: %w", err)
		}
		store, err := publish.NewMinioStore(cfg)
		if err != nil {
			return err
		}
		p = &publish.Publisher{Store: store, Config: cfg, Logger: c.Logger}
	}
	files, err := c.Output.Snapshot([]string{"**/*"})
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, files)
	return err
}
