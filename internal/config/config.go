// Package config loads sitepipe settings from defaults, an optional
// sitepipe.yaml or sitepipe.toml file, and the environment.
//
// Precedence, lowest first: Default, config file, environment, CLI flags
// (applied by the caller before Validate).
package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Paths holds the source globs of each task, relative to the project root.
// A "!" prefix excludes.
type Paths struct {
	HTML         []string `yaml:"html" toml:"html"`
	LibScripts   []string `yaml:"lib_scripts" toml:"lib_scripts"`
	LibStyles    []string `yaml:"lib_styles" toml:"lib_styles"`
	Fonts        []string `yaml:"fonts" toml:"fonts"`
	Scripts      []string `yaml:"scripts" toml:"scripts"`
	Styles       []string `yaml:"styles" toml:"styles"`
	StyleSources []string `yaml:"style_sources" toml:"style_sources"`
	Images       []string `yaml:"images" toml:"images"`
}

// Sass configures the external compiler.
type Sass struct {
	Binary    string   `yaml:"binary" toml:"binary"`
	LoadPaths []string `yaml:"load_paths" toml:"load_paths"`
}

// Images configures image optimization.
type Images struct {
	JPEGQuality    int    `yaml:"jpeg_quality" toml:"jpeg_quality"`
	PNGCompression string `yaml:"png_compression" toml:"png_compression"`
}

// Config is the complete pipeline configuration.
type Config struct {
	// Root is the project directory. It is set by the caller, not the file.
	Root string `yaml:"-" toml:"-"`

	OutputDir  string `yaml:"output_dir" toml:"output_dir"`
	Port       int    `yaml:"port" toml:"port"`
	Production bool   `yaml:"production" toml:"production"`

	// Concurrency bounds concurrently running tasks. Zero means unbounded.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`

	DebounceMS    int  `yaml:"debounce_ms" toml:"debounce_ms"`
	DesktopNotify bool `yaml:"desktop_notify" toml:"desktop_notify"`

	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	// Skeleton lists the directories recreated under OutputDir by a clean.
	Skeleton []string `yaml:"skeleton" toml:"skeleton"`

	Paths Paths `yaml:"paths" toml:"paths"`
	Sass  Sass  `yaml:"sass" toml:"sass"`

	// Browsers maps browser name to the minimum supported version; CSS is
	// prefixed for them.
	Browsers map[string]string `yaml:"browsers" toml:"browsers"`

	// JSTarget is the language level scripts are transpiled to.
	JSTarget string `yaml:"js_target" toml:"js_target"`

	Images Images `yaml:"images" toml:"images"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:          ".",
		OutputDir:     "dist",
		Port:          3210,
		DebounceMS:    100,
		DesktopNotify: true,
		LogLevel:      "info",
		LogFormat:     "text",
		Skeleton:      []string{"css", "js", "images/content", "images/icons", "fonts"},
		Paths: Paths{
			HTML:         []string{"src/*.html"},
			LibScripts:   []string{"src/libs/*.{js,js.map}"},
			LibStyles:    []string{"src/libs/*.{css,css.map}"},
			Fonts:        []string{"src/fonts/**/*"},
			Scripts:      []string{"src/js/**/*.js", "!src/js/libs/**"},
			Styles:       []string{"src/sass/*.{sass,scss}"},
			StyleSources: []string{"src/sass/**/*.{sass,scss}"},
			Images:       []string{"src/images/**/*.{png,jpg,jpeg,gif,svg}", "!src/images/sprites/**"},
		},
		Sass:     Sass{Binary: "sass", LoadPaths: []string{"src/sass"}},
		Browsers: defaultBrowsers(),
		JSTarget: "es2015",
		Images:   Images{JPEGQuality: 85, PNGCompression: "best"},
	}
}

func defaultBrowsers() map[string]string {
	return map[string]string{
		"chrome":  "58",
		"edge":    "16",
		"firefox": "57",
		"ios":     "11",
		"safari":  "11",
	}
}

// Debounce returns the watch debounce interval.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Mode returns "production" or "development".
func (c Config) Mode() string {
	if c.Production {
		return "production"
	}
	return "development"
}

// OutputPath returns the absolute-or-root-relative output directory.
func (c Config) OutputPath() string {
	return c.Abs(c.OutputDir)
}

// Abs resolves p against Root unless it is already absolute.
func (c Config) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

var (
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, errors.New("root is required"))
	}
	out := path.Clean(filepath.ToSlash(strings.TrimSpace(c.OutputDir)))
	switch {
	case strings.TrimSpace(c.OutputDir) == "":
		errs = append(errs, errors.New("output_dir is required"))
	case out == "." || out == "/" || out == ".." || strings.HasPrefix(out, "../"):
		errs = append(errs, fmt.Errorf("output_dir %q must be a subdirectory of the project", c.OutputDir))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative: %d", c.Concurrency))
	}
	if c.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must not be negative: %d", c.DebounceMS))
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !logFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	for _, dir := range c.Skeleton {
		d := path.Clean(filepath.ToSlash(dir))
		if d == ".." || strings.HasPrefix(d, "../") || path.IsAbs(d) {
			errs = append(errs, fmt.Errorf("skeleton directory %q escapes output_dir", dir))
		}
	}
	for name, patterns := range c.Paths.byName() {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(strings.TrimPrefix(p, "!")) {
				errs = append(errs, fmt.Errorf("paths.%s: invalid glob %q", name, p))
			}
		}
	}
	if strings.TrimSpace(c.Sass.Binary) == "" {
		errs = append(errs, errors.New("sass.binary is required"))
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("images.jpeg_quality %d out of range 1-100", c.Images.JPEGQuality))
	}
	switch c.Images.PNGCompression {
	case "best", "default", "speed":
	default:
		errs = append(errs, fmt.Errorf("unknown images.png_compression %q", c.Images.PNGCompression))
	}
	return errors.Join(errs...)
}

func (p Paths) byName() map[string][]string {
	return map[string][]string{
		"html":          p.HTML,
		"lib_scripts":   p.LibScripts,
		"lib_styles":    p.LibStyles,
		"fonts":         p.Fonts,
		"scripts":       p.Scripts,
		"styles":        p.Styles,
		"style_sources": p.StyleSources,
		"images":        p.Images,
	}
}
