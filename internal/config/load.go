package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"sitepipe/internal/config/env"
)

// DefaultFiles are looked up in the project root, in order, when no config
// path is given.
var DefaultFiles = []string{"sitepipe.yaml", "sitepipe.yml", "sitepipe.toml"}

// ParseError reports a malformed config file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load builds the configuration for the project at root.
//
// file names the config file; relative paths resolve against root. When file
// is empty the DefaultFiles are tried and a missing file is not an error. An
// explicitly named file must exist. Environment overrides are applied last.
// Load does not validate; callers apply flags and then call Validate.
func Load(root, file string) (Config, error) {
	cfg := Default()
	if root != "" {
		cfg.Root = root
	}

	path, required := file, true
	if path == "" {
		path, required = findDefault(cfg.Root), false
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Root, path)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, &cfg); err != nil {
				return Config{}, err
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findDefault(root string) string {
	for _, name := range DefaultFiles {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func decode(path string, data []byte, cfg *Config) error {
	// Maps decode by merging; a browsers table in the file replaces the
	// defaults instead.
	defaults := cfg.Browsers
	cfg.Browsers = nil

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	default:
		return &ParseError{Path: path, Message: "unsupported config format (want .yaml, .yml or .toml)"}
	}
	if err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	if cfg.Browsers == nil {
		cfg.Browsers = defaults
	}
	return nil
}

// ApplyEnv overrides cfg from SITEPIPE_* variables. SITEPIPE_ENV selects the
// mode; NODE_ENV is honoured when SITEPIPE_ENV is unset.
func ApplyEnv(cfg *Config) error {
	if mode := env.First("", "SITEPIPE_ENV", "NODE_ENV"); mode != "" {
		cfg.Production = strings.EqualFold(strings.TrimSpace(mode), "production")
	}

	var err error
	if cfg.Port, err = env.Int("SITEPIPE_PORT", cfg.Port); err != nil {
		return err
	}
	if cfg.Concurrency, err = env.Int("SITEPIPE_CONCURRENCY", cfg.Concurrency); err != nil {
		return err
	}
	debounce, err := env.Duration("SITEPIPE_DEBOUNCE", cfg.Debounce())
	if err != nil {
		return err
	}
	cfg.DebounceMS = int(debounce.Milliseconds())
	if cfg.DesktopNotify, err = env.Bool("SITEPIPE_DESKTOP_NOTIFY", cfg.DesktopNotify); err != nil {
		return err
	}
	cfg.LogLevel = env.String("SITEPIPE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = env.String("SITEPIPE_LOG_FORMAT", cfg.LogFormat)
	cfg.OutputDir = env.String("SITEPIPE_OUTPUT_DIR", cfg.OutputDir)
	cfg.Sass.Binary = env.String("SITEPIPE_SASS_BINARY", cfg.Sass.Binary)
	return nil
}
