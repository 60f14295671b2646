package publish

import (
	"errors"
	"fmt"
	"strings"

	"sitepipe/internal/config/env"
)

// Config locates the bucket the output tree is published to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string

	// Prefix is prepended to every object key, e.g. "site/v2".
	Prefix string

	// Concurrency bounds parallel uploads. Defaults to 4.
	Concurrency int
}

// ConfigFromEnv reads SITEPIPE_PUBLISH_* variables.
func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("SITEPIPE_PUBLISH_USE_SSL", true)
	if err != nil {
		return Config{}, err
	}
	concurrency, err := env.Int("SITEPIPE_PUBLISH_CONCURRENCY", 4)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:    env.String("SITEPIPE_PUBLISH_ENDPOINT", ""),
		AccessKey:   env.String("SITEPIPE_PUBLISH_ACCESS_KEY", ""),
		SecretKey:   env.String("SITEPIPE_PUBLISH_SECRET_KEY", ""),
		Region:      env.String("SITEPIPE_PUBLISH_REGION", "us-east-1"),
		UseSSL:      useSSL,
		Bucket:      env.String("SITEPIPE_PUBLISH_BUCKET", ""),
		Prefix:      env.String("SITEPIPE_PUBLISH_PREFIX", ""),
		Concurrency: concurrency,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("publish endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("publish access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("publish secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("publish region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("publish bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("publish concurrency must not be negative: %d", c.Concurrency)
	}
	return nil
}
