// Package publish uploads the built output tree to S3-compatible object
// storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"sitepipe/internal/fsync"
)

// ObjectStore is the subset of an object storage client the publisher needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket, region string) error
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// Publisher uploads files to one bucket under a key prefix.
type Publisher struct {
	Store  ObjectStore
	Config Config
	Logger *slog.Logger
}

// Publish uploads every file and returns the number uploaded. Uploads run in
// parallel; the first error cancels the rest.
func (p *Publisher) Publish(ctx context.Context, files []fsync.File) (int, error) {
	if p.Store == nil {
		return 0, fmt.Errorf("publish: no object store")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := p.Store.EnsureBucket(ctx, p.Config.Bucket, p.Config.Region); err != nil {
		return 0, fmt.Errorf("ensure bucket %s: %w", p.Config.Bucket, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := p.Config.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for _, f := range files {
		key := ObjectKey(p.Config.Prefix, f.Path)
		g.Go(func() error {
			err := p.Store.Put(gctx, p.Config.Bucket, key, bytes.NewReader(f.Data), int64(len(f.Data)), ContentType(f.Path))
			if err != nil {
				return fmt.Errorf("put %s: %w", key, err)
			}
			logger.Debug("object uploaded", "bucket", p.Config.Bucket, "key", key, "bytes", len(f.Data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	logger.Info("output published", "bucket", p.Config.Bucket, "prefix", p.Config.Prefix, "objects", len(files))
	return len(files), nil
}

// ObjectKey joins prefix and a relative file path into an object key without
// leading or doubled slashes.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

var contentTypes = map[string]string{
	".map":   "application/json",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".svg":   "image/svg+xml",
}

// ContentType guesses the Content-Type of a published file from its name.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
