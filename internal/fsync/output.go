package fsync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrOutsideRoot is returned for paths that escape the output root.
var ErrOutsideRoot = errors.New("path escapes output root")

// Output is the shared output tree.
//
// Build stages are its only writers and go through Clean, Copy or Commit,
// which hold the write lock. The dev server reads through ReadFile, which
// holds the read lock, so a path is never read while a stage replaces it.
type Output struct {
	root string

	mu sync.RWMutex
}

// NewOutput returns an Output rooted at root.
func NewOutput(root string) *Output {
	return &Output{root: filepath.Clean(root)}
}

// Root returns the output directory.
func (o *Output) Root() string { return o.root }

// Path returns the absolute path of the slash-separated relative name.
func (o *Output) Path(name string) (string, error) {
	slash := filepath.ToSlash(name)
	for _, seg := range strings.Split(slash, "/") {
		if seg == ".." {
			return "", ErrOutsideRoot
		}
	}
	clean := path.Clean("/" + slash)
	return filepath.Join(o.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Clean resets the tree to the skeleton directories.
func (o *Output) Clean(skeleton []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Clean(o.root, skeleton)
}

// Prepare creates the tree and the skeleton directories, keeping what exists.
func (o *Output) Prepare(skeleton []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range append([]string{"."}, skeleton...) {
		p, err := o.Path(sub)
		if err != nil {
			return fsErr("mkdir", sub, err)
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fsErr("mkdir", p, err)
		}
	}
	return nil
}

// Remove deletes the whole output tree.
func (o *Output) Remove() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fsErr("remove", o.root, os.RemoveAll(o.root))
}

// Copy copies matched source files into the subdirectory dest of the tree.
func (o *Output) Copy(ctx context.Context, srcBase string, patterns []string, dest string) ([]string, error) {
	dir, err := o.Path(dest)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return Copy(ctx, srcBase, patterns, dir)
}

// Commit writes a stage's complete result. Callers produce every file in
// memory first; nothing is written for a stage that failed.
func (o *Output) Commit(files []File) error {
	for _, f := range files {
		if _, err := o.Path(f.Path); err != nil {
			return fsErr("commit", f.Path, err)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return WriteFiles(o.root, files)
}

// ReadFile reads one file of the tree under the read lock.
func (o *Output) ReadFile(name string) ([]byte, fs.FileInfo, error) {
	p, err := o.Path(name)
	if err != nil {
		return nil, nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, info, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

// Snapshot reads every file matched by patterns in the tree.
func (o *Output) Snapshot(patterns []string) ([]File, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	matches, err := Expand(o.root, patterns)
	if err != nil {
		return nil, err
	}
	return ReadMatches(o.root, matches)
}
