package fsync

import (
	"context"
	"os"
	"path/filepath"
)

// Copy copies every file matched by patterns (relative to srcBase) into
// destDir, keeping each file's path relative to its pattern's static prefix.
// It returns the written paths relative to destDir, sorted.
//
// "src/libs/*.js" copies src/libs/a.js to destDir/a.js; "src/fonts/**/*"
// keeps subdirectories below src/fonts.
func Copy(ctx context.Context, srcBase string, patterns []string, destDir string) ([]string, error) {
	matches, err := Expand(srcBase, patterns)
	if err != nil {
		return nil, err
	}
	written := make([]string, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		src := filepath.Join(srcBase, filepath.FromSlash(m.Path))
		info, err := os.Stat(src)
		if err != nil {
			return written, fsErr("stat", src, err)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return written, fsErr("read", src, err)
		}
		dst := filepath.Join(destDir, filepath.FromSlash(m.Rel))
		if err := WriteFileAtomic(dst, data, info.Mode().Perm()); err != nil {
			return written, err
		}
		written = append(written, m.Rel)
	}
	return written, nil
}
