package fsync

import (
	"os"
	"path/filepath"
	"strings"
)

// Clean removes dir recursively and recreates it together with the skeleton
// subdirectories (slash separated, relative to dir) so later stages can write
// into known locations.
func Clean(dir string, skeleton []string) error {
	if strings.TrimSpace(dir) == "" || filepath.Clean(dir) == string(filepath.Separator) {
		return fsErr("clean", dir, errRefuseDir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fsErr("remove", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fsErr("mkdir", dir, err)
	}
	for _, sub := range skeleton {
		p := filepath.Join(dir, filepath.FromSlash(sub))
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fsErr("mkdir", p, err)
		}
	}
	return nil
}
