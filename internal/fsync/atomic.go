package fsync

import (
	"os"
	"path/filepath"
)

// File is one output file, path relative to the tree it is written into
// (slash separated).
type File struct {
	Path string
	Data []byte
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename. Parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fsErr("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fsErr("create", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fsErr("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fsErr("sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fsErr("close", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fsErr("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fsErr("rename", path, err)
	}
	return nil
}

// WriteFiles writes every file under root. It stops at the first error; files
// already renamed into place stay.
func WriteFiles(root string, files []File) error {
	for _, f := range files {
		if err := WriteFileAtomic(filepath.Join(root, filepath.FromSlash(f.Path)), f.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
